package queue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/flashchat/erp-messaging/pkg/logger"
)

// CampaignProcessor is the slice of the campaign service the worker drives.
type CampaignProcessor interface {
	Process(ctx context.Context, campaignID int) error
}

// DispatchRunner is the slice of the workflow engine that delivers deferred
// dispatch tasks.
type DispatchRunner interface {
	RunDispatchTask(ctx context.Context, taskID string) error
}

// StartCampaignRunSubscriber consumes queued campaign run requests. Payloads
// arrive as the campaign ID; JSON transports numbers as float64.
func StartCampaignRunSubscriber(q Queue, processor CampaignProcessor) error {
	return q.Subscribe(TopicCampaignRuns, func(payload any) error {
		id, ok := toInt(payload)
		if !ok {
			logger.Error("invalid campaign run payload", zap.Any("payload", payload))
			return nil // malformed, no retry
		}

		logger.Info("processing queued campaign", zap.Int("campaign_id", id))
		return processor.Process(context.Background(), id)
	})
}

// StartDispatchTaskSubscriber consumes dispatch task IDs whose due time has
// arrived. The scheduler tick is the safety net for tasks the queue loses.
func StartDispatchTaskSubscriber(q Queue, runner DispatchRunner) error {
	return q.Subscribe(TopicDispatchTasks, func(payload any) error {
		id, ok := payload.(string)
		if !ok || id == "" {
			logger.Error("invalid dispatch task payload", zap.Any("payload", payload))
			return nil
		}

		logger.Info("processing dispatch task", zap.String("task_id", id))
		return runner.RunDispatchTask(context.Background(), id)
	})
}

func toInt(payload any) (int, bool) {
	switch v := payload.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		var id int
		if _, err := fmt.Sscanf(v, "%d", &id); err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}
