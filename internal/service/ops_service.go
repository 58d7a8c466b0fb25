// internal/service/ops_service.go
package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/flashchat/erp-messaging/internal/config"
	"github.com/flashchat/erp-messaging/internal/repository"
	"github.com/flashchat/erp-messaging/pkg/logger"
)

// DashboardStats is the admin overview: last-24h message volume plus
// workflow activity.
type DashboardStats struct {
	TotalMessages   int `json:"total_messages"`
	SMSSent         int `json:"sms_sent"`
	WhatsAppSent    int `json:"whatsapp_sent"`
	FailedMessages  int `json:"failed_messages"`
	ActiveWorkflows int `json:"active_workflows"`
	ExecutionsToday int `json:"executions_today"`
	SuccessfulToday int `json:"successful_today"`
}

// OpsService serves the dashboard and enforces the retention windows.
type OpsService struct {
	Logs     repository.MessageLogRepositoryInterface
	Rules    repository.WorkflowRepositoryInterface
	Settings *config.Store

	// Now is swappable in tests; defaults to time.Now.
	Now func() time.Time
}

func (s *OpsService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Stats aggregates the trailing 24 hours.
func (s *OpsService) Stats() (*DashboardStats, error) {
	since := s.now().Add(-24 * time.Hour)

	msgStats, err := s.Logs.StatsSince(since)
	if err != nil {
		return nil, err
	}
	wfStats, err := s.Rules.Stats(since)
	if err != nil {
		return nil, err
	}

	return &DashboardStats{
		TotalMessages:   msgStats["total"],
		SMSSent:         msgStats["sms_sent"],
		WhatsAppSent:    msgStats["whatsapp_sent"],
		FailedMessages:  msgStats["failed"],
		ActiveWorkflows: wfStats["active_workflows"],
		ExecutionsToday: wfStats["executions"],
		SuccessfulToday: wfStats["successes"],
	}, nil
}

// SweepRetention deletes message logs and workflow execution logs past their
// configured retention windows. Runs daily on the worker.
func (s *OpsService) SweepRetention() {
	now := s.now()

	logCutoff := now.AddDate(0, 0, -s.Settings.Get().LogRetentionDays)
	deleted, err := s.Logs.DeleteOlderThan(logCutoff)
	if err != nil {
		logger.Error("message log retention sweep failed", zap.Error(err))
	} else if deleted > 0 {
		logger.Info("message logs purged",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", logCutoff))
	}

	wfCutoff := now.AddDate(0, 0, -s.Settings.Get().WorkflowLogRetentionDays)
	deleted, err = s.Rules.DeleteExecutionLogsOlderThan(wfCutoff)
	if err != nil {
		logger.Error("execution log retention sweep failed", zap.Error(err))
	} else if deleted > 0 {
		logger.Info("execution logs purged",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", wfCutoff))
	}
}
