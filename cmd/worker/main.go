// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/flashchat/erp-messaging/internal/config"
	"github.com/flashchat/erp-messaging/internal/db"
	"github.com/flashchat/erp-messaging/internal/provider"
	"github.com/flashchat/erp-messaging/internal/queue"
	"github.com/flashchat/erp-messaging/internal/repository"
	"github.com/flashchat/erp-messaging/internal/service"
	"github.com/flashchat/erp-messaging/pkg/logger"
)

const (
	dispatchTickInterval  = time.Minute
	campaignTickInterval  = time.Minute
	retentionTickInterval = 24 * time.Hour
	dispatchBatchSize     = 50
)

func main() {
	_ = godotenv.Load()

	settings, err := config.Load()
	if err != nil {
		panic(err)
	}
	settingsStore := config.NewStore(settings)

	if err := logger.Init(settings.LogPath); err != nil {
		panic(err)
	}
	defer logger.Sync()

	database, err := db.Open()
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	var q queue.Queue
	amqpQueue, err := queue.NewAMQPQueue(settings.AMQPURL)
	if err != nil {
		logger.Warn("AMQP unavailable, falling back to in-process queue", zap.Error(err))
		q = queue.NewInMemoryQueue()
	} else {
		defer amqpQueue.Close()
		q = amqpQueue
	}

	logRepo := &repository.MessageLogRepository{DB: database}
	workflowRepo := &repository.WorkflowRepository{DB: database}
	campaignRepo := &repository.CampaignRepository{DB: database}
	contactRepo := &repository.ContactRepository{DB: database}
	dispatchRepo := &repository.DispatchRepository{DB: database}
	templateRepo := &repository.TemplateRepository{DB: database}

	flashchat := provider.NewClient(settings.BaseURL, settings.APISecret)

	gateway := &service.Gateway{Provider: flashchat, Logs: logRepo, Settings: settingsStore}
	templates := &service.TemplateService{Templates: templateRepo, Settings: settingsStore}
	workflows := &service.WorkflowService{
		Rules:     workflowRepo,
		Dispatch:  dispatchRepo,
		Contacts:  contactRepo,
		Sender:    gateway,
		Templates: templates,
		Queue:     q,
		Settings:  settingsStore,
	}
	campaigns := &service.CampaignService{
		Campaigns: campaignRepo,
		Contacts:  contactRepo,
		Sender:    gateway,
		Templates: templates,
		Queue:     q,
		Settings:  settingsStore,
	}
	ops := &service.OpsService{Logs: logRepo, Rules: workflowRepo, Settings: settingsStore}

	if err := queue.StartCampaignRunSubscriber(q, campaigns); err != nil {
		logger.Fatal("failed to subscribe to campaign runs", zap.Error(err))
	}
	if err := queue.StartDispatchTaskSubscriber(q, workflows); err != nil {
		logger.Fatal("failed to subscribe to dispatch tasks", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatchTick := time.NewTicker(dispatchTickInterval)
	campaignTick := time.NewTicker(campaignTickInterval)
	retentionTick := time.NewTicker(retentionTickInterval)
	defer dispatchTick.Stop()
	defer campaignTick.Stop()
	defer retentionTick.Stop()

	logger.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping")
			return
		case <-dispatchTick.C:
			workflows.RunDueDispatchTasks(ctx, dispatchBatchSize)
		case <-campaignTick.C:
			campaigns.StartDue()
		case <-retentionTick.C:
			ops.SweepRetention()
		}
	}
}
