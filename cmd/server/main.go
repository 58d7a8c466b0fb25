// cmd/server/main.go
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/flashchat/erp-messaging/internal/config"
	"github.com/flashchat/erp-messaging/internal/controller"
	"github.com/flashchat/erp-messaging/internal/db"
	"github.com/flashchat/erp-messaging/internal/provider"
	"github.com/flashchat/erp-messaging/internal/queue"
	"github.com/flashchat/erp-messaging/internal/repository"
	"github.com/flashchat/erp-messaging/internal/service"
	"github.com/flashchat/erp-messaging/pkg/logger"
)

func main() {
	// No .env file is fine, OS environment variables still apply.
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
	inProcessQueue := false
	amqpQueue, err := queue.NewAMQPQueue(settings.AMQPURL)
	if err != nil {
		logger.Warn("AMQP unavailable, falling back to in-process queue", zap.Error(err))
		q = queue.NewInMemoryQueue()
		inProcessQueue = true
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
	webhooks := &service.WebhookService{
		Logs:      logRepo,
		Campaigns: campaignRepo,
		Contacts:  contactRepo,
		Settings:  settingsStore,
	}
	ops := &service.OpsService{Logs: logRepo, Rules: workflowRepo, Settings: settingsStore}

	// Without a broker the worker never sees our messages, so consume them here.
	if inProcessQueue {
		if err := queue.StartCampaignRunSubscriber(q, campaigns); err != nil {
			logger.Fatal("failed to subscribe to campaign runs", zap.Error(err))
		}
		if err := queue.StartDispatchTaskSubscriber(q, workflows); err != nil {
			logger.Fatal("failed to subscribe to dispatch tasks", zap.Error(err))
		}
	}

	messageController := &controller.MessageController{Gateway: gateway, Logs: logRepo}
	webhookController := &controller.WebhookController{Webhooks: webhooks}
	workflowController := &controller.WorkflowController{Workflows: workflows, Rules: workflowRepo}
	campaignController := &controller.CampaignController{Campaigns: campaigns, CampaignRepo: campaignRepo}
	templateController := &controller.TemplateController{Templates: templates, TemplateRepo: templateRepo}
	dashboardController := &controller.DashboardController{Ops: ops}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Messaging
	r.Post("/messages/send", messageController.Send)
	r.Get("/messages", messageController.List)
	r.Get("/messages/{id}", messageController.Get)
	r.Post("/messages/{id}/retry", messageController.Retry)
	r.Post("/otp/send", messageController.SendOTP)
	r.Post("/otp/verify", messageController.VerifyOTP)
	r.Get("/whatsapp/accounts", messageController.WhatsAppAccounts)

	// Provider callbacks
	r.Post("/webhooks/flashchat", webhookController.Receive)

	// Workflow rules
	r.Post("/workflows", workflowController.Create)
	r.Get("/workflows", workflowController.List)
	r.Get("/workflows/{id}", workflowController.Get)
	r.Put("/workflows/{id}", workflowController.Update)
	r.Post("/workflows/{id}/test", workflowController.Test)
	r.Get("/workflows/{id}/logs", workflowController.ExecutionLogs)
	r.Post("/events", workflowController.Trigger)

	// Campaigns
	r.Post("/campaigns", campaignController.Create)
	r.Get("/campaigns", campaignController.List)
	r.Get("/campaigns/{id}", campaignController.Get)
	r.Put("/campaigns/{id}", campaignController.Update)
	r.Post("/campaigns/{id}/schedule", campaignController.Schedule)
	r.Post("/campaigns/{id}/start", campaignController.Start)
	r.Post("/campaigns/{id}/cancel", campaignController.Cancel)

	// Templates
	r.Post("/templates", templateController.Create)
	r.Get("/templates", templateController.List)
	r.Get("/templates/{id}", templateController.Get)
	r.Put("/templates/{id}", templateController.Update)
	r.Post("/templates/preview", templateController.Preview)

	// Dashboard
	r.Get("/dashboard/stats", dashboardController.Stats)

	// SIGHUP reloads settings from the environment; the store swap is atomic,
	// so in-flight requests see either the old or the new values.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			fresh, err := config.Load()
			if err != nil {
				logger.Error("settings reload failed", zap.Error(err))
				continue
			}
			settingsStore.Set(fresh)
			logger.Info("settings reloaded")
		}
	}()

	logger.Info("server listening", zap.String("addr", settings.ServerAddr))
	if err := http.ListenAndServe(settings.ServerAddr, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
