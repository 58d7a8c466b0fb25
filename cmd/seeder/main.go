// cmd/seeder/main.go
//
// Seeds the default message templates and workflow rules. Safe to run
// repeatedly; existing rows are left alone.
package main

import (
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/flashchat/erp-messaging/internal/config"
	"github.com/flashchat/erp-messaging/internal/db"
	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
	"github.com/flashchat/erp-messaging/internal/repository"
	"github.com/flashchat/erp-messaging/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	settings, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(settings.LogPath); err != nil {
		panic(err)
	}
	defer logger.Sync()

	database, err := db.Open()
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	templateRepo := &repository.TemplateRepository{DB: database}
	workflowRepo := &repository.WorkflowRepository{DB: database}

	seedTemplates(templateRepo)
	seedWorkflows(workflowRepo)
}

func seedTemplates(repo repository.TemplateRepositoryInterface) {
	templates := []model.MessageTemplate{
		{
			Name:               "Order Confirmation",
			Category:           "SMS",
			TemplateContent:    "Dear {customer_name}, your order {order_id} for {amount} has been confirmed. Thank you for choosing {company_name}!",
			AvailableVariables: []string{"customer_name", "order_id", "amount"},
		},
		{
			Name:               "Delivery Notification",
			Category:           "WhatsApp",
			TemplateContent:    "Hi {customer_name}! Your order {order_id} has been delivered successfully. Thank you for shopping with {company_name}!",
			AvailableVariables: []string{"customer_name", "order_id"},
		},
		{
			Name:               "Payment Reminder",
			Category:           "SMS",
			TemplateContent:    "Dear {customer_name}, invoice {invoice_number} due on {due_date} is overdue. Please make payment at your earliest convenience.",
			AvailableVariables: []string{"customer_name", "invoice_number", "due_date"},
		},
		{
			Name:               "Welcome Message",
			Category:           "WhatsApp",
			TemplateContent:    "Welcome to {company_name}, {customer_name}! We're excited to serve you. For any assistance, feel free to contact us.",
			AvailableVariables: []string{"customer_name"},
		},
		{
			Name:               "Appointment Reminder",
			Category:           "SMS",
			TemplateContent:    "Hi {customer_name}, this is a reminder for your appointment scheduled on {date}. See you soon!",
			AvailableVariables: []string{"customer_name"},
		},
	}

	for i := range templates {
		t := &templates[i]
		if _, err := repo.GetByName(t.Name); err == nil {
			continue
		} else if !appErrors.IsNotFound(err) {
			logger.Error("template lookup failed", zap.String("name", t.Name), zap.Error(err))
			continue
		}
		if err := repo.Create(t); err != nil {
			logger.Error("failed to create template", zap.String("name", t.Name), zap.Error(err))
			continue
		}
		logger.Info("created template", zap.String("name", t.Name))
	}
}

func seedWorkflows(repo repository.WorkflowRepositoryInterface) {
	workflows := []model.WorkflowRule{
		{
			Name:           "Order Confirmation SMS",
			WorkflowType:   model.WorkflowEventBased,
			TriggerDoctype: "Sales Order",
			TriggerEvent:   "on_submit",
			Channel:        model.ChannelSMS,
			RecipientField: "contact_mobile",
			CustomMessage:  "Dear {customer_name}, your order {name} for {currency} {grand_total} has been confirmed. Order will be processed shortly. Thank you for choosing {company_name}!",
			Conditions:     "doc.docstatus == 1 and doc.contact_mobile",
			IsActive:       true,
			EnableLogging:  true,
			RateLimitCheck: true,
			RespectDND:     true,
		},
		{
			Name:           "Payment Received Notification",
			WorkflowType:   model.WorkflowEventBased,
			TriggerDoctype: "Payment Entry",
			TriggerEvent:   "on_submit",
			Channel:        model.ChannelSMS,
			RecipientField: "contact_mobile",
			CustomMessage:  "Dear {party_name}, we have received your payment of {currency} {paid_amount} for {reference_no}. Thank you!",
			Conditions:     "doc.docstatus == 1 and doc.payment_type == 'Receive' and doc.contact_mobile",
			IsActive:       true,
			EnableLogging:  true,
		},
		{
			Name:           "Delivery Notification WhatsApp",
			WorkflowType:   model.WorkflowEventBased,
			TriggerDoctype: "Delivery Note",
			TriggerEvent:   "on_submit",
			Channel:        model.ChannelWhatsApp,
			RecipientField: "contact_mobile",
			CustomMessage:  "Hi {customer_name}! Your order {name} has been delivered successfully. We hope you enjoy your purchase!\n\nThank you for choosing {company_name}.",
			Conditions:     "doc.docstatus == 1 and doc.contact_mobile",
			IsActive:       true,
			DelayDuration:  30,
			DelayUnit:      model.DelayMinutes,
			EnableLogging:  true,
		},
		{
			Name:           "Lead Follow-up SMS",
			WorkflowType:   model.WorkflowEventBased,
			TriggerDoctype: "Lead",
			TriggerEvent:   "after_insert",
			Channel:        model.ChannelSMS,
			RecipientField: "mobile_no",
			CustomMessage:  "Hi {lead_name}, thank you for your interest in {company_name}. Our team will contact you shortly to discuss your requirements.",
			Conditions:     "doc.mobile_no and doc.status == 'Lead'",
			IsActive:       true,
			DelayDuration:  5,
			DelayUnit:      model.DelayMinutes,
			EnableLogging:  true,
		},
		{
			// Disabled by default; enable once working hours are configured.
			Name:             "Invoice Overdue Reminder",
			WorkflowType:     model.WorkflowScheduled,
			TriggerDoctype:   "Sales Invoice",
			TriggerEvent:     "overdue_check",
			Channel:          model.ChannelSMS,
			RecipientField:   "contact_mobile",
			CustomMessage:    "Dear {customer_name}, your invoice {name} due on {due_date} is overdue. Amount: {currency} {outstanding_amount}. Please make payment at your earliest convenience.",
			Conditions:       "doc.docstatus == 1 and doc.outstanding_amount > 0",
			IsActive:         false,
			WorkingHoursOnly: true,
			RespectDND:       true,
			EnableLogging:    true,
		},
		{
			Name:           "Welcome New Customer",
			WorkflowType:   model.WorkflowEventBased,
			TriggerDoctype: "Customer",
			TriggerEvent:   "after_insert",
			Channel:        model.ChannelWhatsApp,
			RecipientField: "mobile_no",
			CustomMessage:  "Welcome to {company_name}, {customer_name}! We're excited to serve you. For any assistance, feel free to contact us. Thank you for choosing us!",
			Conditions:     "doc.mobile_no",
			IsActive:       true,
			DelayDuration:  1,
			DelayUnit:      model.DelayHours,
			EnableLogging:  true,
		},
		{
			Name:           "Quotation Follow-up",
			WorkflowType:   model.WorkflowEventBased,
			TriggerDoctype: "Quotation",
			TriggerEvent:   "on_submit",
			Channel:        model.ChannelSMS,
			RecipientField: "contact_mobile",
			CustomMessage:  "Hi {customer_name}, we've sent you a quotation {name} for {currency} {grand_total}. Valid until {valid_till}. Contact us for any questions!",
			Conditions:     "doc.docstatus == 1 and doc.contact_mobile",
			IsActive:       true,
			DelayDuration:  2,
			DelayUnit:      model.DelayHours,
			EnableLogging:  true,
		},
	}

	existing, _, err := repo.List(0, 500, false)
	if err != nil {
		logger.Error("workflow listing failed", zap.Error(err))
		return
	}
	byName := map[string]bool{}
	for _, rule := range existing {
		byName[rule.Name] = true
	}

	for i := range workflows {
		rule := &workflows[i]
		if byName[rule.Name] {
			continue
		}
		if err := repo.Create(rule); err != nil {
			logger.Error("failed to create workflow", zap.String("name", rule.Name), zap.Error(err))
			continue
		}
		logger.Info("created workflow", zap.String("name", rule.Name))
	}
}
