// internal/service/webhook_service.go
package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flashchat/erp-messaging/internal/config"
	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
	"github.com/flashchat/erp-messaging/internal/repository"
	"github.com/flashchat/erp-messaging/pkg/logger"
)

// SignatureHeader carries the provider's HMAC of the raw request body.
const SignatureHeader = "X-FlashChat-Signature"

// WebhookEvent is the provider's callback body: the event name plus
// event-specific fields, all at the top level. Raw holds the full body so
// each handler can decode its own fields from it.
type WebhookEvent struct {
	Event string          `json:"event"`
	Raw   json.RawMessage `json:"-"`
}

// WebhookService verifies and applies provider callbacks: delivery status
// updates, inbound messages, campaign progress, and device state changes.
type WebhookService struct {
	Logs      repository.MessageLogRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
	Contacts  repository.ContactRepositoryInterface
	Settings  *config.Store

	// Now is swappable in tests; defaults to time.Now.
	Now func() time.Time
}

func (s *WebhookService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body against the
// header value. Verification is skipped only when no secret is configured;
// a configured secret makes a missing or wrong signature a hard reject.
func (s *WebhookService) VerifySignature(body []byte, signature string) error {
	secret := s.Settings.Get().WebhookSecret
	if secret == "" {
		return nil
	}
	if signature == "" {
		return appErrors.NewSignature("missing webhook signature")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return appErrors.NewSignature("invalid webhook signature")
	}
	return nil
}

// HandleEvent routes a verified callback to its handler. Unknown event types
// are acknowledged and ignored so provider-side additions never bounce.
func (s *WebhookService) HandleEvent(ctx context.Context, event *WebhookEvent) error {
	if !s.Settings.Get().WebhooksEnabled {
		return appErrors.NewState("webhooks are disabled")
	}

	switch event.Event {
	case "message_status_update":
		return s.handleStatusUpdate(event.Raw)
	case "message_received":
		return s.handleMessageReceived(event.Raw)
	case "campaign_update":
		return s.handleCampaignUpdate(event.Raw)
	case "device_status":
		return s.handleDeviceStatus(event.Raw)
	default:
		logger.Info("ignoring unknown webhook event", zap.String("event", event.Event))
		return nil
	}
}

type statusUpdatePayload struct {
	MessageID   string `json:"message_id"`
	Status      string `json:"status"`
	DeliveredAt string `json:"delivered_at"`
}

// handleStatusUpdate moves every log row carrying the provider message ID to
// the reported status. Statuses arrive lowercase and are stored Title-cased.
func (s *WebhookService) handleStatusUpdate(data json.RawMessage) error {
	var payload statusUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return appErrors.NewValidation("malformed status update payload: %v", err)
	}
	if payload.MessageID == "" {
		return appErrors.NewValidation("message_id is required")
	}

	status := titleStatus(payload.Status)
	if !status.Valid() {
		return appErrors.NewValidation("unknown message status %q", payload.Status)
	}

	entries, err := s.Logs.ListByProviderID(payload.MessageID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		logger.Warn("status update for unknown message", zap.String("provider_id", payload.MessageID))
		return nil
	}

	var deliveredAt *time.Time
	if status == model.StatusDelivered || status == model.StatusRead {
		t := s.now()
		if payload.DeliveredAt != "" {
			if parsed, ok := parseProviderTime(payload.DeliveredAt); ok {
				t = parsed
			} else {
				logger.Warn("unparseable delivered_at, using receive time",
					zap.String("delivered_at", payload.DeliveredAt))
			}
		}
		deliveredAt = &t
	}

	for _, entry := range entries {
		if err := s.Logs.UpdateStatus(entry.ID, status, deliveredAt); err != nil {
			return err
		}
	}

	logger.Info("message status updated",
		zap.String("provider_id", payload.MessageID),
		zap.String("status", string(status)))
	return nil
}

type messageReceivedPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Channel string `json:"channel"`
}

// handleMessageReceived records an inbound message and links it to the
// contact, customer, or lead owning the phone number, in that order.
func (s *WebhookService) handleMessageReceived(data json.RawMessage) error {
	var payload messageReceivedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return appErrors.NewValidation("malformed inbound message payload: %v", err)
	}

	phone := NormalizePhone(payload.Phone)
	if phone == "" {
		return appErrors.NewValidation("inbound message has no phone number")
	}

	channel := model.ChannelSMS
	if strings.EqualFold(payload.Channel, "whatsapp") {
		channel = model.ChannelWhatsApp
	}

	entry := &model.MessageLog{
		Channel:     channel,
		Direction:   model.DirectionInbound,
		PhoneNumber: phone,
		Content:     payload.Message,
		Status:      model.StatusReceived,
	}

	ref, err := s.Contacts.FindReferenceByPhone(phone)
	if err != nil {
		logger.Warn("failed to link inbound message", zap.String("phone", phone), zap.Error(err))
	} else if ref != nil {
		entry.ReferenceDoctype = ref.Doctype
		entry.ReferenceName = ref.Name
	}

	if err := s.Logs.Create(entry); err != nil {
		return err
	}

	logger.Info("inbound message recorded",
		zap.String("phone", phone),
		zap.String("channel", channel.String()),
		zap.String("linked_to", entry.ReferenceDoctype))
	return nil
}

type campaignUpdatePayload struct {
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
}

// handleCampaignUpdate syncs progress for campaigns the provider runs on its
// side, matched by the provider's campaign ID.
func (s *WebhookService) handleCampaignUpdate(data json.RawMessage) error {
	var payload campaignUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return appErrors.NewValidation("malformed campaign update payload: %v", err)
	}
	if payload.CampaignID == "" {
		return appErrors.NewValidation("campaign_id is required")
	}

	campaign, err := s.Campaigns.GetByProviderID(payload.CampaignID)
	if err != nil {
		if appErrors.IsNotFound(err) {
			logger.Warn("campaign update for unknown campaign", zap.String("provider_id", payload.CampaignID))
			return nil
		}
		return err
	}
	if campaign.Status.Terminal() {
		return nil
	}

	status := campaign.Status
	switch strings.ToLower(payload.Status) {
	case "completed":
		status = model.CampaignCompleted
	case "failed":
		status = model.CampaignFailed
	case "processing", "running":
		status = model.CampaignProcessing
	}

	total := campaign.TotalRecipients
	successRate := 0.0
	if total > 0 {
		successRate = float64(payload.Sent) / float64(total) * 100
	}

	return s.Campaigns.UpdateResults(campaign.ID, payload.Sent, payload.Failed, successRate, status)
}

type deviceStatusPayload struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
}

// handleDeviceStatus only logs; device state lives on the provider side.
func (s *WebhookService) handleDeviceStatus(data json.RawMessage) error {
	var payload deviceStatusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return appErrors.NewValidation("malformed device status payload: %v", err)
	}

	logger.Info("provider device status changed",
		zap.String("device_id", payload.DeviceID),
		zap.String("status", payload.Status))
	return nil
}

// parseProviderTime accepts the provider's timestamp formats.
func parseProviderTime(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// titleStatus maps the provider's lowercase status names onto the stored
// Title-case values.
func titleStatus(raw string) model.MessageStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sent":
		return model.StatusSent
	case "delivered":
		return model.StatusDelivered
	case "read":
		return model.StatusRead
	case "failed":
		return model.StatusFailed
	case "received":
		return model.StatusReceived
	default:
		return model.MessageStatus(raw)
	}
}
