package service_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashchat/erp-messaging/internal/config"
	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
	"github.com/flashchat/erp-messaging/internal/service"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type webhookFixture struct {
	svc       *service.WebhookService
	logs      *mockLogRepo
	campaigns *mockCampaignRepo
	contacts  *mockContactRepo
	settings  *config.Settings
	now       time.Time
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		logs:      &mockLogRepo{},
		campaigns: newMockCampaignRepo(),
		contacts:  &mockContactRepo{dnd: map[string]bool{}},
		settings: &config.Settings{
			WebhooksEnabled: true,
			WebhookSecret:   "topsecret",
		},
		now: time.Date(2025, 3, 15, 14, 30, 0, 0, time.UTC),
	}
	f.svc = &service.WebhookService{
		Logs:      f.logs,
		Campaigns: f.campaigns,
		Contacts:  f.contacts,
		Settings:  config.NewStore(f.settings),
		Now:       func() time.Time { return f.now },
	}
	return f
}

func TestVerifySignatureValid(t *testing.T) {
	f := newWebhookFixture()
	body := []byte(`{"event":"message_status_update"}`)

	assert.NoError(t, f.svc.VerifySignature(body, sign("topsecret", body)))
}

func TestVerifySignatureTampered(t *testing.T) {
	f := newWebhookFixture()
	body := []byte(`{"event":"message_status_update"}`)
	sig := sign("topsecret", body)

	err := f.svc.VerifySignature([]byte(`{"event":"something_else"}`), sig)
	require.Error(t, err)
	assert.True(t, appErrors.IsSignature(err))
}

func TestVerifySignatureMissing(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.VerifySignature([]byte(`{}`), "")
	require.Error(t, err)
	assert.True(t, appErrors.IsSignature(err))
}

func TestVerifySignatureSkippedWithoutSecret(t *testing.T) {
	f := newWebhookFixture()
	f.settings.WebhookSecret = ""

	assert.NoError(t, f.svc.VerifySignature([]byte(`{}`), ""))
	assert.NoError(t, f.svc.VerifySignature([]byte(`{}`), "garbage"))
}

// webhookEvent builds a callback the way the receiver does: the event name
// and its fields together in one flat body.
func webhookEvent(t *testing.T, event string, fields map[string]any) *service.WebhookEvent {
	t.Helper()
	body := map[string]any{"event": event}
	for k, v := range fields {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return &service.WebhookEvent{Event: event, Raw: raw}
}

func TestStatusUpdateMovesMatchingRows(t *testing.T) {
	f := newWebhookFixture()
	sentAt := f.now.Add(-time.Minute)
	f.logs.Create(&model.MessageLog{
		Channel: model.ChannelSMS, Direction: model.DirectionOutbound,
		PhoneNumber: "+254712345678", Status: model.StatusSent,
		ProviderMessageID: "msg-001", SentAt: &sentAt,
	})

	err := f.svc.HandleEvent(context.Background(), webhookEvent(t, "message_status_update", map[string]any{
		"message_id": "msg-001",
		"status":     "delivered",
	}))
	require.NoError(t, err)

	entry := f.logs.entries[0]
	assert.Equal(t, model.StatusDelivered, entry.Status)
	require.NotNil(t, entry.DeliveredAt)
	assert.Equal(t, f.now, *entry.DeliveredAt)
}

func TestStatusUpdateReadsFieldsFromFlatBody(t *testing.T) {
	f := newWebhookFixture()
	sentAt := f.now.Add(-time.Minute)
	f.logs.Create(&model.MessageLog{
		Channel: model.ChannelSMS, Direction: model.DirectionOutbound,
		PhoneNumber: "+254712345678", Status: model.StatusSent,
		ProviderMessageID: "msg-1", SentAt: &sentAt,
	})

	// Exactly the body the provider posts: no nesting under a data key.
	body := []byte(`{"event":"message_status_update","message_id":"msg-1","status":"delivered"}`)
	err := f.svc.HandleEvent(context.Background(), &service.WebhookEvent{
		Event: "message_status_update",
		Raw:   body,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusDelivered, f.logs.entries[0].Status)
}

func TestStatusUpdateHonorsPayloadDeliveredAt(t *testing.T) {
	f := newWebhookFixture()
	sentAt := f.now.Add(-time.Minute)
	f.logs.Create(&model.MessageLog{
		Channel: model.ChannelSMS, Direction: model.DirectionOutbound,
		PhoneNumber: "+254712345678", Status: model.StatusSent,
		ProviderMessageID: "msg-001", SentAt: &sentAt,
	})

	err := f.svc.HandleEvent(context.Background(), webhookEvent(t, "message_status_update", map[string]any{
		"message_id":   "msg-001",
		"status":       "delivered",
		"delivered_at": "2025-03-15T14:25:00Z",
	}))
	require.NoError(t, err)

	entry := f.logs.entries[0]
	require.NotNil(t, entry.DeliveredAt)
	assert.Equal(t, time.Date(2025, 3, 15, 14, 25, 0, 0, time.UTC), *entry.DeliveredAt)
}

func TestStatusUpdateUnknownMessageIsAcknowledged(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.HandleEvent(context.Background(), webhookEvent(t, "message_status_update", map[string]any{
		"message_id": "ghost",
		"status":     "delivered",
	}))
	assert.NoError(t, err)
}

func TestStatusUpdateRejectsUnknownStatus(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.HandleEvent(context.Background(), webhookEvent(t, "message_status_update", map[string]any{
		"message_id": "msg-001",
		"status":     "teleported",
	}))
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}

func TestMessageReceivedLinksContact(t *testing.T) {
	f := newWebhookFixture()
	f.contacts.refByPhone = map[string]*model.Reference{
		"+254712345678": {Doctype: "Customer", Name: "CUST-0001"},
	}

	err := f.svc.HandleEvent(context.Background(), webhookEvent(t, "message_received", map[string]any{
		"phone":   "+254 712 345 678",
		"message": "I'd like a quote",
		"channel": "whatsapp",
	}))
	require.NoError(t, err)

	require.Len(t, f.logs.entries, 1)
	entry := f.logs.entries[0]
	assert.Equal(t, model.DirectionInbound, entry.Direction)
	assert.Equal(t, model.StatusReceived, entry.Status)
	assert.Equal(t, model.ChannelWhatsApp, entry.Channel)
	assert.Equal(t, "+254712345678", entry.PhoneNumber)
	assert.Equal(t, "I'd like a quote", entry.Content)
	assert.Equal(t, "Customer", entry.ReferenceDoctype)
	assert.Equal(t, "CUST-0001", entry.ReferenceName)
}

func TestMessageReceivedUnlinkedStillRecorded(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.HandleEvent(context.Background(), webhookEvent(t, "message_received", map[string]any{
		"phone":   "+254700000000",
		"message": "hello",
		"channel": "sms",
	}))
	require.NoError(t, err)

	require.Len(t, f.logs.entries, 1)
	assert.Empty(t, f.logs.entries[0].ReferenceDoctype)
}

func TestCampaignUpdateSyncsProgress(t *testing.T) {
	f := newWebhookFixture()
	f.campaigns.Create(&model.Campaign{
		Name: "March Promo", Channel: model.ChannelSMS,
		Status: model.CampaignProcessing, TargetAudience: model.AudienceAllContacts,
		TotalRecipients: 100, ProviderCampaignID: "prov-77",
	})

	err := f.svc.HandleEvent(context.Background(), webhookEvent(t, "campaign_update", map[string]any{
		"campaign_id": "prov-77",
		"status":      "completed",
		"sent":        90,
		"failed":      10,
	}))
	require.NoError(t, err)

	c := f.campaigns.campaigns[1]
	assert.Equal(t, model.CampaignCompleted, c.Status)
	assert.Equal(t, 90, c.MessagesSent)
	assert.Equal(t, 10, c.MessagesFailed)
	assert.InDelta(t, 90.0, c.SuccessRate, 0.01)
}

func TestCampaignUpdateUnknownCampaignIsAcknowledged(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.HandleEvent(context.Background(), webhookEvent(t, "campaign_update", map[string]any{
		"campaign_id": "ghost",
		"status":      "completed",
	}))
	assert.NoError(t, err)
}

func TestUnknownEventIsIgnored(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.HandleEvent(context.Background(), webhookEvent(t, "sim_swapped", map[string]any{}))
	assert.NoError(t, err)
}

func TestWebhooksDisabled(t *testing.T) {
	f := newWebhookFixture()
	f.settings.WebhooksEnabled = false

	err := f.svc.HandleEvent(context.Background(), webhookEvent(t, "device_status", map[string]any{}))
	require.Error(t, err)
	assert.True(t, appErrors.IsState(err))
}
