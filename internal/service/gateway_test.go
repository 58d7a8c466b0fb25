package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashchat/erp-messaging/internal/config"
	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
	"github.com/flashchat/erp-messaging/internal/provider"
	"github.com/flashchat/erp-messaging/internal/service"
)

// mockProvider records calls and returns scripted results.
type mockProvider struct {
	smsCalls      []provider.SMSRequest
	whatsappCalls []provider.WhatsAppRequest
	otpCalls      []provider.OTPRequest
	accounts      []provider.Account
	sendErr       error
	verifyValid   bool
}

func (m *mockProvider) SendSMS(ctx context.Context, req provider.SMSRequest) (*provider.SendResponse, error) {
	m.smsCalls = append(m.smsCalls, req)
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &provider.SendResponse{MessageID: "msg-001", Raw: []byte(`{"message_id":"msg-001"}`)}, nil
}

func (m *mockProvider) SendWhatsApp(ctx context.Context, req provider.WhatsAppRequest) (*provider.SendResponse, error) {
	m.whatsappCalls = append(m.whatsappCalls, req)
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &provider.SendResponse{MessageID: "wa-001", Raw: []byte(`{"message_id":"wa-001"}`)}, nil
}

func (m *mockProvider) SendOTP(ctx context.Context, req provider.OTPRequest) (*provider.SendResponse, error) {
	m.otpCalls = append(m.otpCalls, req)
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &provider.SendResponse{MessageID: "otp-001", Raw: []byte(`{"otp_id":"otp-001"}`)}, nil
}

func (m *mockProvider) VerifyOTP(ctx context.Context, code string) (*provider.VerifyResponse, error) {
	return &provider.VerifyResponse{Valid: m.verifyValid}, nil
}

func (m *mockProvider) WhatsAppAccounts(ctx context.Context) ([]provider.Account, error) {
	return m.accounts, nil
}

// mockLogRepo keeps message log rows in memory.
type mockLogRepo struct {
	entries   []*model.MessageLog
	sentCount int
	countErr  error
	retried   []int
}

func (m *mockLogRepo) Create(entry *model.MessageLog) error {
	entry.ID = len(m.entries) + 1
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockLogRepo) GetByID(id int) (*model.MessageLog, error) {
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, appErrors.NewNotFound("message log", "?")
}

func (m *mockLogRepo) ListByProviderID(providerID string) ([]*model.MessageLog, error) {
	out := []*model.MessageLog{}
	for _, e := range m.entries {
		if e.ProviderMessageID == providerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockLogRepo) List(offset, limit int, channel, status string) ([]*model.MessageLog, int, error) {
	return m.entries, len(m.entries), nil
}

func (m *mockLogRepo) UpdateStatus(id int, status model.MessageStatus, deliveredAt *time.Time) error {
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = status
			e.DeliveredAt = deliveredAt
		}
	}
	return nil
}

func (m *mockLogRepo) MarkRetried(id int, status model.MessageStatus, errorMessage string) error {
	m.retried = append(m.retried, id)
	return nil
}

func (m *mockLogRepo) CountSentSince(channel model.Channel, since time.Time) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.sentCount, nil
}

func (m *mockLogRepo) StatsSince(since time.Time) (map[string]int, error) {
	return map[string]int{}, nil
}

func (m *mockLogRepo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	return 0, nil
}

func testSettings() *config.Settings {
	return &config.Settings{
		DefaultSIM:        1,
		SMSMode:           "devices",
		SMSRateLimit:      100,
		WhatsAppRateLimit: 50,
		OTPRateLimit:      20,
		CompanyName:       "Acme Traders",
	}
}

func newGateway() (*service.Gateway, *mockProvider, *mockLogRepo) {
	p := &mockProvider{accounts: []provider.Account{{ID: "acc-1", Name: "Main", Status: "connected"}}}
	logs := &mockLogRepo{}
	g := &service.Gateway{Provider: p, Logs: logs, Settings: config.NewStore(testSettings())}
	return g, p, logs
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"0712 345 678":     "+0712345678",
		"+254712345678":    "+254712345678",
		"(254) 712-345678": "+254712345678",
		"":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, service.NormalizePhone(in), in)
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	once := service.NormalizePhone("0712 345 678")
	assert.Equal(t, once, service.NormalizePhone(once))
}

func TestSendSMSWritesOneLogRow(t *testing.T) {
	g, p, logs := newGateway()

	entry, err := g.Send(context.Background(), model.ChannelSMS, "0712 345 678", "hello", nil)
	require.NoError(t, err)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, model.StatusSent, entry.Status)
	assert.Equal(t, "msg-001", entry.ProviderMessageID)
	assert.Equal(t, "+0712345678", entry.PhoneNumber)
	assert.Equal(t, model.DirectionOutbound, entry.Direction)
	require.Len(t, p.smsCalls, 1)
	assert.Equal(t, 1, p.smsCalls[0].SIM)
	assert.Equal(t, "devices", p.smsCalls[0].Mode)
}

func TestSendFailureStillWritesOneLogRow(t *testing.T) {
	g, p, logs := newGateway()
	p.sendErr = appErrors.NewProvider("send-sms", 500, "upstream down")

	_, err := g.Send(context.Background(), model.ChannelSMS, "+254712345678", "hello", nil)
	require.Error(t, err)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, model.StatusFailed, logs.entries[0].Status)
	assert.NotEmpty(t, logs.entries[0].ErrorMessage)
}

func TestSendRejectsUnknownChannel(t *testing.T) {
	g, _, logs := newGateway()

	_, err := g.Send(context.Background(), model.Channel("Email"), "+254712345678", "hello", nil)
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
	assert.Empty(t, logs.entries)
}

func TestSendRateLimitRejectsBeforeProviderCall(t *testing.T) {
	g, p, logs := newGateway()
	logs.sentCount = 100 // at the SMS budget

	_, err := g.Send(context.Background(), model.ChannelSMS, "+254712345678", "hello", nil)
	require.Error(t, err)
	assert.True(t, appErrors.IsRateLimit(err))
	assert.Empty(t, p.smsCalls)
	assert.Empty(t, logs.entries)
}

func TestSendAdmittedUnderLimit(t *testing.T) {
	g, _, logs := newGateway()
	logs.sentCount = 99

	_, err := g.Send(context.Background(), model.ChannelSMS, "+254712345678", "hello", nil)
	assert.NoError(t, err)
}

func TestRateLimitFailsOpenOnCountError(t *testing.T) {
	g, _, logs := newGateway()
	logs.countErr = assert.AnError

	assert.False(t, g.RateLimited(model.ChannelSMS))
}

func TestSendWhatsAppUsesFirstAccount(t *testing.T) {
	g, p, _ := newGateway()
	p.accounts = []provider.Account{
		{ID: "acc-1", Name: "Main"},
		{ID: "acc-2", Name: "Backup"},
	}

	_, err := g.Send(context.Background(), model.ChannelWhatsApp, "+254712345678", "hi", nil)
	require.NoError(t, err)
	require.Len(t, p.whatsappCalls, 1)
	assert.Equal(t, "acc-1", p.whatsappCalls[0].Account)
}

func TestSendWhatsAppNoAccountsIsHardFailure(t *testing.T) {
	g, p, logs := newGateway()
	p.accounts = nil

	_, err := g.Send(context.Background(), model.ChannelWhatsApp, "+254712345678", "hi", nil)
	require.Error(t, err)
	assert.True(t, appErrors.IsProvider(err))
	assert.Empty(t, p.whatsappCalls)
	// The attempt is still logged as failed.
	require.Len(t, logs.entries, 1)
	assert.Equal(t, model.StatusFailed, logs.entries[0].Status)
}

func TestSendOTPLogsExpiryNotCode(t *testing.T) {
	g, p, logs := newGateway()

	entry, err := g.Send(context.Background(), model.ChannelOTP, "+254712345678", "", nil)
	require.NoError(t, err)
	require.Len(t, p.otpCalls, 1)
	assert.Equal(t, 300, p.otpCalls[0].Expire)
	assert.Equal(t, "OTP sent with 300s expiry", entry.Content)
	assert.Len(t, logs.entries, 1)
}

func TestSendAttachesReference(t *testing.T) {
	g, _, logs := newGateway()

	ref := &model.Reference{Doctype: "Sales Order", Name: "SO-2025-00042"}
	_, err := g.Send(context.Background(), model.ChannelSMS, "+254712345678", "hello", ref)
	require.NoError(t, err)
	assert.Equal(t, "Sales Order", logs.entries[0].ReferenceDoctype)
	assert.Equal(t, "SO-2025-00042", logs.entries[0].ReferenceName)
}

func TestRetryOnlyFailedMessages(t *testing.T) {
	g, _, logs := newGateway()

	sentAt := time.Now()
	logs.Create(&model.MessageLog{
		Channel: model.ChannelSMS, Direction: model.DirectionOutbound,
		PhoneNumber: "+254712345678", Content: "hello",
		Status: model.StatusSent, SentAt: &sentAt,
	})

	_, err := g.Retry(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, appErrors.IsState(err))
}

func TestRetryFailedMessageResends(t *testing.T) {
	g, p, logs := newGateway()

	logs.Create(&model.MessageLog{
		Channel: model.ChannelSMS, Direction: model.DirectionOutbound,
		PhoneNumber: "+254712345678", Content: "hello",
		Status: model.StatusFailed, ErrorMessage: "timeout",
	})

	entry, err := g.Retry(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, entry.Status)
	require.Len(t, p.smsCalls, 1)
	assert.Contains(t, logs.retried, 1)
}

func TestVerifyOTP(t *testing.T) {
	g, p, _ := newGateway()
	p.verifyValid = true

	valid, err := g.VerifyOTP(context.Background(), "123456")
	require.NoError(t, err)
	assert.True(t, valid)

	_, err = g.VerifyOTP(context.Background(), "")
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}
