// internal/service/gateway.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flashchat/erp-messaging/internal/config"
	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
	"github.com/flashchat/erp-messaging/internal/provider"
	"github.com/flashchat/erp-messaging/internal/repository"
	"github.com/flashchat/erp-messaging/pkg/logger"
)

const defaultOTPExpirySeconds = 300

// MessageSender is the slice of the gateway the workflow engine and the
// campaign runner depend on.
type MessageSender interface {
	Send(ctx context.Context, channel model.Channel, recipient, body string, ref *model.Reference) (*model.MessageLog, error)
	RateLimited(channel model.Channel) bool
}

// Gateway formats and sends messages through the provider, enforces the
// per-channel hourly rate limits, and writes one message log row per attempt.
type Gateway struct {
	Provider provider.API
	Logs     repository.MessageLogRepositoryInterface
	Settings *config.Store

	// Now is swappable in tests; defaults to time.Now.
	Now func() time.Time
}

func (g *Gateway) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// NormalizePhone strips everything but digits and '+', then prepends '+' if
// absent. Idempotent.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, c := range phone {
		if c >= '0' && c <= '9' || c == '+' {
			b.WriteRune(c)
		}
	}
	out := b.String()
	if out == "" {
		return out
	}
	if !strings.HasPrefix(out, "+") {
		out = "+" + out
	}
	return out
}

// ValidRecipient accepts international numbers and bare digit strings.
func ValidRecipient(phone string) bool {
	if phone == "" {
		return false
	}
	if strings.HasPrefix(phone, "+") {
		return true
	}
	for _, c := range phone {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// channelSender is the per-channel send variant; one implementation per
// Channel value.
type channelSender interface {
	send(ctx context.Context, g *Gateway, recipient, body string) (*provider.SendResponse, string, error)
}

var channelSenders = map[model.Channel]channelSender{
	model.ChannelSMS:      smsSender{},
	model.ChannelWhatsApp: whatsappSender{},
	model.ChannelOTP:      otpSender{},
}

type smsSender struct{}

func (smsSender) send(ctx context.Context, g *Gateway, recipient, body string) (*provider.SendResponse, string, error) {
	resp, err := g.Provider.SendSMS(ctx, provider.SMSRequest{
		Phone:   recipient,
		Message: body,
		SIM:     g.Settings.Get().DefaultSIM,
		Mode:    g.Settings.Get().SMSMode,
	})
	return resp, body, err
}

type whatsappSender struct{}

// WhatsApp sends go out through the first available provider account. No
// account configured upstream is a hard failure.
func (whatsappSender) send(ctx context.Context, g *Gateway, recipient, body string) (*provider.SendResponse, string, error) {
	accounts, err := g.Provider.WhatsAppAccounts(ctx)
	if err != nil {
		return nil, body, err
	}
	if len(accounts) == 0 {
		return nil, body, appErrors.NewProvider("whatsapp-accounts", 0, "no WhatsApp accounts available")
	}

	resp, err := g.Provider.SendWhatsApp(ctx, provider.WhatsAppRequest{
		Account:   accounts[0].ID,
		Recipient: recipient,
		Message:   body,
	})
	return resp, body, err
}

type otpSender struct{}

// The OTP body parameter is ignored; the provider generates the code. The
// logged content describes the expiry instead.
func (otpSender) send(ctx context.Context, g *Gateway, recipient, _ string) (*provider.SendResponse, string, error) {
	resp, err := g.Provider.SendOTP(ctx, provider.OTPRequest{
		Phone:  recipient,
		Expire: defaultOTPExpirySeconds,
	})
	content := fmt.Sprintf("OTP sent with %ds expiry", defaultOTPExpirySeconds)
	if err != nil {
		content = fmt.Sprintf("OTP failed with %ds expiry", defaultOTPExpirySeconds)
	}
	return resp, content, err
}

// Send normalizes the recipient, checks the channel's hourly budget, calls
// the provider and persists exactly one message log row for the attempt.
// Rate-limit rejections happen before the provider call and leave no row.
func (g *Gateway) Send(ctx context.Context, channel model.Channel, recipient, body string, ref *model.Reference) (*model.MessageLog, error) {
	if !channel.Valid() {
		return nil, appErrors.NewValidation("unknown channel %q", channel)
	}

	phone := NormalizePhone(recipient)
	if phone == "" {
		return nil, appErrors.NewValidation("recipient phone number is required")
	}

	if g.RateLimited(channel) {
		return nil, appErrors.NewRateLimit(channel.String(), g.Settings.Get().RateLimit(channel.String()))
	}

	sender := channelSenders[channel]
	resp, content, err := sender.send(ctx, g, phone, body)

	if err != nil {
		g.logAttempt(channel, phone, content, ref, &model.MessageLog{
			Status:       model.StatusFailed,
			ErrorMessage: err.Error(),
		})
		logger.Error("message send failed",
			zap.String("channel", channel.String()),
			zap.String("phone", phone),
			zap.Error(err))
		return nil, err
	}

	sentAt := g.now()
	entry := g.logAttempt(channel, phone, content, ref, &model.MessageLog{
		Status:            model.StatusSent,
		ProviderMessageID: resp.MessageID,
		ResponseContent:   string(resp.Raw),
		SentAt:            &sentAt,
	})

	logger.Info("message sent",
		zap.String("channel", channel.String()),
		zap.String("phone", phone),
		zap.String("provider_id", resp.MessageID))
	return entry, nil
}

// RateLimited reports whether a channel's trailing-hour budget is spent. The
// count is advisory: concurrent sends may overshoot slightly, the provider
// enforces its own hard limits. A failed count check allows the send.
func (g *Gateway) RateLimited(channel model.Channel) bool {
	limit := g.Settings.Get().RateLimit(channel.String())
	if limit <= 0 {
		return false
	}

	count, err := g.Logs.CountSentSince(channel, g.now().Add(-time.Hour))
	if err != nil {
		logger.Warn("rate limit check failed", zap.String("channel", channel.String()), zap.Error(err))
		return false
	}
	return count >= limit
}

// logAttempt persists the attempt row. Logging must never raise past the
// caller; a write failure is reported to the logger and swallowed.
func (g *Gateway) logAttempt(channel model.Channel, phone, content string, ref *model.Reference, outcome *model.MessageLog) *model.MessageLog {
	entry := &model.MessageLog{
		Channel:           channel,
		Direction:         model.DirectionOutbound,
		PhoneNumber:       phone,
		Content:           content,
		Status:            outcome.Status,
		ProviderMessageID: outcome.ProviderMessageID,
		ResponseContent:   outcome.ResponseContent,
		ErrorMessage:      outcome.ErrorMessage,
		SentAt:            outcome.SentAt,
	}
	if ref != nil {
		entry.ReferenceDoctype = ref.Doctype
		entry.ReferenceName = ref.Name
	}

	if err := g.Logs.Create(entry); err != nil {
		logger.Error("failed to write message log",
			zap.String("channel", channel.String()),
			zap.String("phone", phone),
			zap.Error(err))
	}
	return entry
}

// VerifyOTP is a pass-through to the provider; no local state is created.
func (g *Gateway) VerifyOTP(ctx context.Context, code string) (bool, error) {
	if code == "" {
		return false, appErrors.NewValidation("OTP code is required")
	}
	resp, err := g.Provider.VerifyOTP(ctx, code)
	if err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// WhatsAppAccounts lists the provider accounts available for WhatsApp sends.
func (g *Gateway) WhatsAppAccounts(ctx context.Context) ([]provider.Account, error) {
	return g.Provider.WhatsAppAccounts(ctx)
}

// Retry re-enters the send path for a failed log row and bumps its retry
// counter. Only failed messages are retryable, and only by explicit operator
// action.
func (g *Gateway) Retry(ctx context.Context, logID int) (*model.MessageLog, error) {
	entry, err := g.Logs.GetByID(logID)
	if err != nil {
		return nil, err
	}
	if entry.Status != model.StatusFailed {
		return nil, appErrors.NewState("only failed messages can be retried, message %d is %s", logID, entry.Status)
	}

	var ref *model.Reference
	if entry.ReferenceDoctype != "" {
		ref = &model.Reference{Doctype: entry.ReferenceDoctype, Name: entry.ReferenceName}
	}

	sent, err := g.Send(ctx, entry.Channel, entry.PhoneNumber, entry.Content, ref)
	if err != nil {
		if markErr := g.Logs.MarkRetried(logID, model.StatusFailed, err.Error()); markErr != nil {
			logger.Error("failed to record retry outcome", zap.Int("id", logID), zap.Error(markErr))
		}
		return nil, err
	}

	if err := g.Logs.MarkRetried(logID, model.StatusSent, ""); err != nil {
		logger.Error("failed to record retry outcome", zap.Int("id", logID), zap.Error(err))
	}
	return sent, nil
}

var _ MessageSender = (*Gateway)(nil)
