// internal/provider/client.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appErrors "github.com/flashchat/erp-messaging/internal/errors"
)

// API is the FlashChat HTTP surface the gateway consumes.
type API interface {
	SendSMS(ctx context.Context, req SMSRequest) (*SendResponse, error)
	SendWhatsApp(ctx context.Context, req WhatsAppRequest) (*SendResponse, error)
	SendOTP(ctx context.Context, req OTPRequest) (*SendResponse, error)
	VerifyOTP(ctx context.Context, code string) (*VerifyResponse, error)
	WhatsAppAccounts(ctx context.Context) ([]Account, error)
}

type SMSRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	SIM     int    `json:"sim"`
	Mode    string `json:"mode"`
}

type WhatsAppRequest struct {
	Account   string `json:"account"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

type OTPRequest struct {
	Phone  string `json:"phone"`
	Expire int    `json:"expire"` // seconds
}

// SendResponse carries the provider identifier plus the raw body; the raw
// body is persisted verbatim on the message log row.
type SendResponse struct {
	MessageID string
	Raw       []byte
}

type VerifyResponse struct {
	Valid bool `json:"valid"`
}

type Account struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Client talks to the FlashChat API with bearer-token auth and a 30-second
// request budget.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) SendSMS(ctx context.Context, req SMSRequest) (*SendResponse, error) {
	return c.send(ctx, "send-sms", req, "message_id")
}

func (c *Client) SendWhatsApp(ctx context.Context, req WhatsAppRequest) (*SendResponse, error) {
	return c.send(ctx, "send-whatsapp", req, "message_id")
}

func (c *Client) SendOTP(ctx context.Context, req OTPRequest) (*SendResponse, error) {
	return c.send(ctx, "send-otp", req, "otp_id")
}

func (c *Client) VerifyOTP(ctx context.Context, code string) (*VerifyResponse, error) {
	raw, err := c.do(ctx, http.MethodPost, "verify-otp", map[string]string{"code": code})
	if err != nil {
		return nil, err
	}
	var out VerifyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, appErrors.NewProvider("verify-otp", 0, fmt.Sprintf("malformed response: %v", err))
	}
	return &out, nil
}

func (c *Client) WhatsAppAccounts(ctx context.Context) ([]Account, error) {
	raw, err := c.do(ctx, http.MethodGet, "whatsapp-accounts", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, appErrors.NewProvider("whatsapp-accounts", 0, fmt.Sprintf("malformed response: %v", err))
	}
	return out.Accounts, nil
}

func (c *Client) send(ctx context.Context, endpoint string, body any, idField string) (*SendResponse, error) {
	raw, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, appErrors.NewProvider(endpoint, 0, fmt.Sprintf("malformed response: %v", err))
	}

	resp := &SendResponse{Raw: raw}
	if id, ok := fields[idField].(string); ok {
		resp.MessageID = id
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErrors.NewProvider(endpoint, 0, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErrors.NewProvider(endpoint, resp.StatusCode, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, appErrors.NewProvider(endpoint, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return raw, nil
}

var _ API = (*Client)(nil)
