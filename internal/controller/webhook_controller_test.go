package controller_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashchat/erp-messaging/internal/config"
	"github.com/flashchat/erp-messaging/internal/controller"
	"github.com/flashchat/erp-messaging/internal/service"
)

func newWebhookHandler(secret string) http.HandlerFunc {
	webhooks := &service.WebhookService{
		Settings: config.NewStore(&config.Settings{WebhooksEnabled: true, WebhookSecret: secret}),
	}
	c := &controller.WebhookController{Webhooks: webhooks}
	return c.Receive
}

func post(t *testing.T, handler http.HandlerFunc, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/flashchat", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(service.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookAcceptsSignedEvent(t *testing.T) {
	handler := newWebhookHandler("topsecret")
	// Unknown events are acknowledged without touching storage.
	body := []byte(`{"event":"provider_ping","data":{}}`)

	rec := post(t, handler, body, signBody("topsecret", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	handler := newWebhookHandler("topsecret")
	body := []byte(`{"event":"provider_ping","data":{}}`)

	rec := post(t, handler, body, signBody("wrongsecret", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(t, handler, body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookSignatureOverRawBody(t *testing.T) {
	handler := newWebhookHandler("topsecret")
	signed := []byte(`{"event":"provider_ping","data":{}}`)
	tampered := []byte(`{"event":"device_status","data":{}}`)

	rec := post(t, handler, tampered, signBody("topsecret", signed))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookSkipsVerificationWithoutSecret(t *testing.T) {
	handler := newWebhookHandler("")
	body := []byte(`{"event":"provider_ping","data":{}}`)

	rec := post(t, handler, body, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	handler := newWebhookHandler("topsecret")

	body := []byte(`not json at all`)
	rec := post(t, handler, body, signBody("topsecret", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = []byte(`{"data":{}}`)
	rec = post(t, handler, body, signBody("topsecret", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
