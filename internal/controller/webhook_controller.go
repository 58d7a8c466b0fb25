// internal/controller/webhook_controller.go
package controller

import (
	"encoding/json"
	"io"
	"net/http"

	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/service"
)

type WebhookController struct {
	Webhooks *service.WebhookService
}

// Receive verifies the signature over the raw body before any parsing, then
// applies the event. The provider retries on non-2xx, so persistent failures
// come back until resolved.
func (c *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, appErrors.NewValidation("unreadable request body"))
		return
	}

	if err := c.Webhooks.VerifySignature(body, r.Header.Get(service.SignatureHeader)); err != nil {
		writeError(w, err)
		return
	}

	var event service.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, appErrors.NewValidation("malformed webhook payload"))
		return
	}
	if event.Event == "" {
		writeError(w, appErrors.NewValidation("event type is required"))
		return
	}
	event.Raw = body

	if err := c.Webhooks.HandleEvent(r.Context(), &event); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
