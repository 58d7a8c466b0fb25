// internal/controller/message_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
	"github.com/flashchat/erp-messaging/internal/repository"
	"github.com/flashchat/erp-messaging/internal/service"
)

type MessageController struct {
	Gateway *service.Gateway
	Logs    repository.MessageLogRepositoryInterface
}

func (c *MessageController) Send(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Channel          string `json:"channel"`
		Recipient        string `json:"recipient"`
		Message          string `json:"message"`
		ReferenceDoctype string `json:"reference_doctype"`
		ReferenceName    string `json:"reference_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return
	}

	var ref *model.Reference
	if body.ReferenceDoctype != "" {
		ref = &model.Reference{Doctype: body.ReferenceDoctype, Name: body.ReferenceName}
	}

	entry, err := c.Gateway.Send(r.Context(), model.Channel(body.Channel), body.Recipient, body.Message, ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (c *MessageController) SendOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return
	}

	entry, err := c.Gateway.Send(r.Context(), model.ChannelOTP, body.Phone, "", nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (c *MessageController) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return
	}

	valid, err := c.Gateway.VerifyOTP(r.Context(), body.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (c *MessageController) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize, offset := pagination(r)
	channel := r.URL.Query().Get("channel")
	status := r.URL.Query().Get("status")

	entries, total, err := c.Logs.List(offset, pageSize, channel, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginated(entries, page, pageSize, total))
}

func (c *MessageController) Get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	entry, err := c.Logs.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (c *MessageController) Retry(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	entry, err := c.Gateway.Retry(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (c *MessageController) WhatsAppAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := c.Gateway.WhatsAppAccounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}
