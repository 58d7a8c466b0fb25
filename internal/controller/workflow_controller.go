// internal/controller/workflow_controller.go
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

type WorkflowController struct {
	Workflows *service.WorkflowService
	Rules     repository.WorkflowRepositoryInterface
}

func (c *WorkflowController) Create(w http.ResponseWriter, r *http.Request) {
	var rule model.WorkflowRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return
	}

	if err := c.Workflows.Create(&rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (c *WorkflowController) Update(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	var rule model.WorkflowRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return
	}
	rule.ID = id

	if err := c.Workflows.Update(&rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (c *WorkflowController) Get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	rule, err := c.Rules.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (c *WorkflowController) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize, offset := pagination(r)
	activeOnly := r.URL.Query().Get("active") == "true"

	rules, total, err := c.Rules.List(offset, pageSize, activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginated(rules, page, pageSize, total))
}

// Trigger is the document-event entry point for host systems that push
// events directly instead of through provider webhooks.
func (c *WorkflowController) Trigger(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Event    string          `json:"event"`
		Document *model.Document `json:"document"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return
	}
	if body.Event == "" || body.Document == nil || body.Document.Doctype == "" {
		writeError(w, appErrors.NewValidation("event and document with doctype are required"))
		return
	}

	c.Workflows.HandleEvent(r.Context(), body.Event, body.Document)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Test dry-runs a rule against a sample document without sending.
func (c *WorkflowController) Test(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	var doc model.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return
	}

	result, err := c.Workflows.TestRule(id, &doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *WorkflowController) ExecutionLogs(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	_, pageSize, offset := pagination(r)

	entries, err := c.Rules.ListExecutionLogs(id, offset, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}
