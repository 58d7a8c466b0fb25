// internal/controller/template_controller.go
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

type TemplateController struct {
	Templates    *service.TemplateService
	TemplateRepo repository.TemplateRepositoryInterface
}

func (c *TemplateController) Create(w http.ResponseWriter, r *http.Request) {
	var t model.MessageTemplate
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return
	}

	if err := c.Templates.Create(&t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (c *TemplateController) Update(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	var t model.MessageTemplate
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return
	}
	t.ID = id

	if err := c.Templates.Update(&t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (c *TemplateController) Get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	t, err := c.TemplateRepo.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (c *TemplateController) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize, offset := pagination(r)

	templates, total, err := c.TemplateRepo.List(offset, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginated(templates, page, pageSize, total))
}

// Preview renders a template with sample data, optionally overridden by the
// caller's context values.
func (c *TemplateController) Preview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string            `json:"name"`
		Context map[string]string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return
	}
	if body.Name == "" {
		writeError(w, appErrors.NewValidation("template name is required"))
		return
	}

	rendered, err := c.Templates.Preview(body.Name, body.Context)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rendered": rendered})
}
