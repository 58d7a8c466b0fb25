// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
	"github.com/flashchat/erp-messaging/internal/repository"
	"github.com/flashchat/erp-messaging/internal/service"
)

type CampaignController struct {
	Campaigns    *service.CampaignService
	CampaignRepo repository.CampaignRepositoryInterface
}

func (c *CampaignController) Create(w http.ResponseWriter, r *http.Request) {
	var campaign model.Campaign
	if err := json.NewDecoder(r.Body).Decode(&campaign); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return
	}

	if err := c.Campaigns.Create(&campaign); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) Update(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	var campaign model.Campaign
	if err := json.NewDecoder(r.Body).Decode(&campaign); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return
	}
	campaign.ID = id

	if err := c.Campaigns.Update(&campaign); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) Get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	campaign, err := c.CampaignRepo.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize, offset := pagination(r)
	channel := r.URL.Query().Get("channel")
	status := r.URL.Query().Get("status")

	campaigns, total, err := c.CampaignRepo.List(offset, pageSize, channel, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginated(campaigns, page, pageSize, total))
}

func (c *CampaignController) Schedule(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	var body struct {
		SendAt time.Time `json:"send_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return
	}

	if err := c.Campaigns.Schedule(id, body.SendAt); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "scheduled"})
}

func (c *CampaignController) Start(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	if err := c.Campaigns.Start(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (c *CampaignController) Cancel(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	if err := c.Campaigns.Cancel(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
