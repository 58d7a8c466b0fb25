// internal/controller/dashboard_controller.go
package controller

import (
	"net/http"

	"github.com/flashchat/erp-messaging/internal/service"
)

type DashboardController struct {
	Ops *service.OpsService
}

func (c *DashboardController) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.Ops.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
