// internal/controller/respond.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	appErrors "github.com/flashchat/erp-messaging/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognized is
// a 500 with a generic body; the real error goes to the log, not the client.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case appErrors.IsValidation(err):
		status = http.StatusBadRequest
	case appErrors.IsSignature(err):
		status = http.StatusUnauthorized
	case appErrors.IsNotFound(err):
		status = http.StatusNotFound
	case appErrors.IsState(err):
		status = http.StatusConflict
	case appErrors.IsRateLimit(err):
		status = http.StatusTooManyRequests
	case appErrors.IsProvider(err):
		status = http.StatusBadGateway
	default:
		message = "internal server error"
	}

	writeJSON(w, status, map[string]string{"error": message})
}

// pagination reads page/page_size query params with the usual defaults.
func pagination(r *http.Request) (page, pageSize, offset int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	return page, pageSize, (page - 1) * pageSize
}

func paginated(data any, page, pageSize, total int) map[string]any {
	totalPages := (total + pageSize - 1) / pageSize
	return map[string]any{
		"data": data,
		"pagination": map[string]int{
			"page":        page,
			"page_size":   pageSize,
			"total_count": total,
			"total_pages": totalPages,
		},
	}
}
