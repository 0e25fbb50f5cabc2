package api

import (
	"encoding/json"
	"net/http"
)

// ListSystemJobs возвращает все строки crontab, включая неуправляемые.
// GET /api/v1/system/jobs
func (h *Handler) ListSystemJobs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.jobs.SystemEntries(r.Context())
	if HandleServiceError(w, h.logger, err, "") {
		return
	}

	result := make([]EntryResponse, len(entries))
	for i, e := range entries {
		result[i] = EntryFromDomain(e)
	}

	List(w, result, len(result))
}

// ValidateExpression проверяет cron-выражение без побочных эффектов.
// POST /api/v1/system/validate
func (h *Handler) ValidateExpression(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	Success(w, ValidateResponse{Valid: h.jobs.ValidateExpression(req.Expression)})
}

// Health — проверка живости процесса.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
