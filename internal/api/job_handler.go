package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/cronkeeper/internal/jobs"
	"github.com/shaiso/cronkeeper/internal/repo"
)

// ListJobs возвращает список задач с фильтрацией.
// GET /api/v1/jobs?enabled=...&limit=...&offset=...
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := repo.JobFilter{Limit: repo.DefaultListLimit}
	q := r.URL.Query()

	if enabledStr := q.Get("enabled"); enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			BadRequest(w, "invalid enabled")
			return
		}
		filter.Enabled = &enabled
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			BadRequest(w, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	list, total, err := h.jobs.List(r.Context(), filter)
	if HandleServiceError(w, h.logger, err, "") {
		return
	}

	now := time.Now()
	result := make([]JobResponse, len(list))
	for i := range list {
		result[i] = JobFromDomain(&list[i], now)
	}

	List(w, result, total)
}

// CreateJob создаёт задачу и ставит её в crontab.
// POST /api/v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	// Валидация
	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if req.Expression == "" {
		BadRequest(w, "expression is required")
		return
	}

	job, err := h.jobs.Create(r.Context(), jobs.CreateInput{
		Name:        req.Name,
		Expression:  req.Expression,
		Command:     req.Command,
		Description: req.Description,
		Enabled:     req.Enabled,
	})
	if HandleServiceError(w, h.logger, err, "") {
		return
	}

	Created(w, JobFromDomain(job, time.Now()))
}

// GetJob возвращает задачу по ID.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if HandleServiceError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobFromDomain(job, time.Now()))
}

// UpdateJob применяет частичное обновление.
// PUT /api/v1/jobs/{id}
func (h *Handler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	var req UpdateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	job, err := h.jobs.Update(r.Context(), id, req.Patch())
	if HandleServiceError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobFromDomain(job, time.Now()))
}

// DeleteJob удаляет задачу, её скрипт и строки crontab.
// DELETE /api/v1/jobs/{id}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	if HandleServiceError(w, h.logger, h.jobs.Delete(r.Context(), id), "job not found") {
		return
	}

	NoContent(w)
}

// EnableJob включает задачу.
// POST /api/v1/jobs/{id}/enable
func (h *Handler) EnableJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Enable(r.Context(), id)
	if HandleServiceError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobFromDomain(job, time.Now()))
}

// DisableJob выключает задачу.
// POST /api/v1/jobs/{id}/disable
func (h *Handler) DisableJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Disable(r.Context(), id)
	if HandleServiceError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobFromDomain(job, time.Now()))
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}
