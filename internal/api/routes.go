package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Metrics(),
	)

	// Jobs
	mux.Handle("GET /api/v1/jobs", chain(http.HandlerFunc(h.ListJobs)))
	mux.Handle("POST /api/v1/jobs", chain(http.HandlerFunc(h.CreateJob)))
	mux.Handle("GET /api/v1/jobs/{id}", chain(http.HandlerFunc(h.GetJob)))
	mux.Handle("PUT /api/v1/jobs/{id}", chain(http.HandlerFunc(h.UpdateJob)))
	mux.Handle("DELETE /api/v1/jobs/{id}", chain(http.HandlerFunc(h.DeleteJob)))
	mux.Handle("POST /api/v1/jobs/{id}/enable", chain(http.HandlerFunc(h.EnableJob)))
	mux.Handle("POST /api/v1/jobs/{id}/disable", chain(http.HandlerFunc(h.DisableJob)))

	// System
	mux.Handle("GET /api/v1/system/jobs", chain(http.HandlerFunc(h.ListSystemJobs)))
	mux.Handle("POST /api/v1/system/validate", chain(http.HandlerFunc(h.ValidateExpression)))

	// Service
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
}
