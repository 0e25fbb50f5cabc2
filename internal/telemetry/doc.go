// Package telemetry обеспечивает наблюдаемость cronkeeper.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Метрики регистрируются в глобальном registry и отдаются на /metrics.
package telemetry
