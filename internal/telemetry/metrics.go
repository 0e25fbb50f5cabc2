package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты операций для label "result".
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	// HTTPRequestsTotal — количество HTTP запросов к API.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronkeeper_http_requests_total",
		Help: "Total HTTP requests handled by the cronkeeper API",
	}, []string{"method", "status"})

	// HTTPRequestDuration — длительность обработки HTTP запросов.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cronkeeper_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	// SchedulerOperationsTotal — операции адаптера crontab.
	SchedulerOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronkeeper_scheduler_operations_total",
		Help: "Crontab adapter operations by type and result",
	}, []string{"op", "result"})

	// ReconcileJobsTotal — действия сверки при старте.
	ReconcileJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronkeeper_reconcile_jobs_total",
		Help: "Startup reconciliation actions by type and result",
	}, []string{"action", "result"})

	// AMQPReconnectsTotal — попытки переподключения к RabbitMQ.
	AMQPReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronkeeper_amqp_reconnects_total",
		Help: "RabbitMQ reconnect attempts by connection name and result",
	}, []string{"connection", "result"})

	// EventsPublishedTotal — опубликованные события задач.
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronkeeper_events_published_total",
		Help: "Job lifecycle events published to RabbitMQ",
	}, []string{"type", "result"})
)

// Result возвращает значение label "result" для ошибки.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// ResultBool возвращает значение label "result" для булева исхода.
func ResultBool(ok bool) string {
	if ok {
		return ResultOK
	}
	return ResultError
}
