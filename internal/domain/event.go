package domain

import "time"

// EventType — тип события жизненного цикла задачи.
// Используется как routing key в обменнике событий.
type EventType string

// Типы событий.
const (
	EventJobCreated  EventType = "job.created"
	EventJobUpdated  EventType = "job.updated"
	EventJobDeleted  EventType = "job.deleted"
	EventJobEnabled  EventType = "job.enabled"
	EventJobDisabled EventType = "job.disabled"
	EventJobImported EventType = "job.imported"
)

// JobEvent — событие об изменении задачи.
type JobEvent struct {
	Type       EventType `json:"type"`
	Job        Job       `json:"job"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewJobEvent создаёт событие для снимка задачи.
func NewJobEvent(t EventType, job Job) JobEvent {
	return JobEvent{Type: t, Job: job, OccurredAt: time.Now().UTC()}
}
