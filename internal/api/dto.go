package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/cronkeeper/internal/crontab"
	"github.com/shaiso/cronkeeper/internal/domain"
)

// Job DTOs

// CreateJobRequest — запрос на создание задачи.
type CreateJobRequest struct {
	Name        string `json:"name"`
	Expression  string `json:"expression"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// UpdateJobRequest — частичное обновление задачи.
type UpdateJobRequest struct {
	Name        *string `json:"name,omitempty"`
	Expression  *string `json:"expression,omitempty"`
	Command     *string `json:"command,omitempty"`
	Description *string `json:"description,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// Patch конвертирует запрос в domain.JobPatch.
func (r UpdateJobRequest) Patch() domain.JobPatch {
	return domain.JobPatch{
		Name:        r.Name,
		Expression:  r.Expression,
		Command:     r.Command,
		Description: r.Description,
		Enabled:     r.Enabled,
	}
}

// JobResponse — ответ с задачей.
type JobResponse struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Expression  string     `json:"expression"`
	Command     string     `json:"command"`
	Description string     `json:"description,omitempty"`
	Enabled     bool       `json:"enabled"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// JobFromDomain конвертирует domain.Job в JobResponse.
// NextRunAt заполняется только для включённых задач.
func JobFromDomain(j *domain.Job, now time.Time) JobResponse {
	resp := JobResponse{
		ID:          j.ID,
		Name:        j.Name,
		Expression:  j.Expression,
		Command:     j.Command,
		Description: j.Description,
		Enabled:     j.Enabled,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	if j.Enabled {
		if next, err := crontab.NextRun(j.Expression, now); err == nil {
			resp.NextRunAt = &next
		}
	}
	return resp
}

// System DTOs

// EntryResponse — строка живого crontab.
type EntryResponse struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Command    string `json:"command"`
	Enabled    bool   `json:"enabled"`
	Managed    bool   `json:"managed"`
}

// EntryFromDomain конвертирует domain.Entry в EntryResponse.
func EntryFromDomain(e domain.Entry) EntryResponse {
	return EntryResponse{
		Name:       e.Name,
		Expression: e.Expression,
		Command:    e.Command,
		Enabled:    e.Enabled,
		Managed:    e.Name != "",
	}
}

// ValidateRequest — запрос на проверку выражения.
type ValidateRequest struct {
	Expression string `json:"expression"`
}

// ValidateResponse — результат проверки.
type ValidateResponse struct {
	Valid bool `json:"valid"`
}

// HealthResponse — ответ /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}
