package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Job — определение задачи, которая исполняется системным crontab.
//
// Запись в реестре является источником истины для метаданных задачи.
// Name одновременно служит:
//   - тегом (комментарием) строки в crontab;
//   - базовым именем сгенерированного скрипта.
type Job struct {
	// ID — уникальный идентификатор задачи.
	ID uuid.UUID `json:"id"`

	// Name — уникальное имя задачи.
	Name string `json:"name"`

	// Expression — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели" или с секундами впереди.
	// Примеры:
	//   "0 2 * * *"     — каждый день в 2:00
	//   "*/5 * * * *"   — каждые 5 минут
	Expression string `json:"expression"`

	// Command — текст shell-команды, попадает в скрипт как есть.
	Command string `json:"command"`

	// Description — произвольное описание.
	Description string `json:"description,omitempty"`

	// Enabled — если false, в crontab не должно быть активной строки.
	Enabled bool `json:"enabled"`

	// CreatedAt и UpdatedAt назначаются реестром.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaxNameLength — максимальная длина имени задачи.
const MaxNameLength = 64

// Имя становится именем файла и комментарием строки crontab,
// поэтому пробелы, '/' и '#' запрещены.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ErrInvalidName — имя задачи не подходит для файла и тега crontab.
var ErrInvalidName = errors.New("invalid job name")

// ValidateName проверяет имя задачи.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidName, MaxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q (allowed: letters, digits, '.', '_', '-')", ErrInvalidName, name)
	}
	return nil
}

// JobPatch — частичное обновление задачи.
// nil-поле означает «не менять».
type JobPatch struct {
	Name        *string
	Expression  *string
	Command     *string
	Description *string
	Enabled     *bool
}

// IsEmpty возвращает true, если патч ничего не меняет.
func (p JobPatch) IsEmpty() bool {
	return p.Name == nil && p.Expression == nil && p.Command == nil &&
		p.Description == nil && p.Enabled == nil
}

// Apply применяет заданные поля к job и возвращает true,
// если изменилось что-то, что отражается в crontab или скрипте.
func (p JobPatch) Apply(job *Job) bool {
	changed := false

	if p.Name != nil && *p.Name != job.Name {
		job.Name = *p.Name
		changed = true
	}
	if p.Expression != nil && strings.TrimSpace(*p.Expression) != job.Expression {
		job.Expression = strings.TrimSpace(*p.Expression)
		changed = true
	}
	if p.Command != nil && *p.Command != job.Command {
		job.Command = *p.Command
		changed = true
	}
	if p.Enabled != nil && *p.Enabled != job.Enabled {
		job.Enabled = *p.Enabled
		changed = true
	}
	if p.Description != nil {
		job.Description = *p.Description
	}

	return changed
}
