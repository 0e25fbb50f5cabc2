package jobs

import (
	"errors"

	"github.com/shaiso/cronkeeper/internal/domain"
	"github.com/shaiso/cronkeeper/internal/repo"
)

// Ошибки сервиса задач.
var (
	// ErrInvalidExpression — cron-выражение не проходит проверку.
	ErrInvalidExpression = errors.New("invalid cron expression")

	// ErrInvalidCommand — пустая команда.
	ErrInvalidCommand = errors.New("command is required")

	// ErrSchedulerFailure — crontab или скрипт не удалось изменить.
	ErrSchedulerFailure = errors.New("scheduler failure")

	// ErrInvalidName — см. domain.ErrInvalidName.
	ErrInvalidName = domain.ErrInvalidName

	// ErrNotFound — задача не найдена.
	ErrNotFound = repo.ErrNotFound

	// ErrAlreadyExists — имя уже занято.
	ErrAlreadyExists = repo.ErrAlreadyExists
)
