package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/cronkeeper/internal/domain"
	"github.com/shaiso/cronkeeper/internal/jobs"
	"github.com/shaiso/cronkeeper/internal/repo"
)

// JobService — операции над задачами, доступные API.
type JobService interface {
	Create(ctx context.Context, in jobs.CreateInput) (*domain.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, filter repo.JobFilter) ([]domain.Job, int, error)
	Update(ctx context.Context, id uuid.UUID, patch domain.JobPatch) (*domain.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Enable(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	Disable(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	SystemEntries(ctx context.Context) ([]domain.Entry, error)
	ValidateExpression(expr string) bool
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	jobs   JobService
	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Jobs   JobService
	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		jobs:   cfg.Jobs,
		logger: logger,
	}
}
