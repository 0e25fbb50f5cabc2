package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaiso/cronkeeper/internal/domain"
)

// DefaultListLimit — размер страницы List, если limit не задан.
const DefaultListLimit = 100

// JobStore — персистентный реестр задач.
//
// Имя задачи уникально; нарушение уникальности возвращается как
// ErrAlreadyExists, отсутствие записи — как ErrNotFound.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	GetByName(ctx context.Context, name string) (*domain.Job, error)
	List(ctx context.Context, filter JobFilter) ([]domain.Job, error)
	ListAll(ctx context.Context) ([]domain.Job, error)
	Count(ctx context.Context, filter JobFilter) (int, error)
	Update(ctx context.Context, job *domain.Job) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	Close()
}

// JobFilter — параметры фильтрации задач.
type JobFilter struct {
	Enabled *bool
	Limit   int
	Offset  int
}

func (f JobFilter) normalized() JobFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
