package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/cronkeeper/internal/domain"
	"github.com/shaiso/cronkeeper/internal/repo"
	"github.com/shaiso/cronkeeper/internal/telemetry"
)

// Scheduler — адаптер crontab.
// Ошибки ввода-вывода не возвращаются: только признак успеха.
type Scheduler interface {
	Validate(expr string) bool
	Add(ctx context.Context, name, expr, hostPath string) bool
	Remove(ctx context.Context, name string) bool
	Enable(ctx context.Context, name string) bool
	Disable(ctx context.Context, name string) bool
	List(ctx context.Context) ([]domain.Entry, error)
}

// Scripts — хранилище исполняемых скриптов задач.
type Scripts interface {
	Write(ctx context.Context, name, command string) (string, error)
	Remove(ctx context.Context, name string) error
	ResolvePath(name string, hostView bool) string
}

// Publisher — получатель событий о задачах.
type Publisher interface {
	PublishJobEvent(ctx context.Context, event domain.JobEvent) error
}

// CreateInput — параметры новой задачи.
type CreateInput struct {
	Name        string
	Expression  string
	Command     string
	Description string
	// Enabled по умолчанию true.
	Enabled *bool
}

// Service управляет задачами.
type Service struct {
	store     repo.JobStore
	scheduler Scheduler
	scripts   Scripts
	publisher Publisher
	logger    *slog.Logger
	mu        sync.Locker
	now       func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithPublisher подключает публикацию событий.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithLock задаёт блокировку, общую со сверкой. Изменения реестра
// и crontab выполняются под ней.
func WithLock(l sync.Locker) Option {
	return func(s *Service) { s.mu = l }
}

// NewService создаёт новый Service.
func NewService(store repo.JobStore, scheduler Scheduler, scripts Scripts, opts ...Option) *Service {
	s := &Service{
		store:     store,
		scheduler: scheduler,
		scripts:   scripts,
		logger:    slog.Default(),
		mu:        &sync.Mutex{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create регистрирует задачу и ставит её в crontab.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in.Expression = strings.TrimSpace(in.Expression)
	if err := s.validate(in.Name, in.Expression, in.Command); err != nil {
		return nil, err
	}

	// Дубликат отсекается до любого обращения к crontab.
	if _, err := s.store.GetByName(ctx, in.Name); err == nil {
		return nil, fmt.Errorf("%w: job %q", ErrAlreadyExists, in.Name)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("lookup job: %w", err)
	}

	now := s.now().UTC()
	job := &domain.Job{
		ID:          uuid.New(),
		Name:        in.Name,
		Expression:  in.Expression,
		Command:     in.Command,
		Description: in.Description,
		Enabled:     in.Enabled == nil || *in.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Create(ctx, job); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: job %q", ErrAlreadyExists, in.Name)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	logger := telemetry.WithJobName(s.logger, job.Name)

	if err := s.install(ctx, job); err != nil {
		// Компенсация: запись без строки crontab не оставляем.
		if delErr := s.store.Delete(ctx, job.ID); delErr != nil {
			logger.Error("compensation failed: job record left without crontab entry",
				"job_id", job.ID, "error", delErr)
		}
		s.uninstall(ctx, job.Name)
		logger.Warn("job not created", "error", err)
		return nil, err
	}

	logger.Info("job created", "job_id", job.ID, "expression", job.Expression, "enabled", job.Enabled)
	s.publish(ctx, domain.EventJobCreated, job)
	return job, nil
}

// Get возвращает задачу по ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List возвращает страницу задач и общее число под фильтром.
func (s *Service) List(ctx context.Context, filter repo.JobFilter) ([]domain.Job, int, error) {
	jobs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// Update применяет патч к задаче.
// Если изменились поля, влияющие на crontab, скрипт и строка пересоздаются.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch domain.JobPatch) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validatePatch(patch); err != nil {
		return nil, err
	}

	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return job, nil
	}
	prev := *job

	if patch.Name != nil && *patch.Name != prev.Name {
		if _, err := s.store.GetByName(ctx, *patch.Name); err == nil {
			return nil, fmt.Errorf("%w: job %q", ErrAlreadyExists, *patch.Name)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("lookup job: %w", err)
		}
	}

	changed := patch.Apply(job)
	job.UpdatedAt = s.now().UTC()

	if err := s.store.Update(ctx, job); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: job %q", ErrAlreadyExists, job.Name)
		}
		return nil, err
	}

	logger := telemetry.WithJobName(s.logger, job.Name)

	if changed {
		if err := s.resync(ctx, &prev, job); err != nil {
			s.rollbackUpdate(ctx, &prev, job)
			logger.Warn("job update rolled back", "job_id", job.ID, "error", err)
			return nil, err
		}
	}

	logger.Info("job updated", "job_id", job.ID, "scheduler_changed", changed)
	s.publish(ctx, domain.EventJobUpdated, job)
	return job, nil
}

// resync приводит crontab и скрипт в соответствие с обновлённой задачей.
func (s *Service) resync(ctx context.Context, prev, job *domain.Job) error {
	renamed := prev.Name != job.Name
	scheduleChanged := renamed || prev.Expression != job.Expression || prev.Command != job.Command

	if !scheduleChanged {
		return s.toggle(ctx, job, job.Enabled)
	}

	if err := s.install(ctx, job); err != nil {
		return err
	}
	if renamed {
		if !s.scheduler.Remove(ctx, prev.Name) {
			return fmt.Errorf("%w: remove entry %q", ErrSchedulerFailure, prev.Name)
		}
		if err := s.scripts.Remove(ctx, prev.Name); err != nil {
			s.logger.Warn("stale script not removed", "job_name", prev.Name, "error", err)
		}
	}
	return nil
}

// rollbackUpdate возвращает реестр и crontab к состоянию prev.
func (s *Service) rollbackUpdate(ctx context.Context, prev, job *domain.Job) {
	logger := telemetry.WithJobName(s.logger, prev.Name)

	if err := s.store.Update(ctx, prev); err != nil {
		logger.Error("rollback: restore record failed", "job_id", prev.ID, "error", err)
	}
	if prev.Name != job.Name {
		s.uninstall(ctx, job.Name)
	}
	if err := s.install(ctx, prev); err != nil {
		logger.Error("rollback: restore crontab entry failed", "job_id", prev.ID, "error", err)
	}
}

// Delete снимает задачу с crontab, удаляет скрипт и запись.
// Если crontab изменить не удалось, запись сохраняется.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	logger := telemetry.WithJobName(s.logger, job.Name)

	if !s.scheduler.Remove(ctx, job.Name) {
		return fmt.Errorf("%w: remove entry %q", ErrSchedulerFailure, job.Name)
	}
	if err := s.scripts.Remove(ctx, job.Name); err != nil {
		logger.Warn("script not removed", "error", err)
	}
	if err := s.store.Delete(ctx, job.ID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}

	logger.Info("job deleted", "job_id", job.ID)
	s.publish(ctx, domain.EventJobDeleted, job)
	return nil
}

// Enable включает задачу.
func (s *Service) Enable(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.setEnabled(ctx, id, true)
}

// Disable выключает задачу, не удаляя строку crontab.
func (s *Service) Disable(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.setEnabled(ctx, id, false)
}

func (s *Service) setEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Сначала crontab, потом реестр.
	prev := job.Enabled
	job.Enabled = enabled
	if err := s.toggle(ctx, job, enabled); err != nil {
		return nil, err
	}
	if err := s.store.SetEnabled(ctx, job.ID, enabled); err != nil {
		// Возвращаем строку crontab в состояние реестра
		if !s.setEntryEnabled(ctx, job.Name, prev) {
			telemetry.WithJobName(s.logger, job.Name).Error("rollback failed: crontab entry differs from registry",
				"job_id", job.ID, "enabled", prev)
		}
		return nil, fmt.Errorf("set enabled: %w", err)
	}
	job.UpdatedAt = s.now().UTC()

	event := domain.EventJobDisabled
	if enabled {
		event = domain.EventJobEnabled
	}
	telemetry.WithJobName(s.logger, job.Name).Info("job toggled", "job_id", job.ID, "enabled", enabled)
	s.publish(ctx, event, job)
	return job, nil
}

// toggle переключает строку crontab; пропавшую строку ставит заново.
func (s *Service) toggle(ctx context.Context, job *domain.Job, enabled bool) error {
	entries, err := s.scheduler.List(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchedulerFailure, err)
	}
	if !hasEntry(entries, job.Name) {
		telemetry.WithJobName(s.logger, job.Name).Warn("crontab entry missing, reinstalling")
		return s.install(ctx, job)
	}

	if !s.setEntryEnabled(ctx, job.Name, enabled) {
		return fmt.Errorf("%w: toggle entry %q", ErrSchedulerFailure, job.Name)
	}
	return nil
}

func (s *Service) setEntryEnabled(ctx context.Context, name string, enabled bool) bool {
	if enabled {
		return s.scheduler.Enable(ctx, name)
	}
	return s.scheduler.Disable(ctx, name)
}

// SystemEntries возвращает все строки crontab, включая чужие.
func (s *Service) SystemEntries(ctx context.Context) ([]domain.Entry, error) {
	entries, err := s.scheduler.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchedulerFailure, err)
	}
	return entries, nil
}

// ValidateExpression проверяет cron-выражение.
func (s *Service) ValidateExpression(expr string) bool {
	return s.scheduler.Validate(strings.TrimSpace(expr))
}

// install пишет скрипт и ставит строку crontab с флагом job.Enabled.
func (s *Service) install(ctx context.Context, job *domain.Job) error {
	if _, err := s.scripts.Write(ctx, job.Name, job.Command); err != nil {
		return fmt.Errorf("%w: %v", ErrSchedulerFailure, err)
	}
	hostPath := s.scripts.ResolvePath(job.Name, true)
	if !s.scheduler.Add(ctx, job.Name, job.Expression, hostPath) {
		return fmt.Errorf("%w: add entry %q", ErrSchedulerFailure, job.Name)
	}
	if !job.Enabled && !s.scheduler.Disable(ctx, job.Name) {
		return fmt.Errorf("%w: disable entry %q", ErrSchedulerFailure, job.Name)
	}
	return nil
}

// uninstall убирает строку и скрипт, ошибки только логирует.
func (s *Service) uninstall(ctx context.Context, name string) {
	s.scheduler.Remove(ctx, name)
	if err := s.scripts.Remove(ctx, name); err != nil {
		s.logger.Warn("script not removed", "job_name", name, "error", err)
	}
}

func (s *Service) validate(name, expr, command string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	if !s.scheduler.Validate(expr) {
		return fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
	}
	if strings.TrimSpace(command) == "" {
		return ErrInvalidCommand
	}
	return nil
}

func (s *Service) validatePatch(p domain.JobPatch) error {
	if p.Name != nil {
		if err := domain.ValidateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Expression != nil && !s.scheduler.Validate(strings.TrimSpace(*p.Expression)) {
		return fmt.Errorf("%w: %q", ErrInvalidExpression, *p.Expression)
	}
	if p.Command != nil && strings.TrimSpace(*p.Command) == "" {
		return ErrInvalidCommand
	}
	return nil
}

func (s *Service) publish(ctx context.Context, t domain.EventType, job *domain.Job) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishJobEvent(ctx, domain.NewJobEvent(t, *job))
	if err != nil {
		s.logger.Warn("publish job event failed", "type", t, "job_name", job.Name, "error", err)
	}
}

func hasEntry(entries []domain.Entry, name string) bool {
	for _, e := range entries {
		if e.Name == name {
			return true
		}
	}
	return false
}
