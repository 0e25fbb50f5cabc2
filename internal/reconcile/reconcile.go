// Package reconcile сверяет реестр задач с crontab при старте сервиса
// и, если задан интервал, периодически после него.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/cronkeeper/internal/domain"
	"github.com/shaiso/cronkeeper/internal/jobs"
	"github.com/shaiso/cronkeeper/internal/repo"
	"github.com/shaiso/cronkeeper/internal/telemetry"
)

// Действия сверки для label "action".
const (
	ActionRestore = "restore"
	ActionImport  = "import"
)

// ImportNote — префикс описания задач, найденных только в crontab.
const ImportNote = "imported from crontab on "

// Reconciler — однократная сверка реестра и crontab.
type Reconciler struct {
	store     repo.JobStore
	scheduler jobs.Scheduler
	scripts   jobs.Scripts
	publisher jobs.Publisher
	logger    *slog.Logger
	mu        sync.Locker
	now       func() time.Time
}

// Config — зависимости Reconciler.
type Config struct {
	Store     repo.JobStore
	Scheduler jobs.Scheduler
	Scripts   jobs.Scripts
	Publisher jobs.Publisher // опционально
	Logger    *slog.Logger
	// Lock — общая с jobs.Service блокировка (jobs.WithLock).
	Lock sync.Locker
}

// New создаёт новый Reconciler.
func New(cfg Config) *Reconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mu := cfg.Lock
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &Reconciler{
		store:     cfg.Store,
		scheduler: cfg.Scheduler,
		scripts:   cfg.Scripts,
		publisher: cfg.Publisher,
		logger:    logger,
		mu:        mu,
		now:       time.Now,
	}
}

// Report — итог сверки.
type Report struct {
	// Restored — задачи из реестра, заново поставленные в crontab.
	Restored []string
	// Imported — строки crontab, для которых созданы записи.
	Imported []string
	// Skipped — строки crontab без тега.
	Skipped int
	// Failed — имена, которые не удалось сверить, с причиной.
	Failed map[string]error
}

// Run выполняет сверку.
//
// 1. Загружает реестр и crontab
// 2. Задачи только из реестра ставит в crontab (реестр главный)
// 3. Строки только из crontab заносит в реестр (crontab главный)
// 4. Имена, присутствующие с обеих сторон, не трогает
//
// Ошибка одного имени не прерывает сверку остальных.
// Ошибка возвращается, только если не удалось прочитать одну из сторон.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := Report{Failed: make(map[string]error)}

	// 1. Загружаем обе стороны
	registered, err := r.store.ListAll(ctx)
	if err != nil {
		return report, fmt.Errorf("load registry: %w", err)
	}
	entries, err := r.scheduler.List(ctx)
	if err != nil {
		return report, fmt.Errorf("load crontab: %w", err)
	}

	byName := make(map[string]domain.Job, len(registered))
	for _, job := range registered {
		byName[job.Name] = job
	}

	live := make(map[string]domain.Entry, len(entries))
	var liveOrder []string
	for _, e := range entries {
		if e.Name == "" {
			report.Skipped++
			continue
		}
		if _, dup := live[e.Name]; dup {
			continue
		}
		live[e.Name] = e
		liveOrder = append(liveOrder, e.Name)
	}

	// 2. Только в реестре
	for i := range registered {
		job := &registered[i]
		if _, ok := live[job.Name]; ok {
			continue
		}
		err := r.restore(ctx, job)
		r.record(&report, ActionRestore, job.Name, err)
		if err == nil {
			report.Restored = append(report.Restored, job.Name)
		}
	}

	// 3. Только в crontab
	for _, name := range liveOrder {
		if _, ok := byName[name]; ok {
			continue
		}
		err := r.importEntry(ctx, live[name])
		r.record(&report, ActionImport, name, err)
		if err == nil {
			report.Imported = append(report.Imported, name)
		}
	}

	r.logger.Info("reconciliation completed",
		"registry", len(registered),
		"crontab", len(live),
		"restored", len(report.Restored),
		"imported", len(report.Imported),
		"skipped_untagged", report.Skipped,
		"failed", len(report.Failed),
	)
	return report, nil
}

// Loop повторяет сверку каждые interval до отмены ctx.
// Ошибки тика логируются, цикл продолжается.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) {
	tk := time.NewTicker(interval)
	defer tk.Stop()

	r.logger.Info("periodic reconciliation started", "interval", interval)
	for {
		select {
		case <-tk.C:
			if _, err := r.Run(ctx); err != nil {
				r.logger.Error("periodic reconciliation failed", "error", err)
			}
		case <-ctx.Done():
			r.logger.Info("periodic reconciliation stopped")
			return
		}
	}
}

func (r *Reconciler) restore(ctx context.Context, job *domain.Job) error {
	if _, err := r.scripts.Write(ctx, job.Name, job.Command); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	hostPath := r.scripts.ResolvePath(job.Name, true)
	if !r.scheduler.Add(ctx, job.Name, job.Expression, hostPath) {
		return fmt.Errorf("add entry: %w", jobs.ErrSchedulerFailure)
	}

	// Add ставит включённую строку; выключаем только при необходимости
	if !job.Enabled && !r.scheduler.Disable(ctx, job.Name) {
		return fmt.Errorf("apply enabled=false: %w", jobs.ErrSchedulerFailure)
	}
	return nil
}

func (r *Reconciler) importEntry(ctx context.Context, e domain.Entry) error {
	// Запись, которую потом нельзя переустановить, не создаём
	if err := domain.ValidateName(e.Name); err != nil {
		return fmt.Errorf("tag not usable as job name: %w", err)
	}
	if !r.scheduler.Validate(e.Expression) {
		return fmt.Errorf("%w: %q", jobs.ErrInvalidExpression, e.Expression)
	}

	now := r.now().UTC()
	job := &domain.Job{
		ID:          uuid.New(),
		Name:        e.Name,
		Expression:  e.Expression,
		Command:     e.Command,
		Description: ImportNote + now.Format(time.RFC3339),
		Enabled:     e.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.Create(ctx, job); err != nil {
		return fmt.Errorf("create record: %w", err)
	}

	if r.publisher != nil {
		if err := r.publisher.PublishJobEvent(ctx, domain.NewJobEvent(domain.EventJobImported, *job)); err != nil {
			r.logger.Warn("publish job event failed", "type", domain.EventJobImported, "job_name", job.Name, "error", err)
		}
	}
	return nil
}

func (r *Reconciler) record(report *Report, action, name string, err error) {
	telemetry.ReconcileJobsTotal.WithLabelValues(action, telemetry.Result(err)).Inc()

	logger := telemetry.WithJobName(r.logger, name).With("action", action)
	if err != nil {
		report.Failed[name] = err
		logger.Error("reconciliation failed for job", "error", err)
		return
	}
	logger.Info("job reconciled")
}
