package crontab

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/cronkeeper/internal/domain"
	"github.com/shaiso/cronkeeper/internal/telemetry"
)

// Scheduler — единственный, кто изменяет crontab.
//
// Каждая операция заново читает таблицу, меняет её и записывает обратно.
// Ошибки ввода-вывода не выходят за пределы адаптера: они логируются
// и превращаются в false.
type Scheduler struct {
	transport Transport
	logger    *slog.Logger

	// mu сериализует read-modify-write внутри процесса.
	// От внешних писателей crontab не защищает.
	mu sync.Mutex
}

// NewScheduler создаёт Scheduler поверх транспорта.
func NewScheduler(transport Transport, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		transport: transport,
		logger:    logger.With("transport", transport.String()),
	}
}

// Validate сообщает, разбирается ли выражение. Таблицу не трогает.
func (s *Scheduler) Validate(expr string) bool {
	return ValidateExpression(expr) == nil
}

// Add добавляет задачу с тегом name. Существующие строки с тем же тегом
// заменяются, поэтому повторный Add не плодит дубликаты.
func (s *Scheduler) Add(ctx context.Context, name, expr, hostPath string) bool {
	return s.mutate(ctx, "add", name, func(t *Table) (bool, error) {
		if err := domain.ValidateName(name); err != nil {
			return false, err
		}
		if err := ValidateExpression(expr); err != nil {
			return false, err
		}
		if replaced := t.Remove(name); replaced > 0 {
			s.logger.Warn("replacing existing crontab entries", "job_name", name, "count", replaced)
		}
		t.Append(domain.Entry{
			Name:       name,
			Expression: expr,
			Command:    hostPath,
			Enabled:    true,
		})
		return true, nil
	})
}

// Remove удаляет все строки с тегом name. Отсутствие строк — успех.
func (s *Scheduler) Remove(ctx context.Context, name string) bool {
	return s.mutate(ctx, "remove", name, func(t *Table) (bool, error) {
		return t.Remove(name) > 0, nil
	})
}

// Enable включает все строки с тегом name.
func (s *Scheduler) Enable(ctx context.Context, name string) bool {
	return s.mutate(ctx, "enable", name, func(t *Table) (bool, error) {
		return t.SetEnabled(name, true) > 0, nil
	})
}

// Disable выключает (комментирует) все строки с тегом name.
func (s *Scheduler) Disable(ctx context.Context, name string) bool {
	return s.mutate(ctx, "disable", name, func(t *Table) (bool, error) {
		return t.SetEnabled(name, false) > 0, nil
	})
}

// List возвращает все задачи crontab.
func (s *Scheduler) List(ctx context.Context) ([]domain.Entry, error) {
	data, err := s.transport.Read(ctx)
	telemetry.SchedulerOperationsTotal.WithLabelValues("list", telemetry.Result(err)).Inc()
	if err != nil {
		s.logger.Error("failed to read crontab", "error", err)
		return nil, fmt.Errorf("read crontab: %w", err)
	}
	return Parse(data).Entries(), nil
}

// mutate выполняет цикл чтение-изменение-запись.
// fn возвращает true, если таблицу нужно записать.
func (s *Scheduler) mutate(ctx context.Context, op, name string, fn func(*Table) (bool, error)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := telemetry.WithJobName(s.logger, name).With("op", op)

	err := func() error {
		data, err := s.transport.Read(ctx)
		if err != nil {
			return fmt.Errorf("read crontab: %w", err)
		}

		table := Parse(data)
		dirty, err := fn(table)
		if err != nil {
			return err
		}
		if !dirty {
			logger.Debug("crontab unchanged")
			return nil
		}

		if err := s.transport.Write(ctx, table.Bytes()); err != nil {
			return fmt.Errorf("write crontab: %w", err)
		}
		return nil
	}()

	telemetry.SchedulerOperationsTotal.WithLabelValues(op, telemetry.Result(err)).Inc()
	if err != nil {
		logger.Error("crontab operation failed", "error", err)
		return false
	}

	logger.Debug("crontab operation completed")
	return true
}
