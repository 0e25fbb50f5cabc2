package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/cronkeeper/internal/domain"
)

const pgUniqueViolation = "23505"

const pgJobColumns = `id, name, expression, command, description, enabled, created_at, updated_at`

// PgJobRepo — реестр задач в PostgreSQL.
type PgJobRepo struct {
	pool *pgxpool.Pool
}

// NewPgJobRepo создаёт новый PgJobRepo.
func NewPgJobRepo(pool *pgxpool.Pool) *PgJobRepo {
	return &PgJobRepo{pool: pool}
}

// Migrate применяет схему.
func (r *PgJobRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Create сохраняет новую задачу.
func (r *PgJobRepo) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (` + pgJobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Name,
		job.Expression,
		job.Command,
		job.Description,
		job.Enabled,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if isPgUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID возвращает задачу по ID.
func (r *PgJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + pgJobColumns + ` FROM jobs WHERE id = $1`
	return scanPgJob(r.pool.QueryRow(ctx, query, id))
}

// GetByName возвращает задачу по имени.
func (r *PgJobRepo) GetByName(ctx context.Context, name string) (*domain.Job, error) {
	query := `SELECT ` + pgJobColumns + ` FROM jobs WHERE name = $1`
	return scanPgJob(r.pool.QueryRow(ctx, query, name))
}

// List возвращает страницу задач.
func (r *PgJobRepo) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	filter = filter.normalized()
	query := `
		SELECT ` + pgJobColumns + `
		FROM jobs
		WHERE ($1::boolean IS NULL OR enabled = $1)
		ORDER BY created_at ASC, name ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, filter.Enabled, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectPgJobs(rows)
}

// ListAll возвращает все задачи без пагинации.
func (r *PgJobRepo) ListAll(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pgJobColumns+` FROM jobs ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all jobs: %w", err)
	}
	return collectPgJobs(rows)
}

// Count возвращает число задач под фильтром (без учёта limit/offset).
func (r *PgJobRepo) Count(ctx context.Context, filter JobFilter) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE ($1::boolean IS NULL OR enabled = $1)`,
		filter.Enabled,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// Update обновляет задачу целиком.
func (r *PgJobRepo) Update(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET name = $2, expression = $3, command = $4, description = $5,
		    enabled = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Name,
		job.Expression,
		job.Command,
		job.Description,
		job.Enabled,
		job.UpdatedAt,
	)
	if isPgUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет задачу.
func (r *PgJobRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEnabled включает/выключает задачу.
func (r *PgJobRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE jobs SET enabled = $2, updated_at = NOW() WHERE id = $1
	`, id, enabled)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close закрывает пул.
func (r *PgJobRepo) Close() {
	r.pool.Close()
}

// --- Helpers ---

func scanPgJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID,
		&j.Name,
		&j.Expression,
		&j.Command,
		&j.Description,
		&j.Enabled,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

func collectPgJobs(rows pgx.Rows) ([]domain.Job, error) {
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
