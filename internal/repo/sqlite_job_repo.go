package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/shaiso/cronkeeper/internal/domain"
)

const sqliteJobColumns = `id, name, expression, command, description, enabled, created_at, updated_at`

// sqliteTimeLayout — фиксированная ширина, чтобы ORDER BY по тексту совпадал с порядком времени.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteJobRepo — реестр задач в локальном файле SQLite.
//
// Время хранится текстом в UTC, ID — как текст.
type SQLiteJobRepo struct {
	db *sql.DB
}

// OpenSQLite открывает (или создаёт) базу и применяет схему.
func OpenSQLite(ctx context.Context, path string) (*SQLiteJobRepo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Один писатель: все запросы идут через одно соединение.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000")
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteJobRepo{db: db}, nil
}

// Create сохраняет новую задачу.
func (r *SQLiteJobRepo) Create(ctx context.Context, job *domain.Job) error {
	query := `INSERT INTO jobs (` + sqliteJobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		job.ID.String(),
		job.Name,
		job.Expression,
		job.Command,
		job.Description,
		job.Enabled,
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
	)
	if isSQLiteUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID возвращает задачу по ID.
func (r *SQLiteJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + sqliteJobColumns + ` FROM jobs WHERE id = ?`
	return scanSQLiteJob(r.db.QueryRowContext(ctx, query, id.String()))
}

// GetByName возвращает задачу по имени.
func (r *SQLiteJobRepo) GetByName(ctx context.Context, name string) (*domain.Job, error) {
	query := `SELECT ` + sqliteJobColumns + ` FROM jobs WHERE name = ?`
	return scanSQLiteJob(r.db.QueryRowContext(ctx, query, name))
}

// List возвращает страницу задач.
func (r *SQLiteJobRepo) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	filter = filter.normalized()
	query := `
		SELECT ` + sqliteJobColumns + `
		FROM jobs
		WHERE (? IS NULL OR enabled = ?)
		ORDER BY created_at ASC, name ASC
		LIMIT ? OFFSET ?
	`
	enabled := nullBool(filter.Enabled)
	rows, err := r.db.QueryContext(ctx, query, enabled, enabled, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectSQLiteJobs(rows)
}

// ListAll возвращает все задачи без пагинации.
func (r *SQLiteJobRepo) ListAll(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteJobColumns+` FROM jobs ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all jobs: %w", err)
	}
	return collectSQLiteJobs(rows)
}

// Count возвращает число задач под фильтром (без учёта limit/offset).
func (r *SQLiteJobRepo) Count(ctx context.Context, filter JobFilter) (int, error) {
	enabled := nullBool(filter.Enabled)
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE (? IS NULL OR enabled = ?)`,
		enabled, enabled,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// Update обновляет задачу целиком.
func (r *SQLiteJobRepo) Update(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET name = ?, expression = ?, command = ?, description = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		job.Name,
		job.Expression,
		job.Command,
		job.Description,
		job.Enabled,
		formatTime(job.UpdatedAt),
		job.ID.String(),
	)
	if isSQLiteUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return requireAffected(result)
}

// Delete удаляет задачу.
func (r *SQLiteJobRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return requireAffected(result)
}

// SetEnabled включает/выключает задачу.
func (r *SQLiteJobRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, formatTime(time.Now()), id.String(),
	)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	return requireAffected(result)
}

// Close закрывает базу.
func (r *SQLiteJobRepo) Close() {
	_ = r.db.Close()
}

// --- Helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row rowScanner) (*domain.Job, error) {
	var (
		j                    domain.Job
		id                   string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&id,
		&j.Name,
		&j.Expression,
		&j.Command,
		&j.Description,
		&j.Enabled,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if j.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", id, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &j, nil
}

func collectSQLiteJobs(rows *sql.Rows) ([]domain.Job, error) {
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func isSQLiteUniqueViolation(err error) bool {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
