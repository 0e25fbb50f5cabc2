package repo

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/postgres.sql
var postgresSchema string

//go:embed migrations/sqlite.sql
var sqliteSchema string

// Open открывает реестр по DSN.
//
// Префиксы "sqlite:" и "file:" или путь, оканчивающийся на ".db",
// выбирают SQLite; всё остальное считается строкой подключения PostgreSQL.
// Схема применяется при открытии.
func Open(ctx context.Context, dsn string) (JobStore, error) {
	if path, ok := sqlitePath(dsn); ok {
		return OpenSQLite(ctx, path)
	}

	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	r := NewPgJobRepo(pool)
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func sqlitePath(dsn string) (string, bool) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return strings.TrimPrefix(dsn, "sqlite://"), true
	case strings.HasPrefix(dsn, "sqlite:"):
		return strings.TrimPrefix(dsn, "sqlite:"), true
	case strings.HasPrefix(dsn, "file:"):
		return dsn, true
	case strings.HasSuffix(dsn, ".db"), dsn == ":memory:":
		return dsn, true
	}
	return "", false
}

// NewPool создаёт пул соединений PostgreSQL и проверяет доступность БД.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}
