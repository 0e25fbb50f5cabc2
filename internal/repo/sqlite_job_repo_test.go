package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/cronkeeper/internal/domain"
)

func newTestSQLite(t *testing.T) *SQLiteJobRepo {
	t.Helper()
	r, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func newTestJob(name string, createdAt time.Time) *domain.Job {
	return &domain.Job{
		ID:          uuid.New(),
		Name:        name,
		Expression:  "0 2 * * *",
		Command:     "/usr/bin/backup.sh",
		Description: "nightly",
		Enabled:     true,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestSQLiteJobRepo_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := newTestSQLite(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	job := newTestJob("nightly-backup", now)
	require.NoError(t, r.Create(ctx, job))

	got, err := r.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Name, got.Name)
	assert.Equal(t, job.Expression, got.Expression)
	assert.Equal(t, job.Command, got.Command)
	assert.Equal(t, job.Description, got.Description)
	assert.True(t, got.Enabled)
	assert.True(t, job.CreatedAt.Equal(got.CreatedAt))

	byName, err := r.GetByName(ctx, "nightly-backup")
	require.NoError(t, err)
	assert.Equal(t, job.ID, byName.ID)
}

func TestSQLiteJobRepo_DuplicateName(t *testing.T) {
	ctx := context.Background()
	r := newTestSQLite(t)

	require.NoError(t, r.Create(ctx, newTestJob("dup", time.Now())))
	err := r.Create(ctx, newTestJob("dup", time.Now()))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	other := newTestJob("other", time.Now())
	require.NoError(t, r.Create(ctx, other))
	other.Name = "dup"
	assert.ErrorIs(t, r.Update(ctx, other), ErrAlreadyExists)
}

func TestSQLiteJobRepo_NotFound(t *testing.T) {
	ctx := context.Background()
	r := newTestSQLite(t)

	_, err := r.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.GetByName(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, r.Delete(ctx, uuid.New()), ErrNotFound)
	assert.ErrorIs(t, r.SetEnabled(ctx, uuid.New(), false), ErrNotFound)
	assert.ErrorIs(t, r.Update(ctx, newTestJob("ghost", time.Now())), ErrNotFound)
}

func TestSQLiteJobRepo_ListFilterAndPaging(t *testing.T) {
	ctx := context.Background()
	r := newTestSQLite(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"a", "b", "c", "d"} {
		job := newTestJob(name, base.Add(time.Duration(i)*time.Second))
		job.Enabled = i%2 == 0
		require.NoError(t, r.Create(ctx, job))
	}

	all, err := r.List(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "d", all[3].Name)

	enabled := true
	on, err := r.List(ctx, JobFilter{Enabled: &enabled})
	require.NoError(t, err)
	require.Len(t, on, 2)
	assert.Equal(t, "a", on[0].Name)
	assert.Equal(t, "c", on[1].Name)

	n, err := r.Count(ctx, JobFilter{Enabled: &enabled})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page, err := r.List(ctx, JobFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].Name)
	assert.Equal(t, "c", page[1].Name)
}

func TestSQLiteJobRepo_UpdateSetEnabledDelete(t *testing.T) {
	ctx := context.Background()
	r := newTestSQLite(t)

	job := newTestJob("report", time.Now())
	require.NoError(t, r.Create(ctx, job))

	job.Expression = "*/5 * * * *"
	job.Command = "echo hi"
	job.UpdatedAt = time.Now()
	require.NoError(t, r.Update(ctx, job))

	require.NoError(t, r.SetEnabled(ctx, job.ID, false))
	got, err := r.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", got.Expression)
	assert.Equal(t, "echo hi", got.Command)
	assert.False(t, got.Enabled)

	require.NoError(t, r.Delete(ctx, job.ID))
	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOpen_SelectsSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")

	for _, dsn := range []string{"sqlite:" + path, path} {
		store, err := Open(context.Background(), dsn)
		require.NoError(t, err, dsn)
		_, ok := store.(*SQLiteJobRepo)
		assert.True(t, ok, dsn)
		store.Close()
	}
}

func TestSQLitePath(t *testing.T) {
	tests := []struct {
		dsn    string
		path   string
		sqlite bool
	}{
		{"sqlite:cronkeeper.db", "cronkeeper.db", true},
		{"sqlite:///var/lib/ck.db", "/var/lib/ck.db", true},
		{"file:jobs.db?cache=shared", "file:jobs.db?cache=shared", true},
		{"/tmp/jobs.db", "/tmp/jobs.db", true},
		{"postgresql://u:p@localhost:5432/ck", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			path, ok := sqlitePath(tt.dsn)
			assert.Equal(t, tt.sqlite, ok)
			assert.Equal(t, tt.path, path)
		})
	}
}
