package reconcile

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/cronkeeper/internal/crontab"
	"github.com/shaiso/cronkeeper/internal/domain"
	"github.com/shaiso/cronkeeper/internal/jobs"
	"github.com/shaiso/cronkeeper/internal/repo"
	"github.com/shaiso/cronkeeper/internal/scriptstore"
)

// failingAdd отказывает в Add для выбранных имён.
type failingAdd struct {
	*crontab.Scheduler
	names map[string]bool
}

func (f *failingAdd) Add(ctx context.Context, name, expr, hostPath string) bool {
	if f.names[name] {
		return false
	}
	return f.Scheduler.Add(ctx, name, expr, hostPath)
}

type env struct {
	store     *repo.SQLiteJobRepo
	scheduler *crontab.Scheduler
	transport *crontab.MemoryTransport
	scripts   *scriptstore.Store
	fs        afero.Fs
	logger    *slog.Logger
}

func newEnv(t *testing.T, initial string) *env {
	t.Helper()
	store, err := repo.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := crontab.NewMemoryTransport(initial)
	fs := afero.NewMemMapFs()
	return &env{
		store:     store,
		scheduler: crontab.NewScheduler(tr, logger),
		transport: tr,
		scripts:   scriptstore.New(fs, "/scripts", "", scriptstore.WithLogger(logger)),
		fs:        fs,
		logger:    logger,
	}
}

func (e *env) register(t *testing.T, name, expr, command string, enabled bool) {
	t.Helper()
	now := time.Now()
	require.NoError(t, e.store.Create(context.Background(), &domain.Job{
		ID: uuid.New(), Name: name, Expression: expr, Command: command,
		Enabled: enabled, CreatedAt: now, UpdatedAt: now,
	}))
}

func (e *env) reconciler(s jobs.Scheduler) *Reconciler {
	return New(Config{Store: e.store, Scheduler: s, Scripts: e.scripts, Logger: e.logger})
}

func entryByName(t *testing.T, s *crontab.Scheduler, name string) (domain.Entry, bool) {
	t.Helper()
	entries, err := s.List(context.Background())
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return domain.Entry{}, false
}

func TestRun_RestoresAndImports(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "*/15 * * * * /opt/scripts/B.sh # B\n")
	e.register(t, "A", "0 2 * * *", "echo A", true)

	report, err := e.reconciler(e.scheduler).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, report.Restored)
	assert.Equal(t, []string{"B"}, report.Imported)
	assert.Empty(t, report.Failed)

	a, ok := entryByName(t, e.scheduler, "A")
	require.True(t, ok, "A must be in crontab")
	assert.True(t, a.Enabled)
	assert.Equal(t, "0 2 * * *", a.Expression)
	assert.Equal(t, "/scripts/A.sh", a.Command)

	exists, err := afero.Exists(e.fs, "/scripts/A.sh")
	require.NoError(t, err)
	assert.True(t, exists)

	b, err := e.store.GetByName(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "*/15 * * * *", b.Expression)
	assert.Equal(t, "/opt/scripts/B.sh", b.Command)
	assert.True(t, b.Enabled)
	assert.True(t, strings.HasPrefix(b.Description, ImportNote))
}

func TestRun_RestoresDisabledJob(t *testing.T) {
	e := newEnv(t, "")
	e.register(t, "paused", "0 4 * * *", "echo", false)

	_, err := e.reconciler(e.scheduler).Run(context.Background())
	require.NoError(t, err)

	entry, ok := entryByName(t, e.scheduler, "paused")
	require.True(t, ok)
	assert.False(t, entry.Enabled)
}

func TestRun_ImportKeepsDisabledFlag(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "# 0 5 * * * /bin/true # manual\n")

	_, err := e.reconciler(e.scheduler).Run(ctx)
	require.NoError(t, err)

	job, err := e.store.GetByName(ctx, "manual")
	require.NoError(t, err)
	assert.False(t, job.Enabled)
}

func TestRun_BothSidesUntouched(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "0 1 * * * /scripts/same.sh # same\n")
	e.register(t, "same", "30 6 * * *", "echo diverged", true)

	report, err := e.reconciler(e.scheduler).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Restored)
	assert.Empty(t, report.Imported)
	assert.Equal(t, 0, e.transport.Writes())

	job, err := e.store.GetByName(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, "30 6 * * *", job.Expression)
}

func TestRun_SkipsUntaggedEntries(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "MAILTO=ops\n0 0 * * * /usr/bin/legacy\n")

	report, err := e.reconciler(e.scheduler).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)

	all, err := e.store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRun_ImportValidatesTagAndExpression(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "@daily /opt/rotate.sh # rotate\n"+
		"0 3 * * * /opt/backup.sh # daily backup\n"+
		"@reboot /opt/warmup.sh # warmup\n")

	report, err := e.reconciler(e.scheduler).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"rotate"}, report.Imported)
	assert.Contains(t, report.Failed, "daily backup")
	assert.Contains(t, report.Failed, "warmup")

	all, err := e.store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	// Импортированная задача переустанавливается через сервис
	svc := jobs.NewService(e.store, e.scheduler, e.scripts)
	cmd := "/opt/rotate.sh --compress"
	updated, err := svc.Update(ctx, all[0].ID, domain.JobPatch{Command: &cmd})
	require.NoError(t, err)
	assert.Equal(t, "@daily", updated.Expression)

	entry, ok := entryByName(t, e.scheduler, "rotate")
	require.True(t, ok)
	assert.Equal(t, "@daily", entry.Expression)
	assert.Equal(t, "/scripts/rotate.sh", entry.Command)
}

func TestRun_RestoreEnabledWritesOnce(t *testing.T) {
	e := newEnv(t, "")
	e.register(t, "once", "0 1 * * *", "echo", true)

	_, err := e.reconciler(e.scheduler).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, e.transport.Writes())
}

func TestRun_FailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "")
	e.register(t, "broken", "0 1 * * *", "echo broken", true)
	e.register(t, "fine", "0 2 * * *", "echo fine", true)

	s := &failingAdd{Scheduler: e.scheduler, names: map[string]bool{"broken": true}}
	report, err := e.reconciler(s).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"fine"}, report.Restored)
	require.Contains(t, report.Failed, "broken")

	_, ok := entryByName(t, e.scheduler, "fine")
	assert.True(t, ok)
	_, ok = entryByName(t, e.scheduler, "broken")
	assert.False(t, ok)
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "0 3 * * * /bin/report # report\n")
	e.register(t, "backup", "0 2 * * *", "echo backup", true)

	r := e.reconciler(e.scheduler)
	_, err := r.Run(ctx)
	require.NoError(t, err)
	writes := e.transport.Writes()

	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Restored)
	assert.Empty(t, report.Imported)
	assert.Equal(t, writes, e.transport.Writes())
}

func TestRun_CrontabUnreadable(t *testing.T) {
	e := newEnv(t, "")
	e.transport.FailWith(crontab.ErrTransportClosed)

	_, err := e.reconciler(e.scheduler).Run(context.Background())
	assert.ErrorIs(t, err, crontab.ErrTransportClosed)
}

func TestLoop_RepairsDrift(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := newEnv(t, "")
	e.register(t, "drifted", "0 6 * * *", "echo drifted", true)

	done := make(chan struct{})
	go func() {
		e.reconciler(e.scheduler).Loop(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, ok := entryByName(t, e.scheduler, "drifted")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}
