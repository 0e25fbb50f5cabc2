package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/cronkeeper/internal/crontab"
	"github.com/shaiso/cronkeeper/internal/domain"
	"github.com/shaiso/cronkeeper/internal/repo"
	"github.com/shaiso/cronkeeper/internal/scriptstore"
)

const scriptsDir = "/srv/cronkeeper/scripts"

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.JobEvent
	err    error
}

func (p *recordingPublisher) PublishJobEvent(_ context.Context, e domain.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc       *Service
	store     *repo.SQLiteJobRepo
	scheduler *crontab.Scheduler
	transport *crontab.MemoryTransport
	fs        afero.Fs
	events    *recordingPublisher
}

func newFixture(t *testing.T, initialCrontab string) *fixture {
	t.Helper()

	store, err := repo.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := crontab.NewMemoryTransport(initialCrontab)
	sched := crontab.NewScheduler(tr, logger)
	fs := afero.NewMemMapFs()
	scripts := scriptstore.New(fs, scriptsDir, "", scriptstore.WithLogger(logger))
	events := &recordingPublisher{}

	return &fixture{
		svc:       NewService(store, sched, scripts, WithPublisher(events), WithLogger(logger)),
		store:     store,
		scheduler: sched,
		transport: tr,
		fs:        fs,
		events:    events,
	}
}

func (f *fixture) entries(t *testing.T, name string) []domain.Entry {
	t.Helper()
	all, err := f.scheduler.List(context.Background())
	require.NoError(t, err)
	var out []domain.Entry
	for _, e := range all {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) scriptExists(t *testing.T, name string) bool {
	t.Helper()
	ok, err := afero.Exists(f.fs, filepath.Join(scriptsDir, name+".sh"))
	require.NoError(t, err)
	return ok
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestService_NightlyBackupLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	job, err := f.svc.Create(ctx, CreateInput{
		Name:       "nightly-backup",
		Expression: "0 2 * * *",
		Command:    "tar czf /backup/db.tgz /data",
	})
	require.NoError(t, err)
	assert.True(t, job.Enabled)

	all, err := f.store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	entries := f.entries(t, "nightly-backup")
	require.Len(t, entries, 1)
	assert.Equal(t, "0 2 * * *", entries[0].Expression)
	assert.Equal(t, scriptsDir+"/nightly-backup.sh", entries[0].Command)
	assert.True(t, entries[0].Enabled)
	assert.True(t, f.scriptExists(t, "nightly-backup"))

	disabled, err := f.svc.Disable(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)
	entries = f.entries(t, "nightly-backup")
	require.Len(t, entries, 1, "disable keeps the entry")
	assert.False(t, entries[0].Enabled)

	stored, err := f.store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)

	require.NoError(t, f.svc.Delete(ctx, job.ID))
	_, err = f.store.GetByID(ctx, job.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.Empty(t, f.entries(t, "nightly-backup"))
	assert.False(t, f.scriptExists(t, "nightly-backup"))

	assert.Equal(t, []domain.EventType{
		domain.EventJobCreated,
		domain.EventJobDisabled,
		domain.EventJobDeleted,
	}, f.events.types())
}

func TestService_CreateDuplicateSkipsScheduler(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	_, err := f.svc.Create(ctx, CreateInput{Name: "report", Expression: "0 * * * *", Command: "echo 1"})
	require.NoError(t, err)
	writes := f.transport.Writes()

	_, err = f.svc.Create(ctx, CreateInput{Name: "report", Expression: "*/5 * * * *", Command: "echo 2"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, writes, f.transport.Writes(), "duplicate must not touch crontab")

	entries := f.entries(t, "report")
	require.Len(t, entries, 1)
	assert.Equal(t, "0 * * * *", entries[0].Expression)
}

func TestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	_, err := f.svc.Create(ctx, CreateInput{Name: "bad", Expression: "61 * * * *", Command: "echo"})
	assert.ErrorIs(t, err, ErrInvalidExpression)

	_, err = f.svc.Create(ctx, CreateInput{Name: "has space", Expression: "* * * * *", Command: "echo"})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = f.svc.Create(ctx, CreateInput{Name: "empty", Expression: "* * * * *", Command: "  "})
	assert.ErrorIs(t, err, ErrInvalidCommand)

	assert.Equal(t, 0, f.transport.Writes())
	all, err := f.store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_CreateCompensatesOnSchedulerFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	f.transport.FailWith(errors.New("permission denied"))

	_, err := f.svc.Create(ctx, CreateInput{Name: "orphan", Expression: "0 3 * * *", Command: "echo"})
	assert.ErrorIs(t, err, ErrSchedulerFailure)

	_, err = f.store.GetByName(ctx, "orphan")
	assert.ErrorIs(t, err, repo.ErrNotFound, "record must be removed by compensation")
	assert.False(t, f.scriptExists(t, "orphan"))
	assert.Empty(t, f.events.types())
}

func TestService_CreateDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	_, err := f.svc.Create(ctx, CreateInput{
		Name: "paused", Expression: "0 4 * * *", Command: "echo", Enabled: boolPtr(false),
	})
	require.NoError(t, err)

	entries := f.entries(t, "paused")
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Enabled)
}

func TestService_UpdateRenameAndExpression(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	job, err := f.svc.Create(ctx, CreateInput{Name: "old", Expression: "0 2 * * *", Command: "echo old"})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, job.ID, domain.JobPatch{
		Name:       strPtr("new"),
		Expression: strPtr(" */10 * * * * "),
		Command:    strPtr("echo new"),
	})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Name)
	assert.Equal(t, "*/10 * * * *", updated.Expression)

	assert.Empty(t, f.entries(t, "old"))
	assert.False(t, f.scriptExists(t, "old"))

	entries := f.entries(t, "new")
	require.Len(t, entries, 1)
	assert.Equal(t, "*/10 * * * *", entries[0].Expression)

	data, err := afero.ReadFile(f.fs, filepath.Join(scriptsDir, "new.sh"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/bash\necho new", string(data))
}

func TestService_UpdateDescriptionOnlyKeepsCrontab(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	job, err := f.svc.Create(ctx, CreateInput{Name: "docs", Expression: "0 2 * * *", Command: "echo"})
	require.NoError(t, err)
	writes := f.transport.Writes()

	updated, err := f.svc.Update(ctx, job.ID, domain.JobPatch{Description: strPtr("just text")})
	require.NoError(t, err)
	assert.Equal(t, "just text", updated.Description)
	assert.Equal(t, writes, f.transport.Writes())
}

func TestService_UpdateRenameConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	a, err := f.svc.Create(ctx, CreateInput{Name: "a", Expression: "0 2 * * *", Command: "echo a"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, CreateInput{Name: "b", Expression: "0 3 * * *", Command: "echo b"})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, a.ID, domain.JobPatch{Name: strPtr("b")})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestService_UpdateRollsBackOnSchedulerFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	job, err := f.svc.Create(ctx, CreateInput{Name: "stable", Expression: "0 2 * * *", Command: "echo"})
	require.NoError(t, err)

	f.transport.FailWith(errors.New("crontab locked"))
	_, err = f.svc.Update(ctx, job.ID, domain.JobPatch{Expression: strPtr("0 5 * * *")})
	assert.ErrorIs(t, err, ErrSchedulerFailure)
	f.transport.FailWith(nil)

	stored, err := f.store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "0 2 * * *", stored.Expression)

	entries := f.entries(t, "stable")
	require.Len(t, entries, 1)
	assert.Equal(t, "0 2 * * *", entries[0].Expression)
}

func TestService_DeleteKeepsRecordOnSchedulerFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	job, err := f.svc.Create(ctx, CreateInput{Name: "sticky", Expression: "0 2 * * *", Command: "echo"})
	require.NoError(t, err)

	f.transport.FailWith(errors.New("read-only"))
	err = f.svc.Delete(ctx, job.ID)
	assert.ErrorIs(t, err, ErrSchedulerFailure)
	f.transport.FailWith(nil)

	_, err = f.store.GetByID(ctx, job.ID)
	assert.NoError(t, err)
}

func TestService_EnableReinstallsMissingEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	job, err := f.svc.Create(ctx, CreateInput{Name: "ghost", Expression: "0 2 * * *", Command: "echo"})
	require.NoError(t, err)
	_, err = f.svc.Disable(ctx, job.ID)
	require.NoError(t, err)

	// Строку удалили в обход сервиса.
	require.True(t, f.scheduler.Remove(ctx, "ghost"))

	enabled, err := f.svc.Enable(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, enabled.Enabled)

	entries := f.entries(t, "ghost")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Enabled)
}

// brokenEnable отказывает во включении строк.
type brokenEnable struct {
	*crontab.Scheduler
}

func (brokenEnable) Enable(context.Context, string) bool { return false }

// brokenSetEnabled отказывает в записи флага в реестр.
type brokenSetEnabled struct {
	repo.JobStore
}

func (brokenSetEnabled) SetEnabled(context.Context, uuid.UUID, bool) error {
	return errors.New("database is locked")
}

func TestService_EnableAlreadyEnabledSkipsWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	job, err := f.svc.Create(ctx, CreateInput{Name: "steady", Expression: "0 2 * * *", Command: "echo"})
	require.NoError(t, err)
	writes := f.transport.Writes()

	_, err = f.svc.Enable(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, writes, f.transport.Writes())

	_, err = f.svc.Disable(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, writes+1, f.transport.Writes())
}

func TestService_EnableFailureKeepsEntryEnabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	job, err := f.svc.Create(ctx, CreateInput{Name: "a", Expression: "0 2 * * *", Command: "echo"})
	require.NoError(t, err)

	scripts := scriptstore.New(f.fs, scriptsDir, "")
	svc := NewService(f.store, brokenEnable{f.scheduler}, scripts)

	_, err = svc.Enable(ctx, job.ID)
	assert.ErrorIs(t, err, ErrSchedulerFailure)

	entries := f.entries(t, "a")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Enabled)

	stored, err := f.store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
}

func TestService_DisableRevertsEntryWhenRegistryFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	job, err := f.svc.Create(ctx, CreateInput{Name: "b", Expression: "0 2 * * *", Command: "echo"})
	require.NoError(t, err)

	scripts := scriptstore.New(f.fs, scriptsDir, "")
	svc := NewService(brokenSetEnabled{f.store}, f.scheduler, scripts)

	_, err = svc.Disable(ctx, job.ID)
	require.Error(t, err)

	entries := f.entries(t, "b")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Enabled)

	stored, err := f.store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
}

func TestService_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	id := uuid.New()

	_, err := f.svc.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Update(ctx, id, domain.JobPatch{Command: strPtr("echo")})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, id), ErrNotFound)
	_, err = f.svc.Enable(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ListAndSystemEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "MAILTO=root\n0 0 * * * /usr/bin/legacy.sh\n")

	for _, name := range []string{"one", "two", "three"} {
		_, err := f.svc.Create(ctx, CreateInput{Name: name, Expression: "0 1 * * *", Command: "echo " + name})
		require.NoError(t, err)
	}

	page, total, err := f.svc.List(ctx, repo.JobFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, 3, total)

	entries, err := f.svc.SystemEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 4, "untagged entries are listed too")

	assert.True(t, f.svc.ValidateExpression("0 2 * * *"))
	assert.False(t, f.svc.ValidateExpression("0 2 * *"))
}

func TestService_PublishFailureDoesNotFailCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	f.events.err = errors.New("broker down")

	_, err := f.svc.Create(ctx, CreateInput{Name: "quiet", Expression: "0 2 * * *", Command: "echo"})
	assert.NoError(t, err)
	assert.Len(t, f.events.types(), 1)
}
