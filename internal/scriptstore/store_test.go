package scriptstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_WriteCreatesExecutableScript(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/var/lib/cronkeeper/scripts", "")

	p, err := s.Write(context.Background(), "nightly-backup", "tar czf /backup/db.tgz /data")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/cronkeeper/scripts/nightly-backup.sh", p)

	data, err := afero.ReadFile(fs, p)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/bash\ntar czf /backup/db.tgz /data", string(data))

	info, err := fs.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, ScriptMode, info.Mode().Perm())
	assert.NotZero(t, info.Mode().Perm()&0o100, "owner must be able to execute")
}

func TestStore_WriteOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/scripts", "")
	ctx := context.Background()

	_, err := s.Write(ctx, "job", "echo one\necho two")
	require.NoError(t, err)
	p, err := s.Write(ctx, "job", "echo three")
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, p)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/bash\necho three", string(data))
}

func TestStore_WriteRejectsUnsafeName(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/scripts", "")
	_, err := s.Write(context.Background(), "../../etc/cron.d/evil", "id")
	assert.Error(t, err)
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/scripts", "")
	ctx := context.Background()

	_, err := s.Write(ctx, "job", "true")
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, "job"))
	exists, err := s.Exists("job")
	require.NoError(t, err)
	assert.False(t, exists)

	// Повторное удаление — не ошибка
	assert.NoError(t, s.Remove(ctx, "job"))
	assert.NoError(t, s.Remove(ctx, "never-existed"))
}

func TestStore_ResolvePath(t *testing.T) {
	local := New(afero.NewMemMapFs(), "/srv/scripts", "")
	assert.Equal(t, "/srv/scripts/a.sh", local.ResolvePath("a", false))
	assert.Equal(t, "/srv/scripts/a.sh", local.ResolvePath("a", true))

	remote := New(afero.NewMemMapFs(), "/srv/scripts", "/mnt/cron/scripts")
	assert.Equal(t, "/srv/scripts/a.sh", remote.ResolvePath("a", false))
	assert.Equal(t, "/mnt/cron/scripts/a.sh", remote.ResolvePath("a", true))
}

type fakeMirror struct {
	files map[string][]byte
	modes map[string]os.FileMode
	err   error
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{files: map[string][]byte{}, modes: map[string]os.FileMode{}}
}

func (m *fakeMirror) Put(_ context.Context, p string, content []byte, mode os.FileMode) error {
	if m.err != nil {
		return m.err
	}
	m.files[p] = content
	m.modes[p] = mode
	return nil
}

func (m *fakeMirror) Delete(_ context.Context, p string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.files, p)
	return nil
}

func TestStore_RelativeDirBecomesAbsolute(t *testing.T) {
	s := New(afero.NewMemMapFs(), "scripts", "")

	p := s.ResolvePath("nightly", true)
	assert.True(t, filepath.IsAbs(p), p)
	assert.Equal(t, "nightly.sh", filepath.Base(p))
	assert.Equal(t, p, s.ResolvePath("nightly", false))
}

func TestStore_MirrorGetsSameContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	mirror := newFakeMirror()
	s := New(fs, "/srv/scripts", "/mnt/cron/scripts", WithMirror(mirror))
	ctx := context.Background()

	p, err := s.Write(ctx, "job", "echo hi")
	require.NoError(t, err)

	local, err := afero.ReadFile(fs, p)
	require.NoError(t, err)
	assert.Equal(t, local, mirror.files["/mnt/cron/scripts/job.sh"])
	assert.Equal(t, ScriptMode, mirror.modes["/mnt/cron/scripts/job.sh"])

	require.NoError(t, s.Remove(ctx, "job"))
	assert.NotContains(t, mirror.files, "/mnt/cron/scripts/job.sh")
}

func TestStore_MirrorFailure(t *testing.T) {
	mirror := newFakeMirror()
	mirror.err = errors.New("connection refused")
	s := New(afero.NewMemMapFs(), "/srv/scripts", "/mnt/cron/scripts", WithMirror(mirror))

	_, err := s.Write(context.Background(), "job", "echo hi")
	assert.ErrorContains(t, err, "connection refused")
}
