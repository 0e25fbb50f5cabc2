package scriptstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/shaiso/cronkeeper/internal/domain"
)

const (
	// Interpreter — первая строка каждого скрипта.
	Interpreter = "#!/bin/bash\n"

	// ScriptMode — права скрипта: исполняемый владельцем.
	ScriptMode os.FileMode = 0o755

	scriptExt = ".sh"
)

// Mirror копирует скрипты туда, где их видит хост crontab.
type Mirror interface {
	Put(ctx context.Context, path string, content []byte, mode os.FileMode) error
	Delete(ctx context.Context, path string) error
}

// Store — хранилище скриптов.
type Store struct {
	fs      afero.Fs
	dir     string
	hostDir string
	mirror  Mirror
	logger  *slog.Logger
}

// Option настраивает Store.
type Option func(*Store)

// WithMirror включает копирование скриптов на хост.
func WithMirror(m Mirror) Option {
	return func(s *Store) { s.mirror = m }
}

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New создаёт Store. Пустой hostDir означает, что хост видит скрипты
// по тем же путям, что и этот процесс. Относительный dir приводится
// к абсолютному: cron разрешил бы его от $HOME.
func New(fs afero.Fs, dir, hostDir string, opts ...Option) *Store {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	s := &Store{
		fs:      fs,
		dir:     dir,
		hostDir: hostDir,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewOS создаёт Store поверх локальной файловой системы.
func NewOS(dir, hostDir string, opts ...Option) *Store {
	return New(afero.NewOsFs(), dir, hostDir, opts...)
}

// ResolvePath возвращает путь скрипта: локальный или как его видит хост.
func (s *Store) ResolvePath(name string, hostView bool) string {
	if hostView && s.hostDir != "" {
		// Путь на удалённом хосте всегда в формате POSIX
		return path.Join(filepath.ToSlash(s.hostDir), name+scriptExt)
	}
	return filepath.Join(s.dir, name+scriptExt)
}

// Content возвращает содержимое скрипта для команды.
func Content(command string) []byte {
	return []byte(Interpreter + command)
}

// Write создаёт или перезаписывает скрипт и возвращает локальный путь.
func (s *Store) Write(ctx context.Context, name, command string) (string, error) {
	if err := domain.ValidateName(name); err != nil {
		return "", err
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create scripts dir: %w", err)
	}

	p := s.ResolvePath(name, false)
	content := Content(command)

	if err := afero.WriteFile(s.fs, p, content, ScriptMode); err != nil {
		return "", fmt.Errorf("write script %s: %w", p, err)
	}
	// WriteFile не меняет права существующего файла
	if err := s.fs.Chmod(p, ScriptMode); err != nil {
		return "", fmt.Errorf("chmod script %s: %w", p, err)
	}

	if s.mirror != nil {
		hostPath := s.ResolvePath(name, true)
		if err := s.mirror.Put(ctx, hostPath, content, ScriptMode); err != nil {
			return "", fmt.Errorf("upload script %s: %w", hostPath, err)
		}
	}

	s.logger.Debug("script written", "job_name", name, "path", p)
	return p, nil
}

// Remove удаляет скрипт. Отсутствие файла — не ошибка.
func (s *Store) Remove(ctx context.Context, name string) error {
	p := s.ResolvePath(name, false)

	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove script %s: %w", p, err)
	}

	if s.mirror != nil {
		hostPath := s.ResolvePath(name, true)
		if err := s.mirror.Delete(ctx, hostPath); err != nil {
			return fmt.Errorf("remove uploaded script %s: %w", hostPath, err)
		}
	}

	s.logger.Debug("script removed", "job_name", name, "path", p)
	return nil
}

// Exists проверяет наличие локального скрипта.
func (s *Store) Exists(name string) (bool, error) {
	return afero.Exists(s.fs, s.ResolvePath(name, false))
}
