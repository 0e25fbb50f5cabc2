package scriptstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Dialer открывает SSH соединение с хостом crontab.
// Реализуется crontab.RemoteTransport.
type Dialer interface {
	Dial(ctx context.Context) (*ssh.Client, error)
}

// SFTPMirror загружает скрипты на удалённый хост по SFTP.
// Соединение открывается на каждую операцию.
type SFTPMirror struct {
	dialer Dialer
}

// NewSFTPMirror создаёт SFTPMirror.
func NewSFTPMirror(d Dialer) *SFTPMirror {
	return &SFTPMirror{dialer: d}
}

func (m *SFTPMirror) connect(ctx context.Context) (*ssh.Client, *sftp.Client, error) {
	sshConn, err := m.dialer.Dial(ctx)
	if err != nil {
		return nil, nil, err
	}

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return nil, nil, fmt.Errorf("open sftp subsystem: %w", err)
	}
	return sshConn, client, nil
}

// Put записывает файл целиком и выставляет права.
func (m *SFTPMirror) Put(ctx context.Context, p string, content []byte, mode os.FileMode) error {
	sshConn, client, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer sshConn.Close()
	defer client.Close()

	if err := client.MkdirAll(path.Dir(p)); err != nil {
		return fmt.Errorf("mkdir %s: %w", path.Dir(p), err)
	}

	f, err := client.Create(p)
	if err != nil {
		return fmt.Errorf("create %s: %w", p, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", p, err)
	}

	return client.Chmod(p, mode)
}

// Delete удаляет файл. Отсутствие файла — не ошибка.
func (m *SFTPMirror) Delete(ctx context.Context, p string) error {
	sshConn, client, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer sshConn.Close()
	defer client.Close()

	if err := client.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}
