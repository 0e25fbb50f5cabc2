package crontab

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Ошибки проверки ключа хоста crontab.
var (
	ErrHostKeyChanged = errors.New("crontab host key changed")
	ErrUnknownHost    = errors.New("crontab host not in known_hosts")
)

// hostKeys проверяет ключ хоста по known_hosts.
//
// Известный хост с тем же ключом принимается, с другим ключом отклоняется.
// Неизвестный хост при strict отклоняется, иначе запоминается (TOFU)
// с записью отпечатка в лог.
type hostKeys struct {
	path   string
	strict bool
	logger *slog.Logger

	// Держится на всю проверку: два первых подключения
	// не должны дописать хост дважды.
	mu sync.Mutex
}

func (h *hostKeys) callback() ssh.HostKeyCallback {
	return h.check
}

func (h *hostKeys) check(hostname string, remote net.Addr, key ssh.PublicKey) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	fp := ssh.FingerprintSHA256(key)

	known, err := h.lookup(hostname, remote, key)
	if err != nil {
		return err
	}
	if known {
		return nil
	}

	if h.strict {
		return fmt.Errorf("%w: %s (%s %s); add it with: ssh-keyscan %s >> %s",
			ErrUnknownHost, hostname, key.Type(), fp, hostname, h.path)
	}

	if err := h.remember(hostname, key); err != nil {
		return err
	}
	h.logger.Warn("trusting new crontab host key",
		"host", hostname, "key_type", key.Type(), "fingerprint", fp, "known_hosts", h.path)
	return nil
}

// lookup возвращает true для известного хоста с совпадающим ключом.
func (h *hostKeys) lookup(hostname string, remote net.Addr, key ssh.PublicKey) (bool, error) {
	if _, err := os.Stat(h.path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	cb, err := knownhosts.New(h.path)
	if err != nil {
		return false, fmt.Errorf("load known_hosts %s: %w", h.path, err)
	}

	err = cb(hostname, remote, key)
	if err == nil {
		return true, nil
	}

	var keyErr *knownhosts.KeyError
	if !errors.As(err, &keyErr) {
		return false, err
	}
	if len(keyErr.Want) == 0 {
		return false, nil
	}

	want := keyErr.Want[0]
	h.logger.Error("crontab host key mismatch",
		"host", hostname, "got", ssh.FingerprintSHA256(key),
		"want", ssh.FingerprintSHA256(want.Key), "known_hosts", want.Filename, "line", want.Line)
	return false, fmt.Errorf("%w for %s: got %s, %s:%d has %s",
		ErrHostKeyChanged, hostname, ssh.FingerprintSHA256(key),
		want.Filename, want.Line, ssh.FingerprintSHA256(want.Key))
}

func (h *hostKeys) remember(hostname string, key ssh.PublicKey) error {
	if err := os.MkdirAll(filepath.Dir(h.path), 0o700); err != nil {
		return fmt.Errorf("create known_hosts directory: %w", err)
	}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("write known_hosts: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintln(f, knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key))
	return err
}
