package crontab

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// commandRunner запускает внешнюю команду. Подменяется в тестах.
type commandRunner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

// LocalTransport работает с crontab текущего пользователя через утилиту crontab.
type LocalTransport struct {
	user string
	run  commandRunner
}

// NewLocalTransport создаёт LocalTransport.
// Непустой user означает crontab -u user (нужны права root).
func NewLocalTransport(user string) *LocalTransport {
	return &LocalTransport{user: user, run: execRunner}
}

func (l *LocalTransport) args(extra ...string) []string {
	if l.user == "" {
		return extra
	}
	return append([]string{"-u", l.user}, extra...)
}

func (l *LocalTransport) Read(ctx context.Context) ([]byte, error) {
	out, err := l.run(ctx, nil, "crontab", l.args("-l")...)
	if err != nil {
		if isNoCrontab(out) {
			return nil, nil
		}
		return nil, fmt.Errorf("crontab -l: %w, output: %s", err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (l *LocalTransport) Write(ctx context.Context, data []byte) error {
	out, err := l.run(ctx, data, "crontab", l.args("-")...)
	if err != nil {
		return fmt.Errorf("crontab -: %w, output: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (l *LocalTransport) String() string {
	if l.user == "" {
		return "local"
	}
	return "local:" + l.user
}

// isNoCrontab — у пользователя ещё нет crontab, это пустая таблица.
func isNoCrontab(out []byte) bool {
	return bytes.Contains(bytes.ToLower(out), []byte("no crontab for"))
}

func execRunner(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	} else if len(args) > 0 && args[len(args)-1] == "-" {
		// Пустая таблица: crontab - всё равно ждёт stdin
		cmd.Stdin = bytes.NewReader(nil)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Для ошибок важнее stderr
		return append(stdout.Bytes(), stderr.Bytes()...), err
	}
	return stdout.Bytes(), nil
}
