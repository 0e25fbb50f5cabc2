package crontab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// ErrMissingRemoteConfig — не хватает параметров удалённого режима.
// Это фатальная ошибка конфигурации: проверяется при создании транспорта.
var ErrMissingRemoteConfig = errors.New("remote crontab transport misconfigured")

// RemoteConfig — параметры crontab на удалённом хосте.
type RemoteConfig struct {
	Host           string
	Port           int
	User           string
	KeyFile        string
	KnownHostsFile string

	// StrictHostKeys — не принимать хосты, которых нет в known_hosts.
	StrictHostKeys bool

	// ScriptPrefix — каталог скриптов, как его видит удалённый хост.
	ScriptPrefix string

	// DialTimeout — таймаут TCP+SSH handshake (default: 10s).
	DialTimeout time.Duration

	Logger *slog.Logger
}

// RemoteTransport выполняет crontab -l / crontab - на удалённом хосте через SSH.
// Соединение открывается на каждую операцию.
type RemoteTransport struct {
	cfg       RemoteConfig
	addr      string
	sshConfig *ssh.ClientConfig
}

// NewRemoteTransport проверяет конфигурацию и загружает ключ.
// Отсутствие host, user, key_file или script_prefix — ошибка.
func NewRemoteTransport(cfg RemoteConfig) (*RemoteTransport, error) {
	var missing []string
	if cfg.Host == "" {
		missing = append(missing, "host")
	}
	if cfg.User == "" {
		missing = append(missing, "user")
	}
	if cfg.KeyFile == "" {
		missing = append(missing, "key_file")
	}
	if cfg.ScriptPrefix == "" {
		missing = append(missing, "script_prefix")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrMissingRemoteConfig, strings.Join(missing, ", "))
	}

	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.KnownHostsFile == "" {
		cfg.KnownHostsFile = defaultKnownHostsPath()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	signer, err := loadSigner(cfg.KeyFile)
	if err != nil {
		return nil, err
	}

	return &RemoteTransport{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		sshConfig: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: (&hostKeys{
				path:   cfg.KnownHostsFile,
				strict: cfg.StrictHostKeys,
				logger: cfg.Logger.With("transport", "remote"),
			}).callback(),
			Timeout:         cfg.DialTimeout,
		},
	}, nil
}

// loadSigner читает приватный ключ. Ключи с паролем не поддерживаются.
func loadSigner(path string) (ssh.Signer, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read key file: %v", ErrMissingRemoteConfig, err)
	}

	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		var ppErr *ssh.PassphraseMissingError
		if errors.As(err, &ppErr) {
			return nil, fmt.Errorf("%w: SSH key %q is passphrase-protected", ErrMissingRemoteConfig, path)
		}
		return nil, fmt.Errorf("%w: parse key file: %v", ErrMissingRemoteConfig, err)
	}
	return signer, nil
}

// ScriptPrefix возвращает каталог скриптов на удалённом хосте.
func (r *RemoteTransport) ScriptPrefix() string {
	return r.cfg.ScriptPrefix
}

// Dial открывает SSH соединение с хостом.
// Используется также для загрузки скриптов по SFTP.
func (r *RemoteTransport) Dial(ctx context.Context) (*ssh.Client, error) {
	d := net.Dialer{Timeout: r.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", r.addr, err)
	}

	// NewClientConn сам не ограничивает handshake по времени
	_ = conn.SetDeadline(time.Now().Add(r.cfg.DialTimeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, r.addr, r.sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", r.addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// run выполняет команду в отдельной SSH сессии.
func (r *RemoteTransport) run(ctx context.Context, stdin []byte, command string) ([]byte, error) {
	client, err := r.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil || strings.HasSuffix(command, " -") {
		session.Stdin = bytes.NewReader(stdin)
	}

	if err := session.Run(command); err != nil {
		return append(stdout.Bytes(), stderr.Bytes()...), err
	}
	return stdout.Bytes(), nil
}

func (r *RemoteTransport) Read(ctx context.Context) ([]byte, error) {
	out, err := r.run(ctx, nil, "crontab -l")
	if err != nil {
		if isNoCrontab(out) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: crontab -l: %w, output: %s", r.addr, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (r *RemoteTransport) Write(ctx context.Context, data []byte) error {
	out, err := r.run(ctx, data, "crontab -")
	if err != nil {
		return fmt.Errorf("%s: crontab -: %w, output: %s", r.addr, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (r *RemoteTransport) String() string {
	return "remote:" + r.cfg.User + "@" + r.addr
}

// defaultKnownHostsPath — отдельный known_hosts, чтобы не трогать ~/.ssh.
func defaultKnownHostsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "cronkeeper", "known_hosts")
}
