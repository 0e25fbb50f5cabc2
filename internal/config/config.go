// Package config загружает конфигурацию cronkeeper.
//
// Источники (в порядке приоритета):
//   - переменные окружения (CRONKEEPER_*, а также DB_URL, API_PORT, LOG_LEVEL, LOG_FORMAT, AMQP_URL)
//   - TOML файл (необязательный)
//   - значения по умолчанию
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Режимы доступа к crontab.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
	ModeMemory = "memory"
)

// Config — корневая конфигурация.
type Config struct {
	HTTP      HTTPConfig      `toml:"http"`
	Database  DatabaseConfig  `toml:"database"`
	Scripts   ScriptsConfig   `toml:"scripts"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	AMQP      AMQPConfig      `toml:"amqp"`
	Log       LogConfig       `toml:"log"`
}

// HTTPConfig — параметры HTTP сервера.
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// DatabaseConfig — подключение к реестру задач.
// URL вида postgresql://... или sqlite:/path/to/cronkeeper.db
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// ScriptsConfig — где хранятся сгенерированные скрипты.
type ScriptsConfig struct {
	Dir string `toml:"dir"`
}

// SchedulerConfig — доступ к crontab.
type SchedulerConfig struct {
	// Mode — local, remote или memory.
	Mode string `toml:"mode"`

	// User — чужой crontab (crontab -u), только для local.
	User string `toml:"user"`

	Remote RemoteConfig `toml:"remote"`
}

// RemoteConfig — crontab на удалённом хосте через SSH.
type RemoteConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	User           string `toml:"user"`
	KeyFile        string `toml:"key_file"`
	KnownHostsFile string `toml:"known_hosts_file"`

	// StrictHostKeys — неизвестный хост отклоняется вместо TOFU.
	StrictHostKeys bool `toml:"strict_host_keys"`

	// ScriptPrefix — каталог, под которым скрипты видны на удалённом хосте.
	ScriptPrefix string `toml:"script_prefix"`

	// UploadScripts — копировать скрипты на хост по SFTP.
	// Без этого каталог должен быть общим (NFS и т.п.).
	UploadScripts bool `toml:"upload_scripts"`
}

// ReconcileConfig — периодическая сверка реестра и crontab.
// Сверка при старте выполняется всегда; Interval = 0 отключает повторы.
type ReconcileConfig struct {
	Interval Duration `toml:"interval"`
}

// Duration — time.Duration, записываемая в TOML строкой ("10m").
type Duration struct {
	time.Duration
}

// UnmarshalText разбирает строку вида "90s" или "1h".
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText возвращает строку вида "10m0s".
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// AMQPConfig — публикация событий задач. Пустой URL отключает события.
type AMQPConfig struct {
	URL string `toml:"url"`
}

// LogConfig — параметры логирования.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load загружает конфигурацию из TOML файла (если path не пустой)
// и применяет переменные окружения.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	return &cfg, nil
}

// Validate проверяет валидность конфигурации.
func (c *Config) Validate() []error {
	var errs []error

	switch c.Scheduler.Mode {
	case ModeLocal, ModeMemory:
	case ModeRemote:
		r := c.Scheduler.Remote
		if r.Host == "" {
			errs = append(errs, errors.New("scheduler.remote.host is required in remote mode"))
		}
		if r.User == "" {
			errs = append(errs, errors.New("scheduler.remote.user is required in remote mode"))
		}
		if r.KeyFile == "" {
			errs = append(errs, errors.New("scheduler.remote.key_file is required in remote mode"))
		}
		if r.ScriptPrefix == "" {
			errs = append(errs, errors.New("scheduler.remote.script_prefix is required in remote mode"))
		} else if !filepath.IsAbs(r.ScriptPrefix) {
			errs = append(errs, fmt.Errorf("scheduler.remote.script_prefix must be absolute: %s", r.ScriptPrefix))
		}
		if r.Port <= 0 || r.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid scheduler.remote.port: %d", r.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid scheduler.mode: %s (expected: local, remote, memory)", c.Scheduler.Mode))
	}

	if c.Reconcile.Interval.Duration < 0 {
		errs = append(errs, fmt.Errorf("invalid reconcile.interval: %s", c.Reconcile.Interval))
	}

	if c.Scripts.Dir == "" {
		errs = append(errs, errors.New("scripts.dir is required"))
	} else if !filepath.IsAbs(c.Scripts.Dir) {
		errs = append(errs, fmt.Errorf("scripts.dir must be absolute: %s", c.Scripts.Dir))
	}

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, fmt.Errorf("invalid log.format: %s (expected: json, text)", c.Log.Format))
	}

	return errs
}

// lookupFunc — сигнатура os.LookupEnv, подменяется в тестах.
type lookupFunc func(string) (string, bool)

// applyEnv переопределяет значения из окружения.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&cfg.Database.URL, "CRONKEEPER_DB_URL", "DB_URL")
	str(&cfg.Scripts.Dir, "CRONKEEPER_SCRIPTS_DIR")
	str(&cfg.Scheduler.Mode, "CRONKEEPER_SCHEDULER_MODE")
	str(&cfg.Scheduler.User, "CRONKEEPER_SCHEDULER_USER")
	str(&cfg.Scheduler.Remote.Host, "CRONKEEPER_REMOTE_HOST")
	str(&cfg.Scheduler.Remote.User, "CRONKEEPER_REMOTE_USER")
	str(&cfg.Scheduler.Remote.KeyFile, "CRONKEEPER_REMOTE_KEY_FILE")
	str(&cfg.Scheduler.Remote.KnownHostsFile, "CRONKEEPER_REMOTE_KNOWN_HOSTS")
	str(&cfg.Scheduler.Remote.ScriptPrefix, "CRONKEEPER_REMOTE_SCRIPT_PREFIX")
	str(&cfg.AMQP.URL, "CRONKEEPER_AMQP_URL", "AMQP_URL")
	str(&cfg.Log.Level, "CRONKEEPER_LOG_LEVEL", "LOG_LEVEL")
	str(&cfg.Log.Format, "CRONKEEPER_LOG_FORMAT", "LOG_FORMAT")

	if v, ok := lookup("CRONKEEPER_HTTP_ADDR"); ok && v != "" {
		cfg.HTTP.Addr = v
	} else if v, ok := lookup("API_PORT"); ok && v != "" {
		cfg.HTTP.Addr = ":" + v
	}

	if v, ok := lookup("CRONKEEPER_REMOTE_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CRONKEEPER_REMOTE_PORT: %w", err)
		}
		cfg.Scheduler.Remote.Port = port
	}

	if v, ok := lookup("CRONKEEPER_REMOTE_UPLOAD_SCRIPTS"); ok && v != "" {
		upload, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CRONKEEPER_REMOTE_UPLOAD_SCRIPTS: %w", err)
		}
		cfg.Scheduler.Remote.UploadScripts = upload
	}

	if v, ok := lookup("CRONKEEPER_REMOTE_STRICT_HOST_KEYS"); ok && v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CRONKEEPER_REMOTE_STRICT_HOST_KEYS: %w", err)
		}
		cfg.Scheduler.Remote.StrictHostKeys = strict
	}

	if v, ok := lookup("CRONKEEPER_RECONCILE_INTERVAL"); ok && v != "" {
		if err := cfg.Reconcile.Interval.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("invalid CRONKEEPER_RECONCILE_INTERVAL: %w", err)
		}
	}

	return nil
}
