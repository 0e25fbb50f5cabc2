package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Значения по умолчанию.
const (
	DefaultHTTPAddr    = ":8000"
	DefaultDatabaseURL = "sqlite:cronkeeper.db"
	DefaultRemotePort  = 22
	DefaultLogFormat   = "json"
	DefaultLogLevel    = "INFO"
)

// applyDefaults заполняет незаданные поля.
func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = DefaultDatabaseURL
	}
	if cfg.Scripts.Dir == "" {
		cfg.Scripts.Dir = defaultScriptsDir()
	} else if abs, err := filepath.Abs(cfg.Scripts.Dir); err == nil {
		cfg.Scripts.Dir = abs
	}
	cfg.Scheduler.Mode = strings.ToLower(strings.TrimSpace(cfg.Scheduler.Mode))
	if cfg.Scheduler.Mode == "" {
		cfg.Scheduler.Mode = ModeLocal
	}
	if cfg.Scheduler.Remote.Port == 0 {
		cfg.Scheduler.Remote.Port = DefaultRemotePort
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

// defaultScriptsDir — ./scripts относительно рабочего каталога.
func defaultScriptsDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "scripts"
	}
	return filepath.Join(wd, "scripts")
}
