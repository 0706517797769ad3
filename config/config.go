// Copyright 2026 The Gozo Authors.

// Package config holds the fully-resolved configuration the core consumes
// but never produces: bus address, auth material, and a handful of
// operational knobs (bucket name, shutdown drain). Loading it from a YAML
// file and the environment is plumbing, not core scheduler logic; Load is
// the one place that plumbing lives.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the fully-resolved, ready-to-use configuration. The core
// (gateway, store, scheduler, supervisor) only ever sees a value of this
// type; it never parses a flag or reads an environment variable itself.
type Config struct {
	// Bus connection.
	NatsURL string `yaml:"nats_url" env:"GOZO_NATS_URL" env-default:"nats://127.0.0.1:4222"`
	Subject string `yaml:"subject" env:"GOZO_SUBJECT" env-default:"gozo"`

	// Auth material. At most one method is expected to be set; the dial in
	// cmd/gozod uses the first one set of CredsFile, NKeyFile, Token, then
	// User/Password. CertFile and KeyFile are sent as a client certificate
	// when EnableTLS is set.
	Token      string `yaml:"token" env:"GOZO_TOKEN"`
	User       string `yaml:"user" env:"GOZO_USER"`
	Password   string `yaml:"password" env:"GOZO_PASSWORD"`
	NKeyFile   string `yaml:"nkey_file" env:"GOZO_NKEY_FILE"`
	CredsFile  string `yaml:"creds_file" env:"GOZO_CREDS_FILE"`
	CertFile   string `yaml:"cert_file" env:"GOZO_CERT_FILE"`
	KeyFile    string `yaml:"key_file" env:"GOZO_KEY_FILE"`
	EnableTLS  bool   `yaml:"enable_tls" env:"GOZO_ENABLE_TLS"`

	// Durable Store.
	KVBucket string `yaml:"kv_bucket" env:"GOZO_KV_BUCKET" env-default:"gozo-schedules"`

	// Supervisor.
	ShutdownDrain time.Duration `yaml:"shutdown_drain" env:"GOZO_SHUTDOWN_DRAIN" env-default:"5s"`

	// Ambient.
	LogLevel string `yaml:"log_level" env:"GOZO_LOG_LEVEL" env-default:"info"`

	// CheckpointDir, if non-empty, causes the Supervisor to write a
	// forensic snapshot of recovered records before admitting them.
	CheckpointDir string `yaml:"checkpoint_dir" env:"GOZO_CHECKPOINT_DIR"`
}

// Load reads configuration from an optional YAML file and the process
// environment, environment variables taking precedence, matching the
// dual-source convention of cleanenv.ReadConfig.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: read %q: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: read env: %w", err)
	}

	if cfg.Subject == "" {
		return Config{}, fmt.Errorf("config: subject must not be empty")
	}

	return cfg, nil
}
