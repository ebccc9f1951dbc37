// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PipelineConfig governs worker fan-out and the probe retry policy.
type PipelineConfig struct {
	Concurrency           int    `mapstructure:"concurrency"`
	MaxRounds             int    `mapstructure:"max_rounds"`
	BackoffBaseMs         int    `mapstructure:"backoff_base_ms"`
	BackoffMaxMs          int    `mapstructure:"backoff_max_ms"`
	AttemptTimeoutSeconds int    `mapstructure:"attempt_timeout_seconds"`
	JobTimeoutSeconds     int    `mapstructure:"job_timeout_seconds"`
	QueueDepth            int    `mapstructure:"queue_depth"`
	UserAgent             string `mapstructure:"user_agent"`
}

// HeadlessConfig configures the headless page screenshot subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig selects and configures the blob store backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DBConfig controls access to the catalog database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	Table    string `mapstructure:"table"`
}

// PubSubConfig holds metadata for outcome event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Blob store backend values accepted by storage.backend.
const (
	StorageBackendGCS    = "gcs"
	StorageBackendLocal  = "local"
	StorageBackendMemory = "memory"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Pipeline.MaxRounds <= 0 {
		return fmt.Errorf("pipeline.max_rounds must be > 0")
	}
	if c.Pipeline.AttemptTimeoutSeconds <= 0 {
		return fmt.Errorf("pipeline.attempt_timeout_seconds must be > 0")
	}
	if c.Pipeline.JobTimeoutSeconds <= 0 {
		return fmt.Errorf("pipeline.job_timeout_seconds must be > 0")
	}
	switch c.Storage.Backend {
	case StorageBackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when backend is gcs")
		}
	case StorageBackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set when backend is local")
		}
	case StorageBackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of gcs, local, memory")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// BackoffBase returns the first inter-round backoff delay.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.Pipeline.BackoffBaseMs) * time.Millisecond
}

// BackoffMax returns the backoff delay ceiling.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Pipeline.BackoffMaxMs) * time.Millisecond
}

// AttemptTimeout returns the per-candidate probe deadline.
func (c Config) AttemptTimeout() time.Duration {
	return time.Duration(c.Pipeline.AttemptTimeoutSeconds) * time.Second
}

// JobTimeout returns the whole-job wall-clock budget.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Pipeline.JobTimeoutSeconds) * time.Second
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ICONFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("pipeline.concurrency", 5)
	v.SetDefault("pipeline.max_rounds", 3)
	v.SetDefault("pipeline.backoff_base_ms", 1000)
	v.SetDefault("pipeline.backoff_max_ms", 8000)
	v.SetDefault("pipeline.attempt_timeout_seconds", 10)
	v.SetDefault("pipeline.job_timeout_seconds", 60)
	v.SetDefault("pipeline.queue_depth", 64)
	v.SetDefault("pipeline.user_agent", "iconfetch-bot/0.1")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("storage.backend", StorageBackendMemory)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.table", "agents")
	v.SetDefault("logging.development", true)
}
