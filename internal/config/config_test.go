package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
pipeline:
  concurrency: 6
  max_rounds: 4
  backoff_base_ms: 500
  backoff_max_ms: 4000
  attempt_timeout_seconds: 8
  job_timeout_seconds: 45
  queue_depth: 128
  user_agent: icon-agent
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
storage:
  backend: gcs
  gcs_bucket: agent-icons
db:
  dsn: postgres://localhost/catalog
  max_conns: 8
  table: agents
pubsub:
  project_id: proj
  topic_name: icon-outcomes
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Pipeline.Concurrency != 6 || cfg.Pipeline.MaxRounds != 4 {
		t.Fatalf("expected pipeline overrides to apply: %+v", cfg.Pipeline)
	}
	if cfg.Storage.Backend != StorageBackendGCS || cfg.Storage.GCSBucket != "agent-icons" {
		t.Fatalf("expected gcs storage config: %+v", cfg.Storage)
	}
	if cfg.PubSub.TopicName != "icon-outcomes" {
		t.Fatalf("expected pubsub topic, got %q", cfg.PubSub.TopicName)
	}
	if got := cfg.BackoffBase(); got != 500*time.Millisecond {
		t.Fatalf("expected backoff base 500ms, got %v", got)
	}
	if got := cfg.JobTimeout(); got != 45*time.Second {
		t.Fatalf("expected job timeout 45s, got %v", got)
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging disabled")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Pipeline.MaxRounds != 3 {
		t.Fatalf("expected default max rounds 3, got %d", cfg.Pipeline.MaxRounds)
	}
	if cfg.Storage.Backend != StorageBackendMemory {
		t.Fatalf("expected default memory backend, got %q", cfg.Storage.Backend)
	}
	if cfg.DB.Table != "agents" {
		t.Fatalf("expected default table agents, got %q", cfg.DB.Table)
	}
	if got := cfg.AttemptTimeout(); got != 10*time.Second {
		t.Fatalf("expected default attempt timeout 10s, got %v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Pipeline: PipelineConfig{
			Concurrency:           1,
			MaxRounds:             3,
			AttemptTimeoutSeconds: 10,
			JobTimeoutSeconds:     60,
		},
		Storage: StorageConfig{Backend: StorageBackendMemory},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Pipeline.Concurrency = 0
				return c
			}(),
			want: "pipeline.concurrency",
		},
		{
			name: "invalid max rounds",
			cfg: func() Config {
				c := base
				c.Pipeline.MaxRounds = 0
				return c
			}(),
			want: "pipeline.max_rounds",
		},
		{
			name: "invalid attempt timeout",
			cfg: func() Config {
				c := base
				c.Pipeline.AttemptTimeoutSeconds = 0
				return c
			}(),
			want: "pipeline.attempt_timeout_seconds",
		},
		{
			name: "gcs backend missing bucket",
			cfg: func() Config {
				c := base
				c.Storage.Backend = StorageBackendGCS
				return c
			}(),
			want: "storage.gcs_bucket",
		},
		{
			name: "local backend missing dir",
			cfg: func() Config {
				c := base
				c.Storage.Backend = StorageBackendLocal
				return c
			}(),
			want: "storage.local_dir",
		},
		{
			name: "unknown backend",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "s3"
				return c
			}(),
			want: "storage.backend",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
				return c
			}(),
			want: "headless.max_parallel",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
