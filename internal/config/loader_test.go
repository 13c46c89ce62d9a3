package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Store.Backend != "filesystem" {
		t.Errorf("expected filesystem backend, got %s", cfg.Store.Backend)
	}
	if cfg.Stream.Interval != 2*time.Second {
		t.Errorf("expected stream interval 2s, got %v", cfg.Stream.Interval)
	}
	if cfg.Dispatch.Mode != "inline" {
		t.Errorf("expected inline dispatch, got %s", cfg.Dispatch.Mode)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
store:
  backend: redis
  cache_ttl: 500ms
orchestrator:
  agent_delay: 1s
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Store.Backend != "redis" {
		t.Errorf("expected redis backend, got %s", cfg.Store.Backend)
	}
	if cfg.Store.CacheTTL != 500*time.Millisecond {
		t.Errorf("expected cache ttl 500ms, got %v", cfg.Store.CacheTTL)
	}
	if cfg.Orchestrator.AgentDelay != time.Second {
		t.Errorf("expected agent delay 1s, got %v", cfg.Orchestrator.AgentDelay)
	}
	// Unchanged fields keep defaults
	if cfg.Redis.QueueKey != "jobs:queue" {
		t.Errorf("expected default queue key, got %s", cfg.Redis.QueueKey)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, "/nonexistent/path.yaml"); err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("CONTENT_PORT", "7070")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("CONTENT_STORE_BACKEND", "natskv")
	t.Setenv("CONTENT_WORKERS", "8")
	t.Setenv("CONTENT_STREAM_INTERVAL", "5s")
	t.Setenv("CONTENT_CLEANUP_ENABLED", "false")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("expected api key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Store.Backend != "natskv" {
		t.Errorf("expected natskv, got %s", cfg.Store.Backend)
	}
	if cfg.Dispatch.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Dispatch.Workers)
	}
	if cfg.Stream.Interval != 5*time.Second {
		t.Errorf("expected 5s, got %v", cfg.Stream.Interval)
	}
	if cfg.Cleanup.Enabled {
		t.Errorf("expected cleanup disabled")
	}
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	cfg := Defaults()
	t.Setenv("CONTENT_WORKERS", "many")
	t.Setenv("CONTENT_JOB_TIMEOUT", "soon")

	loadEnv(&cfg)

	if cfg.Dispatch.Workers != 4 {
		t.Errorf("expected default workers, got %d", cfg.Dispatch.Workers)
	}
	if cfg.Orchestrator.JobTimeout != 10*time.Minute {
		t.Errorf("expected default job timeout, got %v", cfg.Orchestrator.JobTimeout)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"mock ok", func(c *Config) { c.LLM.Provider = "mock" }, ""},
		{"anthropic needs key", func(c *Config) {}, "ANTHROPIC_API_KEY"},
		{"unknown backend", func(c *Config) { c.LLM.Provider = "mock"; c.Store.Backend = "s3" }, "store.backend"},
		{"fs needs dir", func(c *Config) { c.LLM.Provider = "mock"; c.Store.Dir = "" }, "store.dir"},
		{"unknown dispatch", func(c *Config) { c.LLM.Provider = "mock"; c.Dispatch.Mode = "cron" }, "dispatch.mode"},
		{"natskv needs url", func(c *Config) { c.LLM.Provider = "mock"; c.Store.Backend = "natskv" }, "nats.url"},
		{"queue rejects memory", func(c *Config) { c.LLM.Provider = "mock"; c.Store.Backend = "memory"; c.Dispatch.Mode = "queue" }, "store.backend memory"},
		{"queue with redis ok", func(c *Config) { c.LLM.Provider = "mock"; c.Store.Backend = "redis"; c.Dispatch.Mode = "queue" }, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := validate(&cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadFrom(t *testing.T) {
	t.Setenv("CONTENT_LLM_PROVIDER", "mock")
	t.Setenv("CONTENT_STORE_BACKEND", "memory")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("expected memory backend, got %s", cfg.Store.Backend)
	}
}

func TestRedactDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://content:secret@db:5432/content?sslmode=disable": "postgres://content:****@db:5432/content?sslmode=disable",
		"postgres://content@db:5432/content":                        "postgres://content@db:5432/content",
		"redis://localhost:6379":                                    "redis://localhost:6379",
	}
	for in, want := range cases {
		if got := RedactDSN(in); got != want {
			t.Errorf("RedactDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
