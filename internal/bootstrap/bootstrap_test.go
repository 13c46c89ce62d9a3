package bootstrap_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"content-agent-service/internal/agent"
	"content-agent-service/internal/bootstrap"
	"content-agent-service/internal/config"
	"content-agent-service/internal/entity"
	"content-agent-service/internal/events"
	"content-agent-service/internal/repository/cached"
	"content-agent-service/internal/service"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func localConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Store.Backend = "memory"
	cfg.LLM.Provider = "mock"
	return &cfg
}

func TestOpen_MemoryNeedsNoServices(t *testing.T) {
	deps, err := bootstrap.Open(context.Background(), localConfig(), quietLog())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer deps.Close()

	if deps.Store == nil {
		t.Fatal("store is nil")
	}
	if deps.Redis != nil || deps.Bus != nil {
		t.Fatal("no redis or nats expected for the default local config")
	}
	if _, ok := deps.Events().(events.Noop); !ok {
		t.Fatalf("events = %T, want events.Noop", deps.Events())
	}
}

func TestOpen_FilesystemIsCached(t *testing.T) {
	cfg := localConfig()
	cfg.Store.Backend = "filesystem"
	cfg.Store.Dir = t.TempDir()

	deps, err := bootstrap.Open(context.Background(), cfg, quietLog())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer deps.Close()

	if _, ok := deps.Store.(*cached.JobRepository); !ok {
		t.Fatalf("store = %T, want cached wrapper", deps.Store)
	}
	if _, ok := deps.Backend.(*cached.JobRepository); ok {
		t.Fatal("backend should be the uncached store")
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := localConfig()
	cfg.Store.Backend = "tape"
	if _, err := bootstrap.Open(context.Background(), cfg, quietLog()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestOpen_NATSKVNeedsURL(t *testing.T) {
	cfg := localConfig()
	cfg.Store.Backend = "natskv"
	cfg.NATS.URL = ""
	if _, err := bootstrap.Open(context.Background(), cfg, quietLog()); err == nil {
		t.Fatal("expected error without nats.url")
	}
}

func TestInlineRunWithMockProvider(t *testing.T) {
	cfg := localConfig()
	log := quietLog()

	deps, err := bootstrap.Open(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer deps.Close()

	orch, tracker, chain := bootstrap.NewRunner(cfg, deps.Store, deps.Events(), nil, log)
	inline := service.NewInlineDispatcher(context.Background(), orch, time.Minute, log)
	svc := service.NewJobService(deps.Store, inline, tracker, agent.Refs(chain), nil, log)

	id, err := svc.CreateJob(context.Background(), json.RawMessage(`{"topic":"Trail shoes","audience":"runners"}`))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	inline.Wait()

	job, err := svc.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != entity.StatusCompleted || job.Progress != 100 {
		t.Fatalf("status=%s progress=%d, want completed/100 (error %q)", job.Status, job.Progress, job.Error)
	}
	if len(job.Agents) != len(chain) {
		t.Fatalf("agents = %d, want %d", len(job.Agents), len(chain))
	}
	for _, a := range job.Agents {
		if a.Status != entity.AgentCompleted {
			t.Fatalf("agent %s = %s", a.AgentID, a.Status)
		}
	}

	var res struct {
		Content json.RawMessage            `json:"content"`
		Steps   map[string]json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal(job.Result, &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if len(res.Steps) != len(chain) || len(res.Content) == 0 {
		t.Fatalf("result = %s", job.Result)
	}
}
