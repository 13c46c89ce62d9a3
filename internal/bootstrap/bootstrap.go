// Package bootstrap wires the infrastructure shared by the api and worker
// binaries: the selected job store, redis, NATS and the LLM client.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"content-agent-service/internal/agent"
	"content-agent-service/internal/config"
	"content-agent-service/internal/entity"
	"content-agent-service/internal/events"
	"content-agent-service/internal/llm"
	"content-agent-service/internal/metrics"
	"content-agent-service/internal/orchestrator"
	"content-agent-service/internal/repository/cached"
	"content-agent-service/internal/repository/filesystem"
	"content-agent-service/internal/repository/memory"
	"content-agent-service/internal/repository/natskv"
	"content-agent-service/internal/repository/postgresql"
	"content-agent-service/internal/repository/redisblob"
	"content-agent-service/internal/resilience"
	"content-agent-service/internal/service"
)

// Events publishes record changes and lets streams wait for them.
type Events interface {
	JobUpdated(ctx context.Context, job *entity.Job) error
	Subscribe(ctx context.Context, id uuid.UUID) (<-chan struct{}, func(), error)
}

type Deps struct {
	// Store may be cached. Backend is the same store without the cache,
	// for processes that serve no status reads.
	Store   service.JobStore
	Backend service.JobStore
	Redis   *redis.Client
	Bus     *events.Bus

	cfg     *config.Config
	log     *slog.Logger
	closers []func()
}

// Open connects everything cfg asks for. Close releases it in reverse order.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Deps, error) {
	d := &Deps{cfg: cfg, log: log}
	if err := d.open(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Deps) open(ctx context.Context) error {
	cfg := d.cfg

	if cfg.Store.Backend == "redis" || cfg.Dispatch.Mode == "queue" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		d.Redis = rdb
		d.log.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	if cfg.NATS.URL != "" {
		bus, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, bus.Close)
		d.Bus = bus
		d.log.Info("nats connected", "url", cfg.NATS.URL)
	}

	store, err := d.openStore(ctx)
	if err != nil {
		return err
	}
	d.Backend = store

	if cfg.Store.CacheTTL > 0 && cfg.Store.Backend != "memory" {
		c, err := cached.New(store, cfg.Store.CacheMaxBytes, cfg.Store.CacheTTL)
		if err != nil {
			return fmt.Errorf("store cache: %w", err)
		}
		d.closers = append(d.closers, c.Close)
		d.Store = c
	} else {
		d.Store = store
	}
	d.log.Info("job store ready", "backend", cfg.Store.Backend, "cache_ttl", cfg.Store.CacheTTL.String())
	return nil
}

func (d *Deps) openStore(ctx context.Context) (cached.Backend, error) {
	cfg := d.cfg
	switch cfg.Store.Backend {
	case "memory":
		return memory.NewJobRepository(), nil
	case "filesystem":
		repo, err := filesystem.NewJobRepository(cfg.Store.Dir)
		if err != nil {
			return nil, fmt.Errorf("filesystem store: %w", err)
		}
		return repo, nil
	case "redis":
		return redisblob.NewJobRepository(d.Redis, cfg.Store.KeyPrefix, blobTTL(cfg.Cleanup)), nil
	case "natskv":
		if d.Bus == nil {
			return nil, fmt.Errorf("natskv store: nats.url is not set")
		}
		js, err := jetstream.New(d.Bus.Conn())
		if err != nil {
			return nil, fmt.Errorf("jetstream: %w", err)
		}
		kv, err := natskv.OpenBucket(ctx, js, cfg.Store.Bucket, blobTTL(cfg.Cleanup))
		if err != nil {
			return nil, err
		}
		return natskv.NewJobRepository(kv), nil
	case "postgres":
		if err := postgresql.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		pool, err := postgresql.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		d.closers = append(d.closers, pool.Close)
		return postgresql.NewJobRepository(pool), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// blobTTL is a backstop expiry for key-value stores. The janitor still
// deletes by createdAt; the TTL only catches records it never saw.
func blobTTL(c config.Cleanup) time.Duration {
	if !c.Enabled {
		return 0
	}
	return 2 * c.Retention
}

// Events returns the NATS bus, or a no-op when NATS is not configured.
func (d *Deps) Events() Events {
	if d.Bus != nil {
		return d.Bus
	}
	return events.Noop{}
}

func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// NewCompleter builds the configured LLM provider.
func NewCompleter(cfg config.LLM, b config.Breaker) llm.Completer {
	if cfg.Provider == "mock" {
		return llm.NewMock()
	}
	return llm.NewAnthropic(llm.AnthropicConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.Timeout,
	}, resilience.NewBreaker(b.MaxFailures, b.Timeout))
}

// NewRunner assembles tracker and orchestrator over store. It returns the
// tracker too because JobService records dispatch failures through it.
func NewRunner(cfg *config.Config, store service.JobStore, notifier service.Notifier, m *metrics.Metrics, log *slog.Logger) (*orchestrator.Orchestrator, *service.Tracker, []agent.Agent) {
	chain := agent.DefaultChain()
	tracker := service.NewTracker(store, notifier, m, log)
	orch := orchestrator.New(tracker,
		agent.NewRunner(NewCompleter(cfg.LLM, cfg.Breaker), cfg.LLM.MaxTokens),
		chain,
		orchestrator.Options{
			AgentDelay:   cfg.Orchestrator.AgentDelay,
			AgentTimeout: cfg.Orchestrator.AgentTimeout,
		},
		log,
	)
	return orch, tracker, chain
}
