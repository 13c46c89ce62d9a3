// cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"content-agent-service/internal/bootstrap"
	"content-agent-service/internal/config"
	"content-agent-service/internal/logger"
	"content-agent-service/internal/service"
	"content-agent-service/internal/worker"
)

const reapInterval = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Dispatch.Mode != "queue" {
		return fmt.Errorf("worker needs dispatch.mode=queue, got %q", cfg.Dispatch.Mode)
	}
	log := logger.New(cfg.Logging).With("component", "worker")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	queue := service.NewRedisQueue(deps.Redis, cfg.Redis.QueueKey, cfg.Redis.ProcessingKey)
	orch, _, _ := bootstrap.NewRunner(cfg, deps.Backend, deps.Events(), nil, log)

	// A claim older than the job timeout belongs to a worker that died.
	reaper := worker.NewReaper(queue, reapInterval, cfg.Orchestrator.JobTimeout+time.Minute, nil, log)
	go reaper.Run(ctx)

	processor := worker.NewProcessor(deps.Backend, orch, cfg.Orchestrator.JobTimeout, log)
	pool := worker.NewPool(queue, processor, cfg.Dispatch.Workers, log)

	log.Info("worker started",
		"workers", cfg.Dispatch.Workers,
		"redis_addr", cfg.Redis.Addr,
		"queue_key", cfg.Redis.QueueKey,
		"processing_key", cfg.Redis.ProcessingKey,
		"store", cfg.Store.Backend,
		"postgres_dsn", config.RedactDSN(cfg.Postgres.DSN),
	)
	if err := pool.Run(ctx); err != nil {
		return err
	}
	log.Info("worker stopped")
	return nil
}
