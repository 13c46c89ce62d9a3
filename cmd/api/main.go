// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "content-agent-service/docs"
	"content-agent-service/internal/agent"
	"content-agent-service/internal/bootstrap"
	"content-agent-service/internal/cleanup"
	"content-agent-service/internal/config"
	"content-agent-service/internal/logger"
	"content-agent-service/internal/metrics"
	"content-agent-service/internal/service"
	httptransport "content-agent-service/internal/transport/http"
)

// @title Content Agent Service API
// @version 1.0
// @description Creates marketing content jobs, runs the agent chain and reports status by polling or Server-Sent Events.
// @BasePath /
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
	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Backend,
		"dispatch", cfg.Dispatch.Mode,
		"llm", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"postgres_dsn", config.RedactDSN(cfg.Postgres.DSN),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---
	deps, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	ev := deps.Events()

	// --- Services ---
	orch, tracker, chain := bootstrap.NewRunner(cfg, deps.Store, ev, m, log)

	// runCtx outlives HTTP requests; cancelling it on shutdown fails
	// in-flight inline jobs.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	var dispatcher service.Dispatcher
	var inline *service.InlineDispatcher
	switch cfg.Dispatch.Mode {
	case "queue":
		dispatcher = service.NewQueueDispatcher(service.NewRedisQueue(deps.Redis, cfg.Redis.QueueKey, cfg.Redis.ProcessingKey))
	default:
		inline = service.NewInlineDispatcher(runCtx, orch, cfg.Orchestrator.JobTimeout, log)
		dispatcher = inline
	}

	jobSvc := service.NewJobService(deps.Store, dispatcher, tracker, agent.Refs(chain), m, log)

	janitor := cleanup.NewJanitor(cfg.Cleanup, deps.Store, m, log)
	janitor.Start(ctx)
	defer janitor.Stop()

	// --- HTTP ---
	h := httptransport.NewHandler(jobSvc, ev, cfg.Stream, m, log)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           httptransport.Routes(h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		// no WriteTimeout: status streams stay open up to stream.max_duration
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}

	if inline != nil {
		cancelRuns()
		inline.Wait()
	}
	log.Info("api stopped")
	return nil
}
