package worker

import (
	"context"
	"log/slog"
	"time"

	"content-agent-service/internal/metrics"
	"content-agent-service/internal/service"
)

// Reaper periodically puts claims that outlived staleAfter back on the
// queue (the worker holding them is assumed dead). staleAfter should exceed
// the job timeout.
type Reaper struct {
	queue      service.Queue
	interval   time.Duration
	staleAfter time.Duration
	metrics    *metrics.Metrics
	log        *slog.Logger
}

func NewReaper(queue service.Queue, interval, staleAfter time.Duration, m *metrics.Metrics, log *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{queue: queue, interval: interval, staleAfter: staleAfter, metrics: m, log: log}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one requeue pass and returns how many ids moved.
func (r *Reaper) Sweep(ctx context.Context) int64 {
	n, err := r.queue.RequeueStale(ctx, r.staleAfter)
	if err != nil {
		r.log.Error("requeue stale claims", "error", err)
		return n
	}
	if n > 0 {
		r.log.Warn("requeued stale claims", "count", n)
	}
	r.metrics.Requeued(n)
	return n
}
