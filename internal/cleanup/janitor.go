// Package cleanup removes job records past their retention.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"content-agent-service/internal/config"
	"content-agent-service/internal/entity"
	"content-agent-service/internal/metrics"
)

type Store interface {
	List(ctx context.Context) ([]*entity.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Stats struct {
	LastRun         time.Time
	LastRunDuration time.Duration
	LastDeleted     int
	TotalDeleted    int64
}

// Janitor deletes jobs whose createdAt is older than the retention,
// whatever their status. A job still running past the retention is removed
// too; the run's later progress writes then fail with not found.
type Janitor struct {
	cfg     config.Cleanup
	store   Store
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time

	mu    sync.RWMutex
	stats Stats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewJanitor(cfg config.Cleanup, store Store, m *metrics.Metrics, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{cfg: cfg, store: store, metrics: m, log: log, now: time.Now}
}

// Start runs a sweep every interval until Stop. It does nothing when
// cleanup is disabled.
func (j *Janitor) Start(ctx context.Context) {
	if !j.cfg.Enabled {
		j.log.Info("cleanup disabled")
		return
	}
	j.log.Info("cleanup started", "retention", j.cfg.Retention.String(), "interval", j.cfg.Interval.String())

	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}()
}

func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

// Sweep runs one pass and returns the number of deleted jobs.
func (j *Janitor) Sweep(ctx context.Context) int {
	start := j.now()
	cutoff := start.Add(-j.cfg.Retention)

	jobs, err := j.store.List(ctx)
	if err != nil {
		j.log.Error("cleanup list jobs", "error", err)
		return 0
	}

	deleted := 0
	for _, job := range jobs {
		if !job.CreatedAt.Before(cutoff) {
			continue
		}
		if err := j.store.Delete(ctx, job.ID); err != nil {
			j.log.Warn("cleanup delete job", "job_id", job.ID.String(), "error", err)
			continue
		}
		deleted++
	}

	j.mu.Lock()
	j.stats.LastRun = start
	j.stats.LastRunDuration = j.now().Sub(start)
	j.stats.LastDeleted = deleted
	j.stats.TotalDeleted += int64(deleted)
	j.mu.Unlock()

	j.metrics.CleanupDeleted(deleted)
	if deleted > 0 {
		j.log.Info("cleanup deleted jobs", "count", deleted, "scanned", len(jobs))
	}
	return deleted
}

func (j *Janitor) Stats() Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stats
}
