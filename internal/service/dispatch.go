package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InlineDispatcher runs each job in a goroutine of the calling process.
// The run's context derives from base, not from the request, so a client
// that disconnects does not stop its job.
type InlineDispatcher struct {
	base    context.Context
	runner  JobRunner
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

func NewInlineDispatcher(base context.Context, runner JobRunner, timeout time.Duration, log *slog.Logger) *InlineDispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &InlineDispatcher{base: base, runner: runner, timeout: timeout, log: log}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, id uuid.UUID) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx := d.base
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}
		if err := d.runner.Run(ctx, id); err != nil {
			d.log.Warn("inline job ended with error", "job_id", id.String(), "error", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched run has returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

// QueueDispatcher pushes ids onto the redis queue for cmd/worker.
type QueueDispatcher struct {
	queue JobQueue
}

// JobQueue is the enqueue half of Queue.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
}

func NewQueueDispatcher(q JobQueue) *QueueDispatcher {
	return &QueueDispatcher{queue: q}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, id uuid.UUID) error {
	return d.queue.Enqueue(ctx, id.String())
}
