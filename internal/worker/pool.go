package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"content-agent-service/internal/service"
)

type Pool struct {
	queue      service.Queue
	processor  *Processor
	workers    int
	claimDelay time.Duration
	log        *slog.Logger
}

func NewPool(queue service.Queue, processor *Processor, workers int, log *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		queue:      queue,
		processor:  processor,
		workers:    workers,
		claimDelay: 5 * time.Second,
		log:        log,
	}
}

// Run claims ids until ctx is done and waits for in-flight jobs.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("worker pool started", "workers", p.workers)

	jobCh := make(chan string)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		n := i + 1
		g.Go(func() error {
			for jobID := range jobCh {
				if err := p.processor.Process(gctx, jobID); err != nil {
					p.log.Warn("process job", "worker", n, "job_id", jobID, "error", err)
				}

				// Ack regardless: the record already carries the outcome. A crash
				// before this line leaves the claim for the reaper.
				ackCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
				if err := p.queue.Ack(ackCtx, jobID); err != nil {
					p.log.Error("ack job", "worker", n, "job_id", jobID, "error", err)
				}
				cancel()
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobCh)
		for {
			jobID, err := p.queue.ClaimBlocking(gctx, p.claimDelay)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				if !errors.Is(err, service.ErrQueueEmpty) {
					p.log.Warn("claim job", "error", err)
					// back off so a dead redis does not spin the loop
					select {
					case <-time.After(time.Second):
					case <-gctx.Done():
						return nil
					}
				}
				continue
			}
			select {
			case jobCh <- jobID:
			case <-gctx.Done():
				return nil
			}
		}
	})

	err := g.Wait()
	p.log.Info("worker pool stopped")
	if err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	return nil
}
