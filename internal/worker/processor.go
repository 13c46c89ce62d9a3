package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"content-agent-service/internal/entity"
	"content-agent-service/internal/service"
)

type JobReader interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
}

type Processor struct {
	jobs    JobReader
	runner  service.JobRunner
	timeout time.Duration
	log     *slog.Logger
}

func NewProcessor(jobs JobReader, runner service.JobRunner, timeout time.Duration, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{jobs: jobs, runner: runner, timeout: timeout, log: log}
}

// Process runs one claimed job. Finished jobs (a duplicate delivery) are
// skipped.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	start := time.Now()

	id, err := uuid.Parse(jobID)
	if err != nil {
		return fmt.Errorf("parse job id %q: %w", jobID, err)
	}

	job, err := p.jobs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get job %s: %w", id, err)
	}
	if job.Status.Terminal() {
		p.log.Info("job already finished, skipping", "job_id", id.String(), "status", string(job.Status))
		return nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.log.Info("job claimed", "job_id", id.String(), "status", string(job.Status))
	err = p.runner.Run(ctx, id)
	p.log.Info("job processed", "job_id", id.String(), "duration_ms", time.Since(start).Milliseconds(), "ok", err == nil)
	return err
}
