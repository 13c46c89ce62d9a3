package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"content-agent-service/internal/entity"
	"content-agent-service/internal/metrics"
)

type JobService struct {
	store      JobStore
	dispatcher Dispatcher
	tracker    *Tracker
	agents     []entity.AgentRef
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
}

func NewJobService(store JobStore, dispatcher Dispatcher, tracker *Tracker, agents []entity.AgentRef, m *metrics.Metrics, log *slog.Logger) *JobService {
	if log == nil {
		log = slog.Default()
	}
	return &JobService{
		store:      store,
		dispatcher: dispatcher,
		tracker:    tracker,
		agents:     agents,
		metrics:    m,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob validates the request, stores a queued record with every agent
// pending and dispatches it. A dispatch failure marks the job failed.
func (s *JobService) CreateJob(ctx context.Context, raw json.RawMessage) (uuid.UUID, error) {
	if _, err := entity.ParseContentRequest(raw); err != nil {
		return uuid.Nil, err
	}

	job := entity.NewJob(uuid.New(), raw, s.agents, s.now())
	if err := s.store.Create(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("create job: %w", err)
	}
	s.metrics.JobCreated()

	if err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
		if failErr := s.tracker.Fail(ctx, job.ID, fmt.Errorf("dispatch: %w", err)); failErr != nil {
			s.log.Error("mark undispatched job failed", "job_id", job.ID.String(), "error", failErr)
		}
		return uuid.Nil, fmt.Errorf("dispatch job %s: %w", job.ID, err)
	}

	s.log.Info("job created", "job_id", job.ID.String(), "agents", len(job.Agents))
	return job.ID, nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.store.Get(ctx, id)
}

// ListJobs returns the newest jobs first. limit <= 0 means all.
func (s *JobService) ListJobs(ctx context.Context, limit int) ([]*entity.Job, error) {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *JobService) DeleteJob(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}
