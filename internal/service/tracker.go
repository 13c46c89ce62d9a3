package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"content-agent-service/internal/entity"
	"content-agent-service/internal/metrics"
)

// Tracker records run progress on the stored job. Every call is a
// read-modify-write of the whole record; concurrent writers are not
// coordinated and the last Save wins.
type Tracker struct {
	store    JobStore
	notifier Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewTracker(store JobStore, notifier Notifier, m *metrics.Metrics, log *slog.Logger) *Tracker {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		store:    store,
		notifier: notifier,
		metrics:  m,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (t *Tracker) update(ctx context.Context, id uuid.UUID, fn func(j *entity.Job, now time.Time) error) (*entity.Job, error) {
	j, err := t.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	now := t.now()
	if err := fn(j, now); err != nil {
		return nil, err
	}
	j.UpdatedAt = now
	if err := t.store.Save(ctx, j); err != nil {
		return nil, fmt.Errorf("save job %s: %w", id, err)
	}
	if err := t.notifier.JobUpdated(ctx, j); err != nil {
		t.log.Warn("job update notification failed", "job_id", id.String(), "error", err)
	}
	return j, nil
}

// Start moves the job to running and returns the record.
func (t *Tracker) Start(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return t.update(ctx, id, func(j *entity.Job, now time.Time) error {
		return j.SetStatus(entity.StatusRunning, now)
	})
}

func (t *Tracker) AgentStarted(ctx context.Context, id uuid.UUID, agentID string) error {
	_, err := t.update(ctx, id, func(j *entity.Job, now time.Time) error {
		a, err := j.Agent(agentID)
		if err != nil {
			return err
		}
		return a.Start(now)
	})
	return err
}

func (t *Tracker) AgentCompleted(ctx context.Context, id uuid.UUID, agentID string, output json.RawMessage) error {
	_, err := t.update(ctx, id, func(j *entity.Job, now time.Time) error {
		a, err := j.Agent(agentID)
		if err != nil {
			return err
		}
		if err := a.Complete(now, output); err != nil {
			return err
		}
		t.observeAgent(a)
		j.RecomputeProgress()
		return nil
	})
	return err
}

func (t *Tracker) AgentFailed(ctx context.Context, id uuid.UUID, agentID string, cause error) error {
	_, err := t.update(ctx, id, func(j *entity.Job, now time.Time) error {
		a, err := j.Agent(agentID)
		if err != nil {
			return err
		}
		if err := a.Fail(now, cause.Error()); err != nil {
			return err
		}
		t.observeAgent(a)
		return nil
	})
	return err
}

// Complete stores the result and marks the job completed with progress 100.
func (t *Tracker) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	_, err := t.update(ctx, id, func(j *entity.Job, now time.Time) error {
		if err := j.SetStatus(entity.StatusCompleted, now); err != nil {
			return err
		}
		j.Result = result
		j.Error = ""
		return nil
	})
	if err == nil {
		t.metrics.JobFinished(string(entity.StatusCompleted))
	}
	return err
}

// Fail marks the job failed with cause. Pending agents stay pending.
func (t *Tracker) Fail(ctx context.Context, id uuid.UUID, cause error) error {
	_, err := t.update(ctx, id, func(j *entity.Job, now time.Time) error {
		if err := j.SetStatus(entity.StatusFailed, now); err != nil {
			return err
		}
		j.Error = cause.Error()
		return nil
	})
	if err == nil {
		t.metrics.JobFinished(string(entity.StatusFailed))
	}
	return err
}

func (t *Tracker) observeAgent(a *entity.AgentStatus) {
	if a.StartTime == nil || a.EndTime == nil {
		return
	}
	t.metrics.AgentFinished(a.AgentID, string(a.Status), a.EndTime.Sub(*a.StartTime))
}
