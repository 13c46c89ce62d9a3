package service

import (
	"context"

	"github.com/google/uuid"

	"content-agent-service/internal/entity"
)

// JobStore is the record persistence port (memory, filesystem, redis,
// natskv, postgresql; optionally behind the cached decorator).
type JobStore interface {
	Create(ctx context.Context, job *entity.Job) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	Save(ctx context.Context, job *entity.Job) error
	List(ctx context.Context) ([]*entity.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Dispatcher hands a freshly created job to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, id uuid.UUID) error
}

// Notifier is told about every record write. Errors are logged, never
// returned to the writer.
type Notifier interface {
	JobUpdated(ctx context.Context, job *entity.Job) error
}

// JobRunner runs the agent chain for one job to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, id uuid.UUID) error
}

type noopNotifier struct{}

func (noopNotifier) JobUpdated(context.Context, *entity.Job) error { return nil }
