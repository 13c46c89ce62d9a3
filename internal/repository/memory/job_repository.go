// Package memory keeps job records in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"content-agent-service/internal/entity"
)

type JobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*entity.Job
}

func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[uuid.UUID]*entity.Job)}
}

func (r *JobRepository) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return entity.ErrAlreadyExists
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRepository) Get(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return j.Clone(), nil
}

func (r *JobRepository) Save(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRepository) List(_ context.Context) ([]*entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Clone())
	}
	return out, nil
}

func (r *JobRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return entity.ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}
