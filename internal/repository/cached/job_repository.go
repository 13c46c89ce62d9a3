// Package cached puts a short-lived ristretto read cache in front of a job
// repository. Status endpoints are polled every few seconds per client;
// the cache absorbs those reads.
package cached

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"

	"content-agent-service/internal/entity"
)

// Backend is the repository being cached.
type Backend interface {
	Create(ctx context.Context, job *entity.Job) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	Save(ctx context.Context, job *entity.Job) error
	List(ctx context.Context) ([]*entity.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// JobRepository caches Get results. Every write bumps a generation
// counter; a Get only fills the cache when no write happened between its
// backend read and the fill, so a slow reader never caches a record older
// than the last Save.
type JobRepository struct {
	next  Backend
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration

	mu  sync.Mutex
	gen uint64
}

// New wraps next. maxCostBytes bounds the total size of cached records.
func New(next Backend, maxCostBytes int64, ttl time.Duration) (*JobRepository, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxCostBytes/100, 1000),
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &JobRepository{next: next, cache: c, ttl: ttl}, nil
}

func (r *JobRepository) Close() {
	r.cache.Close()
}

func (r *JobRepository) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// invalidate drops the cached record and bumps the generation.
func (r *JobRepository) invalidate(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.cache.Del(key)
}

// fill caches data unless a write happened since gen was read.
func (r *JobRepository) fill(key string, gen uint64, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return
	}
	r.cache.SetWithTTL(key, data, int64(len(data)), r.ttl)
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	key := job.ID.String()
	r.invalidate(key)
	err := r.next.Create(ctx, job)
	r.invalidate(key)
	return err
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	key := id.String()
	if data, ok := r.cache.Get(key); ok {
		var j entity.Job
		if err := json.Unmarshal(data, &j); err == nil {
			return &j, nil
		}
		r.cache.Del(key)
	}

	gen := r.generation()
	j, err := r.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(j); err == nil {
		r.fill(key, gen, data)
	}
	return j, nil
}

// Save invalidates before and after the backend write. A Get that read
// the old record while the write was in flight sees a newer generation
// and does not cache it.
func (r *JobRepository) Save(ctx context.Context, job *entity.Job) error {
	key := job.ID.String()
	r.invalidate(key)
	err := r.next.Save(ctx, job)
	r.invalidate(key)
	return err
}

// List is not cached; only the janitor and the list endpoint call it.
func (r *JobRepository) List(ctx context.Context) ([]*entity.Job, error) {
	return r.next.List(ctx)
}

func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	key := id.String()
	r.invalidate(key)
	err := r.next.Delete(ctx, id)
	r.invalidate(key)
	return err
}

// Wait blocks until buffered cache writes are applied.
func (r *JobRepository) Wait() {
	r.cache.Wait()
}
