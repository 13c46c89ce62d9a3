// Package natskv stores job records in a NATS JetStream KeyValue bucket.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"content-agent-service/internal/entity"
)

// OpenBucket creates or updates the bucket. Entries expire after ttl,
// which doubles as the record retention.
func OpenBucket(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "content agent job records",
		History:     1,
		TTL:         ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

type JobRepository struct {
	kv jetstream.KeyValue
}

func NewJobRepository(kv jetstream.KeyValue) *JobRepository {
	return &JobRepository{kv: kv}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if _, err := r.kv.Create(ctx, job.ID.String(), data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return entity.ErrAlreadyExists
		}
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	entry, err := r.kv.Get(ctx, id.String())
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}
	var j entity.Job
	if err := json.Unmarshal(entry.Value(), &j); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &j, nil
}

func (r *JobRepository) Save(ctx context.Context, job *entity.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if _, err := r.kv.Put(ctx, job.ID.String(), data); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (r *JobRepository) List(ctx context.Context) ([]*entity.Job, error) {
	lister, err := r.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var out []*entity.Job
	for key := range lister.Keys() {
		id, err := uuid.Parse(key)
		if err != nil {
			continue
		}
		j, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// Delete checks for the key first: a KV delete of a missing key succeeds.
func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.kv.Get(ctx, id.String()); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return entity.ErrNotFound
		}
		return err
	}
	return r.kv.Delete(ctx, id.String())
}
