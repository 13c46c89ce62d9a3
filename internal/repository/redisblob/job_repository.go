// Package redisblob stores job records as JSON blobs under redis string keys.
package redisblob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"content-agent-service/internal/entity"
)

const scanBatch = 100

type JobRepository struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewJobRepository stores records under prefix+id. ttl 0 keeps keys forever.
func NewJobRepository(rdb *redis.Client, prefix string, ttl time.Duration) *JobRepository {
	return &JobRepository{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *JobRepository) key(id uuid.UUID) string {
	return r.prefix + id.String()
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	ok, err := r.rdb.SetNX(ctx, r.key(job.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	if !ok {
		return entity.ErrAlreadyExists
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}
	return decode(data)
}

// Save overwrites the record and refreshes its TTL.
func (r *JobRepository) Save(ctx context.Context, job *entity.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := r.rdb.Set(ctx, r.key(job.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (r *JobRepository) List(ctx context.Context) ([]*entity.Job, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if _, err := uuid.Parse(strings.TrimPrefix(k, r.prefix)); err != nil {
			continue
		}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}

	out := make([]*entity.Job, 0, len(keys))
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		vals, err := r.rdb.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("mget jobs: %w", err)
		}
		for _, v := range vals {
			s, ok := v.(string)
			if !ok {
				// expired between SCAN and MGET
				continue
			}
			j, err := decode([]byte(s))
			if err != nil {
				return nil, err
			}
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := r.rdb.Del(ctx, r.key(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func decode(data []byte) (*entity.Job, error) {
	var j entity.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &j, nil
}
