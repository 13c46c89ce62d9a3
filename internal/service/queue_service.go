package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error)
	Ack(ctx context.Context, jobID string) error
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ErrQueueEmpty is returned by ClaimBlocking when nothing arrived in time.
var ErrQueueEmpty = errors.New("queue empty")

// redisQueue is a reliable queue over Redis lists.
// Claim: BRPOPLPUSH queue -> processing, claim time stored in claimsKey.
// Ack:   LREM from processing and HDEL the claim.
type redisQueue struct {
	rdb           *redis.Client
	queueKey      string
	processingKey string
	claimsKey     string
	now           func() time.Time
}

func NewRedisQueue(rdb *redis.Client, queueKey, processingKey string) Queue {
	return &redisQueue{
		rdb:           rdb,
		queueKey:      queueKey,
		processingKey: processingKey,
		claimsKey:     processingKey + ":claims",
		now:           time.Now,
	}
}

func (q *redisQueue) Enqueue(ctx context.Context, jobID string) error {
	return q.rdb.LPush(ctx, q.queueKey, jobID).Err()
}

// ClaimBlocking waits up to timeout for an id. timeout <= 0 waits until ctx
// is done.
func (q *redisQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	id, err := q.rdb.BRPopLPush(ctx, q.queueKey, q.processingKey, timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrQueueEmpty
		}
		return "", err
	}
	claimed := strconv.FormatInt(q.now().UnixMilli(), 10)
	if err := q.rdb.HSet(ctx, q.claimsKey, id, claimed).Err(); err != nil {
		// without a claim time the reaper would treat it as stale at once
		return "", err
	}
	return id, nil
}

func (q *redisQueue) Ack(ctx context.Context, jobID string) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.processingKey, 1, jobID)
		p.HDel(ctx, q.claimsKey, jobID)
		return nil
	})
	return err
}

// RequeueStale moves claims older than olderThan back onto the queue.
// Delivery is at-least-once; a worker that was merely slow may see its job
// run twice.
func (q *redisQueue) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	ids, err := q.rdb.LRange(ctx, q.processingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	claims, err := q.rdb.HGetAll(ctx, q.claimsKey).Result()
	if err != nil {
		return 0, err
	}

	cutoff := q.now().Add(-olderThan).UnixMilli()
	var moved int64
	for _, id := range ids {
		if at, ok := claims[id]; ok {
			ms, perr := strconv.ParseInt(at, 10, 64)
			if perr == nil && ms > cutoff {
				continue
			}
		}
		var removed *redis.IntCmd
		_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			removed = p.LRem(ctx, q.processingKey, 1, id)
			p.HDel(ctx, q.claimsKey, id)
			return nil
		})
		if err != nil {
			return moved, err
		}
		// another reaper or a late Ack got there first
		if removed.Val() == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, q.queueKey, id).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}
