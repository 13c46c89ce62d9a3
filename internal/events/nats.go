// Package events fans job record changes out to status streams.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"content-agent-service/internal/entity"
)

// Subject is the per-job update subject.
func Subject(id uuid.UUID) string {
	return "jobs." + id.String() + ".updated"
}

type Bus struct{ nc *nats.Conn }

func Connect(url string) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name("content-agent-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Bus{nc: nc}, nil
}

// NewBus wraps an existing connection, e.g. one shared with JetStream KV.
func NewBus(nc *nats.Conn) *Bus { return &Bus{nc: nc} }

func (b *Bus) Close() {
	if b.nc != nil {
		_ = b.nc.Drain()
	}
}

func (b *Bus) Conn() *nats.Conn { return b.nc }

// JobUpdated publishes the record on its subject.
func (b *Bus) JobUpdated(_ context.Context, job *entity.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.nc.Publish(Subject(job.ID), data)
}

// Subscribe signals on the returned channel whenever id changes. Signals
// coalesce; a reader sees at least one after any burst. The stop func
// unsubscribes and is also called when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, id uuid.UUID) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	sub, err := b.nc.Subscribe(Subject(id), func(*nats.Msg) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", Subject(id), err)
	}

	stopCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-stopCtx.Done()
		_ = sub.Unsubscribe()
	}()
	return ch, cancel, nil
}

// Noop is used when NATS is not configured. Subscribers only see the
// SSE poll interval.
type Noop struct{}

func (Noop) JobUpdated(context.Context, *entity.Job) error { return nil }

func (Noop) Subscribe(context.Context, uuid.UUID) (<-chan struct{}, func(), error) {
	return nil, func() {}, nil
}
