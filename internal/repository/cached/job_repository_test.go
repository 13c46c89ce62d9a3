package cached_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"content-agent-service/internal/entity"
	"content-agent-service/internal/repository/cached"
	"content-agent-service/internal/repository/memory"
	"content-agent-service/internal/repository/repotest"
)

func newCached(t *testing.T, ttl time.Duration) (*cached.JobRepository, *memory.JobRepository) {
	t.Helper()
	backend := memory.NewJobRepository()
	c, err := cached.New(backend, 1<<20, ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c, backend
}

func TestJobRepository_Contract(t *testing.T) {
	c, _ := newCached(t, time.Minute)
	repotest.Run(t, c)
}

func TestJobRepository_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	c, backend := newCached(t, time.Minute)
	j := repotest.NewJob()
	if err := c.Create(ctx, j); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	// write behind the cache's back
	changed := j.Clone()
	_ = changed.SetStatus(entity.StatusRunning, time.Now())
	_ = backend.Save(ctx, changed)

	got, err := c.Get(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != entity.StatusQueued {
		t.Fatalf("expected cached queued record, got %s", got.Status)
	}
}

func TestJobRepository_SaveInvalidates(t *testing.T) {
	ctx := context.Background()
	c, _ := newCached(t, time.Minute)
	j := repotest.NewJob()
	_ = c.Create(ctx, j)
	_, _ = c.Get(ctx, j.ID)
	c.Wait()

	_ = j.SetStatus(entity.StatusRunning, time.Now())
	if err := c.Save(ctx, j); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != entity.StatusRunning {
		t.Fatalf("expected running after save, got %s", got.Status)
	}
}

// stallingBackend holds one armed Get after it has read the record, so a
// write can land while that reader still carries the old copy.
type stallingBackend struct {
	*memory.JobRepository

	mu      sync.Mutex
	armed   bool
	read    chan struct{}
	release chan struct{}
}

func newStallingBackend() *stallingBackend {
	return &stallingBackend{
		JobRepository: memory.NewJobRepository(),
		read:          make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (b *stallingBackend) arm() {
	b.mu.Lock()
	b.armed = true
	b.mu.Unlock()
}

func (b *stallingBackend) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	j, err := b.JobRepository.Get(ctx, id)
	b.mu.Lock()
	stall := b.armed
	b.armed = false
	b.mu.Unlock()
	if stall {
		close(b.read)
		<-b.release
	}
	return j, err
}

func TestJobRepository_SlowReaderDoesNotCacheOldRecord(t *testing.T) {
	ctx := context.Background()
	backend := newStallingBackend()
	c, err := cached.New(backend, 1<<20, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	j := repotest.NewJob()
	if err := c.Create(ctx, j); err != nil {
		t.Fatal(err)
	}

	backend.arm()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(ctx, j.ID)
	}()
	<-backend.read

	updated := j.Clone()
	_ = updated.SetStatus(entity.StatusRunning, time.Now())
	if err := c.Save(ctx, updated); err != nil {
		t.Fatal(err)
	}
	close(backend.release)
	<-done
	c.Wait()

	got, err := c.Get(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != entity.StatusRunning {
		t.Fatalf("cache kept the record read before the save: status %s", got.Status)
	}
}
