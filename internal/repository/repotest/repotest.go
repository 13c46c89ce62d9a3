// Package repotest holds behaviour checks shared by every job repository.
package repotest

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"content-agent-service/internal/entity"
)

type Store interface {
	Create(ctx context.Context, job *entity.Job) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	Save(ctx context.Context, job *entity.Job) error
	List(ctx context.Context) ([]*entity.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// NewJob returns a queued job with two pending agents.
func NewJob() *entity.Job {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return entity.NewJob(uuid.New(), json.RawMessage(`{"topic":"launch"}`), []entity.AgentRef{
		{ID: "brief-analyst", Name: "Brief Analyst"},
		{ID: "copywriter", Name: "Copywriter"},
	}, now)
}

// Run exercises the repository contract. Stores may hold records from
// earlier runs, so List checks containment only.
func Run(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		if _, err := s.Get(ctx, uuid.New()); !errors.Is(err, entity.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("create get", func(t *testing.T) {
		j := NewJob()
		if err := s.Create(ctx, j); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := s.Get(ctx, j.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ID != j.ID || got.Status != entity.StatusQueued || len(got.Agents) != 2 {
			t.Fatalf("unexpected record %+v", got)
		}
		if !jsonEqual(got.Request, `{"topic":"launch"}`) {
			t.Fatalf("request not preserved: %s", got.Request)
		}
		if !got.CreatedAt.Equal(j.CreatedAt) {
			t.Fatalf("createdAt %v != %v", got.CreatedAt, j.CreatedAt)
		}
	})

	t.Run("create twice", func(t *testing.T) {
		j := NewJob()
		if err := s.Create(ctx, j); err != nil {
			t.Fatal(err)
		}
		if err := s.Create(ctx, j); !errors.Is(err, entity.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("save overwrites", func(t *testing.T) {
		j := NewJob()
		if err := s.Create(ctx, j); err != nil {
			t.Fatal(err)
		}
		now := time.Now().UTC()
		_ = j.SetStatus(entity.StatusRunning, now)
		a, _ := j.Agent("brief-analyst")
		_ = a.Start(now)
		_ = a.Complete(now, json.RawMessage(`{"goals":["x"]}`))
		j.RecomputeProgress()
		if err := s.Save(ctx, j); err != nil {
			t.Fatalf("Save: %v", err)
		}

		got, err := s.Get(ctx, j.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != entity.StatusRunning || got.Progress != 50 {
			t.Fatalf("expected running/50, got %s/%d", got.Status, got.Progress)
		}
		if got.Agents[0].Status != entity.AgentCompleted || !jsonEqual(got.Agents[0].Output, `{"goals":["x"]}`) {
			t.Fatalf("agent not persisted: %+v", got.Agents[0])
		}
	})

	t.Run("list and delete", func(t *testing.T) {
		j := NewJob()
		if err := s.Create(ctx, j); err != nil {
			t.Fatal(err)
		}
		if !contains(t, s, j.ID) {
			t.Fatalf("List does not contain %s", j.ID)
		}
		if err := s.Delete(ctx, j.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, j.ID); !errors.Is(err, entity.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if contains(t, s, j.ID) {
			t.Fatalf("List still contains %s", j.ID)
		}
		if err := s.Delete(ctx, j.ID); !errors.Is(err, entity.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func contains(t *testing.T, s Store, id uuid.UUID) bool {
	t.Helper()
	jobs, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, j := range jobs {
		if j.ID == id {
			return true
		}
	}
	return false
}

// jsonEqual compares documents semantically; jsonb re-formats on the way out.
func jsonEqual(got json.RawMessage, want string) bool {
	var a, b any
	if json.Unmarshal(got, &a) != nil || json.Unmarshal([]byte(want), &b) != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}
