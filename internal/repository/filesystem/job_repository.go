// Package filesystem stores one JSON file per job in a directory.
package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"content-agent-service/internal/entity"
)

const ext = ".json"

type JobRepository struct {
	dir string
}

// NewJobRepository creates dir if needed.
func NewJobRepository(dir string) (*JobRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", dir, err)
	}
	return &JobRepository{dir: dir}, nil
}

func (r *JobRepository) path(id uuid.UUID) string {
	return filepath.Join(r.dir, id.String()+ext)
}

// writeTemp writes the record to a temp file in the store dir so the
// final rename/link stays on one filesystem.
func (r *JobRepository) writeTemp(job *entity.Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	f, err := os.CreateTemp(r.dir, ".job-*.tmp")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// Create links the temp file into place, which fails if the id exists.
func (r *JobRepository) Create(_ context.Context, job *entity.Job) error {
	tmp, err := r.writeTemp(job)
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	defer func() { _ = os.Remove(tmp) }()

	if err := os.Link(tmp, r.path(job.ID)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return entity.ErrAlreadyExists
		}
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

func (r *JobRepository) Get(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	return r.read(r.path(id))
}

func (r *JobRepository) read(path string) (*entity.Job, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path built from a uuid
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}
	var j entity.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &j, nil
}

// Save replaces the record atomically; concurrent saves: last rename wins.
func (r *JobRepository) Save(_ context.Context, job *entity.Job) error {
	tmp, err := r.writeTemp(job)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	if err := os.Rename(tmp, r.path(job.ID)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (r *JobRepository) List(_ context.Context) ([]*entity.Job, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.dir, err)
	}
	out := make([]*entity.Job, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) || strings.HasPrefix(name, ".") {
			continue
		}
		j, err := r.read(filepath.Join(r.dir, name))
		if err != nil {
			// deleted between ReadDir and ReadFile
			if errors.Is(err, entity.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func (r *JobRepository) Delete(_ context.Context, id uuid.UUID) error {
	if err := os.Remove(r.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entity.ErrNotFound
		}
		return err
	}
	return nil
}
