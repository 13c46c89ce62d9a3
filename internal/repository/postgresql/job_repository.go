package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"content-agent-service/internal/entity"
)

const uniqueViolation = "23505"

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	agents, err := json.Marshal(job.Agents)
	if err != nil {
		return fmt.Errorf("marshal agents: %w", err)
	}

	const q = `
INSERT INTO content_jobs (id, status, progress, request, agents, result, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err = r.pool.Exec(ctx, q,
		job.ID, string(job.Status), job.Progress, nullJSON(job.Request), agents,
		nullJSON(job.Result), job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return entity.ErrAlreadyExists
		}
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	const q = `
SELECT id, status, progress, request, agents, result, error, created_at, updated_at
FROM content_jobs
WHERE id = $1;
`
	j, err := scanJob(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}
	return j, nil
}

// Save upserts the whole record. No version column: last write wins.
func (r *JobRepository) Save(ctx context.Context, job *entity.Job) error {
	agents, err := json.Marshal(job.Agents)
	if err != nil {
		return fmt.Errorf("marshal agents: %w", err)
	}

	const q = `
INSERT INTO content_jobs (id, status, progress, request, agents, result, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    progress = EXCLUDED.progress,
    request = EXCLUDED.request,
    agents = EXCLUDED.agents,
    result = EXCLUDED.result,
    error = EXCLUDED.error,
    updated_at = EXCLUDED.updated_at;
`
	if _, err := r.pool.Exec(ctx, q,
		job.ID, string(job.Status), job.Progress, nullJSON(job.Request), agents,
		nullJSON(job.Result), job.Error, job.CreatedAt, job.UpdatedAt,
	); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (r *JobRepository) List(ctx context.Context) ([]*entity.Job, error) {
	const q = `
SELECT id, status, progress, request, agents, result, error, created_at, updated_at
FROM content_jobs
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*entity.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM content_jobs WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*entity.Job, error) {
	var (
		job         entity.Job
		statusText  string
		reqBytes    []byte
		agentsBytes []byte
		resultBytes []byte
	)
	if err := row.Scan(
		&job.ID,
		&statusText,
		&job.Progress,
		&reqBytes, // NULL => nil
		&agentsBytes,
		&resultBytes, // NULL => nil
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.Status = entity.JobStatus(statusText)
	if reqBytes != nil {
		job.Request = json.RawMessage(reqBytes)
	}
	if resultBytes != nil {
		job.Result = json.RawMessage(resultBytes)
	}
	if err := json.Unmarshal(agentsBytes, &job.Agents); err != nil {
		return nil, fmt.Errorf("decode agents for %s: %w", job.ID, err)
	}
	return &job, nil
}

// nullJSON maps an empty document to SQL NULL.
func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
