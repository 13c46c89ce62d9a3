package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Job struct {
	ID        uuid.UUID       `json:"id"`
	Status    JobStatus       `json:"status"`
	Progress  int             `json:"progress"`
	Request   json.RawMessage `json:"request,omitempty"`
	Agents    []AgentStatus   `json:"agents"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewJob builds a queued job with every agent pending.
func NewJob(id uuid.UUID, request json.RawMessage, agents []AgentRef, now time.Time) *Job {
	j := &Job{
		ID:        id,
		Status:    StatusQueued,
		Request:   request,
		Agents:    make([]AgentStatus, 0, len(agents)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, a := range agents {
		j.Agents = append(j.Agents, AgentStatus{AgentID: a.ID, Name: a.Name, Status: AgentPending})
	}
	return j
}

// AgentRef names an agent without pulling the agent package into entity.
type AgentRef struct {
	ID   string
	Name string
}

// Agent returns the status slot for agentID.
func (j *Job) Agent(agentID string) (*AgentStatus, error) {
	for i := range j.Agents {
		if j.Agents[i].AgentID == agentID {
			return &j.Agents[i], nil
		}
	}
	return nil, fmt.Errorf("agent %q: %w", agentID, ErrNotFound)
}

// SetStatus moves the job forward. queued -> running -> completed|failed;
// queued may also fail directly. Setting the current status again is a no-op.
func (j *Job) SetStatus(to JobStatus, now time.Time) error {
	if j.Status == to {
		return nil
	}
	ok := false
	switch j.Status {
	case StatusQueued:
		ok = to == StatusRunning || to == StatusFailed
	case StatusRunning:
		ok = to == StatusCompleted || to == StatusFailed
	}
	if !ok {
		return fmt.Errorf("job %s: %s -> %s: %w", j.ID, j.Status, to, ErrInvalidTransition)
	}
	j.Status = to
	if to == StatusCompleted {
		j.Progress = 100
	}
	j.UpdatedAt = now
	return nil
}

// RecomputeProgress derives progress from completed agents.
// 100 is reserved for a completed job.
func (j *Job) RecomputeProgress() {
	if len(j.Agents) == 0 {
		return
	}
	done := 0
	for _, a := range j.Agents {
		if a.Status == AgentCompleted {
			done++
		}
	}
	p := done * 100 / len(j.Agents)
	if p >= 100 && j.Status != StatusCompleted {
		p = 99
	}
	if p > j.Progress {
		j.Progress = p
	}
}

// Clone returns a deep copy safe to mutate.
func (j *Job) Clone() *Job {
	c := *j
	c.Request = append(json.RawMessage(nil), j.Request...)
	c.Result = append(json.RawMessage(nil), j.Result...)
	c.Agents = make([]AgentStatus, len(j.Agents))
	for i, a := range j.Agents {
		c.Agents[i] = a.clone()
	}
	return &c
}
