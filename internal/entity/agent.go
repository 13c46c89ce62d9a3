package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

type AgentState string

const (
	AgentPending   AgentState = "pending"
	AgentRunning   AgentState = "running"
	AgentCompleted AgentState = "completed"
	AgentFailed    AgentState = "failed"
)

type AgentStatus struct {
	AgentID   string          `json:"agentId"`
	Name      string          `json:"name,omitempty"`
	Status    AgentState      `json:"status"`
	StartTime *time.Time      `json:"startTime,omitempty"`
	EndTime   *time.Time      `json:"endTime,omitempty"`
	Error     string          `json:"error,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
}

// Start marks the agent running. A running agent may start again when a
// requeued job resumes after a worker crash.
func (a *AgentStatus) Start(now time.Time) error {
	if a.Status != AgentPending && a.Status != AgentRunning {
		return fmt.Errorf("agent %s: %s -> %s: %w", a.AgentID, a.Status, AgentRunning, ErrInvalidTransition)
	}
	a.Status = AgentRunning
	a.StartTime = &now
	return nil
}

// Complete marks a running agent completed with its output fragment.
func (a *AgentStatus) Complete(now time.Time, output json.RawMessage) error {
	if a.Status != AgentRunning {
		return fmt.Errorf("agent %s: %s -> %s: %w", a.AgentID, a.Status, AgentCompleted, ErrInvalidTransition)
	}
	a.Status = AgentCompleted
	a.EndTime = &now
	a.Output = output
	return nil
}

// Fail marks a pending or running agent failed.
func (a *AgentStatus) Fail(now time.Time, msg string) error {
	if a.Status != AgentRunning && a.Status != AgentPending {
		return fmt.Errorf("agent %s: %s -> %s: %w", a.AgentID, a.Status, AgentFailed, ErrInvalidTransition)
	}
	if a.StartTime == nil {
		a.StartTime = &now
	}
	a.Status = AgentFailed
	a.EndTime = &now
	a.Error = msg
	return nil
}

func (a AgentStatus) clone() AgentStatus {
	c := a
	if a.StartTime != nil {
		t := *a.StartTime
		c.StartTime = &t
	}
	if a.EndTime != nil {
		t := *a.EndTime
		c.EndTime = &t
	}
	if len(a.Output) > 0 {
		c.Output = append(json.RawMessage(nil), a.Output...)
	}
	return c
}
