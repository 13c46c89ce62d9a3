// Package orchestrator runs the agent chain for one job and records each
// step through a Progress sink.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"content-agent-service/internal/agent"
	"content-agent-service/internal/entity"
)

// Progress is the record-keeping side of a run (service.Tracker).
type Progress interface {
	Start(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	AgentStarted(ctx context.Context, id uuid.UUID, agentID string) error
	AgentCompleted(ctx context.Context, id uuid.UUID, agentID string, output json.RawMessage) error
	AgentFailed(ctx context.Context, id uuid.UUID, agentID string, cause error) error
	Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	Fail(ctx context.Context, id uuid.UUID, cause error) error
}

type Options struct {
	// AgentDelay is slept before every agent.
	AgentDelay time.Duration
	// AgentTimeout bounds a single agent call. Zero means no bound.
	AgentTimeout time.Duration
}

type Orchestrator struct {
	progress Progress
	runner   *agent.Runner
	chain    []agent.Agent
	opts     Options
	log      *slog.Logger
}

func New(progress Progress, runner *agent.Runner, chain []agent.Agent, opts Options, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{progress: progress, runner: runner, chain: chain, opts: opts, log: log}
}

// Result is the stored output of a completed job.
type Result struct {
	Content json.RawMessage            `json:"content"`
	Steps   map[string]json.RawMessage `json:"steps"`
}

// bookkeepingTimeout bounds the final writes made after ctx is done.
const bookkeepingTimeout = 10 * time.Second

// Run executes the chain for id. Agents already completed on the record
// (a requeued job) are not called again; their outputs feed later agents.
// A job that is already terminal is left untouched.
func (o *Orchestrator) Run(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := startJobSpan(ctx, id.String(), len(o.chain))
	defer func() { endSpan(span, err) }()

	job, err := o.progress.Start(ctx, id)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidTransition) {
			o.log.Info("job already finished, skipping", "job_id", id.String())
			return nil
		}
		return fmt.Errorf("start job: %w", err)
	}

	req, err := entity.ParseContentRequest(job.Request)
	if err != nil {
		return o.fail(ctx, id, "", err)
	}
	in := agent.NewInput(req, job.Request)
	steps := make(map[string]json.RawMessage, len(o.chain))

	var last json.RawMessage
	for _, a := range o.chain {
		if st, lerr := job.Agent(a.ID); lerr == nil && st.Status == entity.AgentCompleted {
			in = in.With(a.ID, st.Output)
			steps[a.ID] = st.Output
			last = st.Output
			continue
		}

		if o.opts.AgentDelay > 0 {
			select {
			case <-time.After(o.opts.AgentDelay):
			case <-ctx.Done():
				return o.fail(ctx, id, a.ID, ctx.Err())
			}
		}

		fragment, err := o.runAgent(ctx, id, a, in)
		if err != nil {
			return o.fail(ctx, id, a.ID, err)
		}
		in = in.With(a.ID, fragment)
		steps[a.ID] = fragment
		last = fragment
	}

	result, err := json.Marshal(Result{Content: last, Steps: steps})
	if err != nil {
		return o.fail(ctx, id, "", err)
	}
	if err := o.progress.Complete(ctx, id, result); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	o.log.Info("job completed", "job_id", id.String(), "agents", len(o.chain))
	return nil
}

func (o *Orchestrator) runAgent(ctx context.Context, id uuid.UUID, a agent.Agent, in agent.Input) (out json.RawMessage, err error) {
	ctx, span := startAgentSpan(ctx, id.String(), a.ID)
	defer func() { endSpan(span, err) }()

	if err := o.progress.AgentStarted(ctx, id, a.ID); err != nil {
		return nil, fmt.Errorf("record start: %w", err)
	}

	actx := ctx
	if o.opts.AgentTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.opts.AgentTimeout)
		defer cancel()
	}

	start := time.Now()
	fragment, err := o.runner.Run(actx, a, in)
	if err != nil {
		return nil, err
	}
	if err := o.progress.AgentCompleted(ctx, id, a.ID, fragment); err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}
	o.log.Debug("agent completed", "job_id", id.String(), "agent", a.ID, "duration", time.Since(start))
	return fragment, nil
}

// fail records cause on the agent (when set) and the job. The writes use a
// context detached from ctx so a timed out job still gets its failure stored.
func (o *Orchestrator) fail(ctx context.Context, id uuid.UUID, agentID string, cause error) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	jobErr := cause
	if agentID != "" {
		jobErr = fmt.Errorf("%s: %w", agentID, cause)
		if err := o.progress.AgentFailed(wctx, id, agentID, cause); err != nil {
			o.log.Error("record agent failure", "job_id", id.String(), "agent", agentID, "error", err)
		}
	}
	if err := o.progress.Fail(wctx, id, jobErr); err != nil {
		o.log.Error("record job failure", "job_id", id.String(), "error", err)
	}
	o.log.Warn("job failed", "job_id", id.String(), "agent", agentID, "error", jobErr)
	return jobErr
}
