// Package agent defines the prompt-template steps of the content chain.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"content-agent-service/internal/entity"
	"content-agent-service/internal/llm"
)

type Agent struct {
	ID     string
	Name   string
	System string
	tmpl   *template.Template
}

// New parses the user prompt template. It panics on a bad template, which
// only happens for the built-in chain.
func New(id, name, system, userTemplate string) Agent {
	t := template.Must(template.New(id).Funcs(template.FuncMap{
		"join": strings.Join,
	}).Option("missingkey=zero").Parse(userTemplate))
	return Agent{ID: id, Name: name, System: system, tmpl: t}
}

func (a Agent) Ref() entity.AgentRef {
	return entity.AgentRef{ID: a.ID, Name: a.Name}
}

// Input is what a template sees: the parsed request, the raw body and the
// fragments of all agents that ran before it.
type Input struct {
	Request  entity.ContentRequest
	Raw      string
	Previous map[string]string
}

func NewInput(req entity.ContentRequest, raw json.RawMessage) Input {
	return Input{Request: req, Raw: string(raw), Previous: map[string]string{}}
}

// With returns a copy of in with agentID's fragment added.
func (in Input) With(agentID string, fragment json.RawMessage) Input {
	prev := make(map[string]string, len(in.Previous)+1)
	for k, v := range in.Previous {
		prev[k] = v
	}
	prev[agentID] = string(fragment)
	in.Previous = prev
	return in
}

// Render fills the agent's template.
func (a Agent) Render(in Input) (string, error) {
	var buf bytes.Buffer
	if err := a.tmpl.Execute(&buf, in); err != nil {
		return "", fmt.Errorf("render %s: %w", a.ID, err)
	}
	return buf.String(), nil
}

// Runner executes single agents against a completer.
type Runner struct {
	llm       llm.Completer
	maxTokens int
}

func NewRunner(c llm.Completer, maxTokens int) *Runner {
	return &Runner{llm: c, maxTokens: maxTokens}
}

// Run renders the prompt, calls the model and returns the JSON fragment.
func (r *Runner) Run(ctx context.Context, a Agent, in Input) (json.RawMessage, error) {
	user, err := a.Render(in)
	if err != nil {
		return nil, err
	}
	out, err := r.llm.Complete(ctx, llm.Prompt{
		Tag:       a.ID,
		System:    a.System,
		User:      user,
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	fragment, err := llm.ExtractJSON(out.Text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.ID, err)
	}
	return fragment, nil
}
