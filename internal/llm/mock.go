package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Mock answers every prompt with a canned JSON object keyed by Prompt.Tag.
// It backs the "mock" provider so the service runs without an API key.
type Mock struct {
	mu      sync.Mutex
	replies map[string]string
	fail    map[string]error
	calls   []Prompt
}

func NewMock() *Mock {
	return &Mock{replies: map[string]string{}, fail: map[string]error{}}
}

// Reply sets the raw reply text for tag.
func (m *Mock) Reply(tag, text string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[tag] = text
	return m
}

// FailOn makes prompts tagged tag return err.
func (m *Mock) FailOn(tag string, err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[tag] = err
	return m
}

// Calls returns the prompts seen so far.
func (m *Mock) Calls() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.calls...)
}

func (m *Mock) Complete(ctx context.Context, p Prompt) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, p)
	failErr := m.fail[p.Tag]
	text, ok := m.replies[p.Tag]
	m.mu.Unlock()

	if failErr != nil {
		return Completion{}, fmt.Errorf("mock %s: %w", p.Tag, failErr)
	}
	if !ok {
		b, _ := json.Marshal(map[string]any{
			"agent":   p.Tag,
			"summary": "mock output for " + p.Tag,
			"chars":   len(p.User),
		})
		text = string(b)
	}
	return Completion{Text: text, Model: "mock", StopReason: "end_turn"}, nil
}
