package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"content-agent-service/internal/agent"
	"content-agent-service/internal/entity"
	"content-agent-service/internal/llm"
)

func TestDefaultChain_OrderAndRefs(t *testing.T) {
	chain := agent.DefaultChain()
	want := []string{agent.BriefAnalyst, agent.MarketResearcher, agent.ContentStrategist, agent.Copywriter, agent.Editor}
	if len(chain) != len(want) {
		t.Fatalf("expected %d agents, got %d", len(want), len(chain))
	}
	refs := agent.Refs(chain)
	for i, id := range want {
		if chain[i].ID != id || refs[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, chain[i].ID)
		}
	}
}

func TestRender_UsesRequestAndPrevious(t *testing.T) {
	raw := json.RawMessage(`{"topic":"Spring sale","keywords":["shoes","discount"],"campaign":"Q2"}`)
	req, err := entity.ParseContentRequest(raw)
	if err != nil {
		t.Fatal(err)
	}
	in := agent.NewInput(req, raw)

	chain := agent.DefaultChain()
	first, err := chain[0].Render(in)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"Spring sale", "shoes, discount", `"campaign":"Q2"`} {
		if !strings.Contains(first, s) {
			t.Fatalf("brief prompt missing %q:\n%s", s, first)
		}
	}

	in2 := in.With(agent.BriefAnalyst, json.RawMessage(`{"tone":"playful"}`))
	second, err := chain[1].Render(in2)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(second, `{"tone":"playful"}`) {
		t.Fatalf("research prompt missing brief fragment:\n%s", second)
	}
	if len(in.Previous) != 0 {
		t.Fatal("With must not mutate the receiver")
	}
}

func TestRunner_Run(t *testing.T) {
	mock := llm.NewMock().Reply(agent.BriefAnalyst, "Sure!\n```json\n{\"goals\":[\"awareness\"]}\n```")
	r := agent.NewRunner(mock, 512)
	a := agent.DefaultChain()[0]
	in := agent.NewInput(entity.ContentRequest{Topic: "x"}, json.RawMessage(`{"topic":"x"}`))

	out, err := r.Run(context.Background(), a, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(out) != `{"goals":["awareness"]}` {
		t.Fatalf("unexpected fragment %s", out)
	}
	calls := mock.Calls()
	if len(calls) != 1 || calls[0].Tag != agent.BriefAnalyst || calls[0].MaxTokens != 512 {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestRunner_Run_NoJSON(t *testing.T) {
	mock := llm.NewMock().Reply(agent.BriefAnalyst, "I cannot help with that.")
	r := agent.NewRunner(mock, 0)
	in := agent.NewInput(entity.ContentRequest{Topic: "x"}, nil)

	_, err := r.Run(context.Background(), agent.DefaultChain()[0], in)
	if !errors.Is(err, llm.ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
}
