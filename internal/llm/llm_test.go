package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"content-agent-service/internal/llm"
	"content-agent-service/internal/resilience"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "Here you go:\n```json\n{\"a\":{\"b\":[1,2]}}\n```\nThanks", `{"a":{"b":[1,2]}}`},
		{"brace in string", `note {"text":"use } carefully","ok":true} trailing`, `{"text":"use } carefully","ok":true}`},
		{"skips invalid", `{oops} then {"a":2}`, `{"a":2}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := llm.ExtractJSON(tc.in)
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestExtractJSON_None(t *testing.T) {
	if _, err := llm.ExtractJSON("no json here {"); !errors.Is(err, llm.ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
}

func TestMock_DefaultAndOverrides(t *testing.T) {
	ctx := context.Background()
	m := llm.NewMock().Reply("copywriter", `{"headline":"Hi"}`).FailOn("editor", errors.New("down"))

	c, err := m.Complete(ctx, llm.Prompt{Tag: "copywriter"})
	if err != nil || c.Text != `{"headline":"Hi"}` {
		t.Fatalf("unexpected reply %q err=%v", c.Text, err)
	}

	c, err = m.Complete(ctx, llm.Prompt{Tag: "brief-analyst", User: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := llm.ExtractJSON(c.Text); err != nil {
		t.Fatalf("default reply must be JSON: %q", c.Text)
	}

	if _, err := m.Complete(ctx, llm.Prompt{Tag: "editor"}); err == nil {
		t.Fatal("expected failure for editor")
	}
	if len(m.Calls()) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(m.Calls()))
	}
}

func TestAnthropicClient_Complete(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Api-Key") != "sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"{\"ok\":true}"}],
			"stop_reason":"end_turn","stop_sequence":null,
			"usage":{"input_tokens":11,"output_tokens":7}
		}`)
	}))
	defer srv.Close()

	c := llm.NewAnthropic(llm.AnthropicConfig{
		APIKey:    "sk-test",
		BaseURL:   srv.URL,
		Model:     "claude-test",
		MaxTokens: 256,
		Timeout:   5 * time.Second,
	}, nil)

	got, err := c.Complete(context.Background(), llm.Prompt{Tag: "brief-analyst", System: "sys", User: "hello"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Text != `{"ok":true}` {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if got.InputTokens != 11 || got.OutputTokens != 7 {
		t.Fatalf("unexpected usage %+v", got)
	}
	if gotBody["model"] != "claude-test" {
		t.Fatalf("expected model in request, got %v", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(256) {
		t.Fatalf("expected max_tokens=256, got %v", gotBody["max_tokens"])
	}
}

func TestAnthropicClient_ErrorsTripBreaker(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(1, time.Minute)
	c := llm.NewAnthropic(llm.AnthropicConfig{APIKey: "k", BaseURL: srv.URL, Model: "m", MaxTokens: 10}, breaker)

	if _, err := c.Complete(context.Background(), llm.Prompt{Tag: "a", User: "x"}); err == nil {
		t.Fatal("expected error from 500")
	}
	_, err := c.Complete(context.Background(), llm.Prompt{Tag: "a", User: "x"})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected a single upstream hit with retries disabled, got %d", hits)
	}
}

func TestAnthropicClient_CancelledCallsLeaveBreakerClosed(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(1, time.Minute)
	c := llm.NewAnthropic(llm.AnthropicConfig{APIKey: "k", BaseURL: srv.URL, Model: "m", MaxTokens: 10}, breaker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		if _, err := c.Complete(ctx, llm.Prompt{Tag: "a", User: "x"}); !errors.Is(err, context.Canceled) {
			t.Fatalf("call %d: expected context.Canceled, got %v", i, err)
		}
	}
	if breaker.Open() {
		t.Fatal("cancelled calls opened the breaker")
	}

	_, err := c.Complete(context.Background(), llm.Prompt{Tag: "a", User: "x"})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatal("live call rejected after cancellations")
	}
	if hits != 1 {
		t.Fatalf("expected one upstream hit, got %d", hits)
	}
}
