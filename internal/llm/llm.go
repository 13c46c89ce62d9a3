// Package llm wraps the completion providers the agent chain talks to.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var ErrNoJSON = errors.New("no JSON object in model reply")

// Prompt is one single-turn request. Tag identifies the calling agent.
type Prompt struct {
	Tag       string
	System    string
	User      string
	MaxTokens int
}

type Completion struct {
	Text         string
	Model        string
	StopReason   string
	InputTokens  int64
	OutputTokens int64
}

type Completer interface {
	Complete(ctx context.Context, p Prompt) (Completion, error)
}

// ExtractJSON returns the first balanced JSON object in text. Models wrap
// their answer in prose or ```json fences often enough that a plain
// json.Unmarshal of the reply is not usable.
func ExtractJSON(text string) (json.RawMessage, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate), nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, ErrNoJSON
}

// matchBrace returns the index of the brace closing text[open], or -1.
func matchBrace(text string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
