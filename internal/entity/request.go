package entity

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrInvalidRequest = errors.New("invalid content request")

// ContentRequest holds the fields the agent templates know about.
// Unknown fields survive in the job's raw request.
type ContentRequest struct {
	ContentType string   `json:"contentType,omitempty"`
	Topic       string   `json:"topic,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Audience    string   `json:"audience,omitempty"`
	Tone        string   `json:"tone,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Length      string   `json:"length,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// ParseContentRequest validates raw as a JSON object with a topic or prompt.
func ParseContentRequest(raw json.RawMessage) (ContentRequest, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return ContentRequest{}, errors.Join(ErrInvalidRequest, errors.New("body must be a JSON object"))
	}

	var req ContentRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return ContentRequest{}, errors.Join(ErrInvalidRequest, err)
	}
	if strings.TrimSpace(req.Topic) == "" && strings.TrimSpace(req.Prompt) == "" {
		return ContentRequest{}, errors.Join(ErrInvalidRequest, errors.New("topic or prompt is required"))
	}
	if req.ContentType == "" {
		req.ContentType = "blog-post"
	}
	return req, nil
}
