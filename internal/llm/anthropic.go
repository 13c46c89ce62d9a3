package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"content-agent-service/internal/resilience"
)

type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// AnthropicClient calls the Claude Messages API.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int
	breaker   *resilience.Breaker
}

// NewAnthropic builds a client with SDK retries disabled; a failed call
// fails the agent.
func NewAnthropic(cfg AnthropicConfig, breaker *resilience.Breaker) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		breaker:   breaker,
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, p Prompt) (Completion, error) {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
	}
	if p.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.System}}
	}

	var msg *anthropic.Message
	call := func() error {
		var err error
		msg, err = c.client.Messages.New(ctx, params)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.ExecuteContext(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return Completion{}, fmt.Errorf("anthropic %s: status %d: %w", p.Tag, apiErr.StatusCode, err)
		}
		return Completion{}, fmt.Errorf("anthropic %s: %w", p.Tag, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return Completion{
		Text:         sb.String(),
		Model:        string(msg.Model),
		StopReason:   string(msg.StopReason),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}
