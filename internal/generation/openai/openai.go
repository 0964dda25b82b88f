// Package openai provides a Generator backed by the OpenAI chat completions API
// or any server that speaks it.
package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"groundrag/internal/domain"
	"groundrag/internal/generation"
)

var _ domain.Generator = (*Generator)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second
)

const provider = "openai"

// Config holds configuration for the OpenAI generator.
type Config struct {
	// APIKey is the bearer credential. The query pipeline checks it is set.
	APIKey string
	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	BaseURL string
	// Model is the chat model (default: gpt-4o-mini).
	Model string
	// Timeout bounds one HTTP request (default: 120s).
	Timeout time.Duration
	// MaxRetries is the client's own retry budget for transient failures.
	MaxRetries int
}

// Generator answers prompts with a single user message.
type Generator struct {
	client openai.Client
	model  string
}

// New creates a Generator.
func New(cfg Config) (*Generator, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	)
	return &Generator{client: client, model: cfg.Model}, nil
}

func (g *Generator) Name() string { return provider + ":" + g.model }

// Generate sends prompt as one user message and returns the first choice.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", generation.StatusError(provider, apiErr.StatusCode)
		}
		return "", generation.TransportError(provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", generation.Malformed(provider, "response has no choices", nil)
	}
	answer := resp.Choices[0].Message.Content
	if strings.TrimSpace(answer) == "" {
		return "", generation.Malformed(provider, "response has empty content", nil)
	}
	return answer, nil
}
