// Package anthropic provides a Generator using the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"groundrag/internal/domain"
	"groundrag/internal/generation"
)

var _ domain.Generator = (*Generator)(nil)

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-3-5-sonnet-latest"
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 1024

	anthropicVersion = "2023-06-01"
	provider         = "anthropic"
)

// Config holds configuration for the Anthropic generator.
type Config struct {
	// APIKey is the Anthropic API key. The query pipeline checks it is set.
	APIKey string
	// BaseURL is the API base URL (default: https://api.anthropic.com).
	BaseURL string
	// Model is the model to use (default: claude-3-5-sonnet-latest).
	Model string
	// MaxTokens caps the answer length (default: 1024).
	MaxTokens int
	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Generator answers prompts through /v1/messages.
type Generator struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
}

type messagesRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// New creates a Generator.
func New(cfg Config) (*Generator, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Generator{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (g *Generator) Name() string { return provider + ":" + g.model }

// Generate sends prompt as a single user message and concatenates the text blocks.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     g.model,
		Messages:  []message{{Role: "user", Content: prompt}},
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return "", generation.Malformed(provider, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", domain.ConfigurationError(fmt.Sprintf("anthropic: invalid base URL %q", g.baseURL), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", generation.TransportError(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", generation.StatusError(provider, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", generation.TransportError(provider, err)
	}
	var out messagesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", generation.Malformed(provider, "decode response", err)
	}
	if out.Error != nil {
		return "", generation.Malformed(provider, out.Error.Type, nil)
	}

	var answer strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			answer.WriteString(block.Text)
		}
	}
	if answer.Len() == 0 {
		return "", generation.Malformed(provider, "no text content returned", nil)
	}
	return answer.String(), nil
}
