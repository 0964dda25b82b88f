// Package openai provides an Embedder backed by the OpenAI embeddings API or
// an OpenAI-compatible server such as Ollama.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"groundrag/internal/domain"
)

var _ domain.Embedder = (*Embedder)(nil)

// Default configuration values.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "text-embedding-3-small"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 5
)

// Config holds configuration for the embedder.
type Config struct {
	// APIKey is the bearer credential. Presence is enforced by the query
	// pipeline, not here, so direct-mode queries work without it.
	APIKey string
	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	BaseURL string
	// Model must match the model the index was built with.
	Model string
	// Timeout bounds one HTTP request (default: 30s).
	Timeout time.Duration
	// MaxRetries covers 429 and 5xx responses; the client backs off between
	// attempts (default: 5, negative disables).
	MaxRetries int
}

// Embedder embeds one text per request.
type Embedder struct {
	client openai.Client
	model  string
}

// New creates an Embedder. It performs no I/O.
func New(cfg Config) (*Embedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	)
	return &Embedder{client: client, model: cfg.Model}, nil
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "openai:" + e.model }

// Embed returns the embedding of text as float32.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, domain.NewError(domain.KindRetrieval, domain.SubKindForStatus(apiErr.StatusCode),
				fmt.Sprintf("openai embeddings returned status %d", apiErr.StatusCode), nil)
		}
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, domain.NewError(domain.KindRetrieval, domain.SubKindMalformedResponse, "openai embeddings: no embedding returned", nil)
	}
	src := resp.Data[0].Embedding
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out, nil
}
