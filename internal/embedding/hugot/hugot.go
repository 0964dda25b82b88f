// Package hugot provides a local Embedder running a sentence-transformer ONNX
// model with the pure Go hugot backend. It needs no credential.
package hugot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"

	"groundrag/internal/domain"
)

var _ domain.Embedder = (*Embedder)(nil)

// Default configuration values.
const (
	DefaultModel    = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultModelDir = "./models"
	onnxFilePath    = "onnx/model.onnx"
)

// Config holds configuration for the local embedder.
type Config struct {
	// Model is the Hugging Face model name (default: all-MiniLM-L6-v2).
	Model string
	// ModelDir caches downloaded models (default: ./models).
	ModelDir string
	// Download fetches the model when it is not cached yet.
	Download bool
}

// Embedder runs a feature-extraction pipeline. The pipeline is not safe for
// concurrent use, so calls are serialized.
type Embedder struct {
	mu      sync.Mutex
	model   string
	session *hugot.Session
	run     func(texts []string) ([][]float32, error)
}

// ModelPath is where a model is cached inside dir.
func ModelPath(dir, model string) string {
	return filepath.Join(dir, strings.ReplaceAll(model, "/", "_"))
}

// PrepareModel returns the cached model path, downloading it when allowed.
func PrepareModel(cfg Config) (string, error) {
	path := ModelPath(cfg.ModelDir, cfg.Model)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if !cfg.Download {
		return "", domain.ConfigurationError(fmt.Sprintf("embedding model %s not found in %s", cfg.Model, cfg.ModelDir), nil)
	}
	if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = onnxFilePath
	downloaded, err := hugot.DownloadModel(cfg.Model, cfg.ModelDir, opts)
	if err != nil {
		return "", fmt.Errorf("download model: %w", err)
	}
	return downloaded, nil
}

// New loads the model and builds the pipeline. Close releases the session.
func New(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = DefaultModelDir
	}
	path, err := PrepareModel(cfg)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("create hugot session: %w", err)
	}
	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: path,
		Name:      "groundrag-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("create feature extraction pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("create feature extraction pipeline: %w", err)
	}
	run := func(texts []string) ([][]float32, error) {
		result, err := pipeline.RunPipeline(texts)
		if err != nil {
			return nil, err
		}
		return result.Embeddings, nil
	}
	return &Embedder{model: cfg.Model, session: session, run: run}, nil
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hugot:" + e.model }

// Embed runs the model on text. Inference is CPU bound and cannot be
// interrupted, so ctx is only checked before it starts.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	embeddings, err := e.run([]string{text})
	if err != nil {
		return nil, fmt.Errorf("hugot embed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, domain.NewError(domain.KindRetrieval, domain.SubKindMalformedResponse, "hugot: no embedding generated", nil)
	}
	return embeddings[0], nil
}

// Close destroys the underlying session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Destroy()
}
