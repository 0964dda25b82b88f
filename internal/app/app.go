// Package app turns configuration into a ready query pipeline. It is the only
// place that reads credentials from the environment.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"groundrag/internal/config"
	"groundrag/internal/domain"
	"groundrag/internal/embedding/hugot"
	embopenai "groundrag/internal/embedding/openai"
	"groundrag/internal/generation"
	"groundrag/internal/generation/anthropic"
	genopenai "groundrag/internal/generation/openai"
	"groundrag/internal/prompts"
	"groundrag/internal/service"
	"groundrag/internal/vectorstore/memory"
	"groundrag/internal/vectorstore/mongo"
	"groundrag/internal/vectorstore/pgvector"
	"groundrag/internal/vectorstore/qdrant"
	"groundrag/internal/vectorstore/sqlite"
)

// Env resolves a credential by environment variable name.
type Env func(name string) string

// App owns the pipeline and every resource behind it.
type App struct {
	Config   *config.AppConfig
	Pipeline *service.QueryPipeline
	Prompts  *prompts.Store
	Log      *zap.Logger

	closers []func() error
}

// New validates cfg and builds the pipeline. Nothing is opened or fetched
// here: the vector index and embedder are opened on the first retrieval
// query, and missing API credentials are reported per query before any
// network call. Direct-mode queries therefore work without an index, an
// embedder key or a local model.
func New(ctx context.Context, cfg *config.AppConfig, env Env, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if env == nil {
		env = config.ResolveCredential
	}
	if err := cfg.Validate(); err != nil {
		return nil, domain.ConfigurationError(err.Error(), err)
	}

	a := &App{Config: cfg, Log: log}

	backend := &retrievalBackend{
		embedderName: cfg.Embedder.Type,
		openIndex: func() (domain.VectorIndex, error) {
			index, err := NewVectorIndex(cfg.VectorStore, env)
			if err != nil {
				return nil, err
			}
			log.Info("vector index opened", zap.String("vector_store", cfg.VectorStore.Type))
			return index, nil
		},
		openEmbedder: func() (domain.Embedder, error) {
			embedder, err := NewEmbedder(cfg.Embedder, env)
			if err != nil {
				return nil, err
			}
			log.Info("embedder ready", zap.String("embedder", embedder.Name()))
			return embedder, nil
		},
	}
	a.closers = append(a.closers, backend.Close)

	generator, err := NewGenerator(cfg.Generator, env)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Prompts = prompts.NewStore(cfg.Prompt.TemplateFile, log)
	if cfg.Prompt.Watch {
		if err := a.Prompts.Watch(ctx); err != nil {
			log.Warn("prompt file will not be watched", zap.Error(err))
		}
	}

	pc := service.DefaultConfig()
	pc.TopK = cfg.Retrieval.TopK
	pc.RelevanceFloor = cfg.Retrieval.RelevanceFloor
	pc.StageTimeout = time.Duration(cfg.Timeouts.RequestSecs) * time.Second
	pc.MaxPromptChars = cfg.Prompt.MaxChars
	pc.Credentials = Credentials(cfg, env)

	a.Pipeline, err = service.NewQueryPipeline(pc, lazyEmbedder{backend}, lazyIndex{backend}, generator, a.Prompts, log.Named("pipeline"))
	if err != nil {
		a.Close()
		return nil, err
	}

	log.Info("pipeline ready",
		zap.String("embedder", cfg.Embedder.Type),
		zap.String("generator", generator.Name()),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.Int("top_k", cfg.Retrieval.TopK),
		zap.Float64("relevance_floor", cfg.Retrieval.RelevanceFloor),
	)
	return a, nil
}

// Close releases the index and embedder, if a retrieval query opened them.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Credentials lists the API keys the configured providers need. The embedder
// key is only needed in retrieval mode.
func Credentials(cfg *config.AppConfig, env Env) []service.Credential {
	var creds []service.Credential
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		name := cfg.Embedder.OpenAI.APIKeyEnv
		creds = append(creds, service.Credential{Name: name, Value: env(name), RetrievalOnly: true})
	}
	switch cfg.Generator.Type {
	case "openai":
		name := cfg.Generator.OpenAI.APIKeyEnv
		creds = append(creds, service.Credential{Name: name, Value: env(name)})
	case "anthropic":
		name := cfg.Generator.Anthropic.APIKeyEnv
		creds = append(creds, service.Credential{Name: name, Value: env(name)})
	}
	return creds
}

// NewEmbedder builds the configured embedder.
func NewEmbedder(cfg config.EmbedderConfig, env Env) (domain.Embedder, error) {
	switch cfg.Type {
	case "openai":
		c := cfg.OpenAI
		return embopenai.New(embopenai.Config{
			APIKey:     env(c.APIKeyEnv),
			BaseURL:    c.BaseURL,
			Model:      c.Model,
			Timeout:    time.Duration(c.TimeoutSecs) * time.Second,
			MaxRetries: c.MaxRetries,
		})
	case "hugot":
		c := cfg.Hugot
		return hugot.New(hugot.Config{Model: c.Model, ModelDir: c.ModelDir, Download: c.Download})
	default:
		return nil, domain.ConfigurationError(fmt.Sprintf("unknown embedder %q", cfg.Type), nil)
	}
}

// NewGenerator builds the configured generator, rate limited when asked.
func NewGenerator(cfg config.GeneratorConfig, env Env) (domain.Generator, error) {
	var (
		g   domain.Generator
		err error
	)
	switch cfg.Type {
	case "openai":
		c := cfg.OpenAI
		g, err = genopenai.New(genopenai.Config{
			APIKey:     env(c.APIKeyEnv),
			BaseURL:    c.BaseURL,
			Model:      c.Model,
			Timeout:    time.Duration(c.TimeoutSecs) * time.Second,
			MaxRetries: c.MaxRetries,
		})
	case "anthropic":
		c := cfg.Anthropic
		g, err = anthropic.New(anthropic.Config{
			APIKey:    env(c.APIKeyEnv),
			BaseURL:   c.BaseURL,
			Model:     c.Model,
			MaxTokens: c.MaxTokens,
			Timeout:   time.Duration(c.TimeoutSecs) * time.Second,
		})
	default:
		return nil, domain.ConfigurationError(fmt.Sprintf("unknown generator %q", cfg.Type), nil)
	}
	if err != nil {
		return nil, err
	}
	return generation.NewRateLimited(g, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst), nil
}

// NewVectorIndex opens the configured index. A missing or unusable index
// location is a configuration error.
func NewVectorIndex(cfg config.VectorStoreConfig, env Env) (domain.VectorIndex, error) {
	switch cfg.Type {
	case "memory":
		return memory.Open(cfg.Memory.Path)
	case "sqlite":
		return sqlite.Open(cfg.SQLite.Path, false)
	case "pgvector":
		dsn := env(cfg.PGVector.DSNEnv)
		if dsn == "" {
			return nil, domain.ConfigurationError(fmt.Sprintf("missing credential: %s", cfg.PGVector.DSNEnv), nil)
		}
		return pgvector.Open(pgvector.Config{DSN: dsn, Table: cfg.PGVector.Table})
	case "qdrant":
		c := cfg.Qdrant
		return qdrant.NewStorage(qdrant.Config{
			URL:        c.URL,
			APIKey:     env(c.APIKeyEnv),
			Collection: c.Collection,
			Timeout:    time.Duration(c.TimeoutSecs) * time.Second,
		})
	case "mongo":
		c := cfg.Mongo
		uri := env(c.URIEnv)
		if uri == "" {
			return nil, domain.ConfigurationError(fmt.Sprintf("missing credential: %s", c.URIEnv), nil)
		}
		return mongo.Open(mongo.Config{URI: uri, Database: c.Database, Collection: c.Collection, Index: c.Index, Path: c.Path})
	default:
		return nil, domain.ConfigurationError(fmt.Sprintf("unknown vector store %q", cfg.Type), nil)
	}
}
