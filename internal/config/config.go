package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"groundrag/internal/retrieval"
)

// Adequacy guard defaults.
const (
	DefaultTopK           = retrieval.DefaultTopK
	DefaultRelevanceFloor = retrieval.DefaultRelevanceFloor
)

// OpenAIConfig holds configuration for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// HugotConfig configures the local ONNX embedder.
type HugotConfig struct {
	Model    string `yaml:"model"`
	ModelDir string `yaml:"model_dir"`
	Download bool   `yaml:"download"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string        `yaml:"type"`
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
	Hugot  *HugotConfig  `yaml:"hugot,omitempty"`
}

// AnthropicConfig configures the Anthropic generator.
type AnthropicConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	MaxTokens   int    `yaml:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RateLimitConfig spaces generator calls. Zero requests_per_second disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type      string           `yaml:"type"`
	OpenAI    *OpenAIConfig    `yaml:"openai,omitempty"`
	Anthropic *AnthropicConfig `yaml:"anthropic,omitempty"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
}

// VectorStoreConfig selects and configures the vector index. The index is
// pre-built; groundrag only reads it.
type VectorStoreConfig struct {
	Type     string           `yaml:"type"`
	Memory   *FileStoreConfig `yaml:"memory,omitempty"`
	SQLite   *FileStoreConfig `yaml:"sqlite,omitempty"`
	PGVector *PGVectorConfig  `yaml:"pgvector,omitempty"`
	Qdrant   *QdrantConfig    `yaml:"qdrant,omitempty"`
	Mongo    *MongoConfig     `yaml:"mongo,omitempty"`
}

// FileStoreConfig locates a file-based index.
type FileStoreConfig struct {
	Path string `yaml:"path"`
}

// PGVectorConfig locates a pgvector table. The DSN carries a password, so it
// is read from an environment variable.
type PGVectorConfig struct {
	DSNEnv string `yaml:"dsn_env"`
	Table  string `yaml:"table"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// MongoConfig locates an Atlas Vector Search index.
type MongoConfig struct {
	URIEnv     string `yaml:"uri_env"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	Index      string `yaml:"index"`
	Path       string `yaml:"path"`
}

// RetrievalConfig holds the adequacy guard parameters.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	RelevanceFloor float64 `yaml:"relevance_floor"`
}

// PromptConfig locates the prompt template and bounds the rendered prompt.
type PromptConfig struct {
	TemplateFile string `yaml:"template_file"`
	MaxChars     int    `yaml:"max_chars"`
	Watch        bool   `yaml:"watch"`
}

// TimeoutsConfig bounds each blocking pipeline stage.
type TimeoutsConfig struct {
	RequestSecs int `yaml:"request_secs"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Prompt      PromptConfig      `yaml:"prompt"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	// Pre-set so an explicit relevance_floor of 0 survives decoding.
	cfg := AppConfig{Retrieval: RetrievalConfig{RelevanceFloor: DefaultRelevanceFloor}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/groundrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/groundrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultUserConfigPath is ~/.config/groundrag/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "groundrag", "config.yaml"), nil
}

// ResolveCredential reads the secret named by env. Only startup code calls
// this; the value is handed to adapters and never stored in the config.
func ResolveCredential(env string) string {
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}

// Validate reports the first invalid setting.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "openai", "hugot":
	default:
		return fmt.Errorf("embedder.type: unknown embedder %q", c.Embedder.Type)
	}
	switch c.Generator.Type {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("generator.type: unknown generator %q", c.Generator.Type)
	}
	if err := c.VectorStore.validate(); err != nil {
		return err
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if f := c.Retrieval.RelevanceFloor; math.IsNaN(f) || f < 0 || f > 1 {
		return fmt.Errorf("retrieval.relevance_floor must be within [0, 1], got %v", f)
	}
	if c.Prompt.MaxChars <= 0 {
		return fmt.Errorf("prompt.max_chars must be positive, got %d", c.Prompt.MaxChars)
	}
	if c.Timeouts.RequestSecs < 0 {
		return fmt.Errorf("timeouts.request_secs must not be negative, got %d", c.Timeouts.RequestSecs)
	}
	if c.Generator.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("generator.rate_limit.requests_per_second must not be negative")
	}
	return nil
}

func (v VectorStoreConfig) validate() error {
	switch v.Type {
	case "memory":
		if v.Memory == nil || v.Memory.Path == "" {
			return errors.New("vector_store.memory.path is required")
		}
	case "sqlite":
		if v.SQLite == nil || v.SQLite.Path == "" {
			return errors.New("vector_store.sqlite.path is required")
		}
	case "pgvector":
		if v.PGVector == nil || v.PGVector.DSNEnv == "" {
			return errors.New("vector_store.pgvector.dsn_env is required")
		}
	case "qdrant":
		if v.Qdrant == nil || v.Qdrant.URL == "" || v.Qdrant.Collection == "" {
			return errors.New("vector_store.qdrant.url and collection are required")
		}
	case "mongo":
		if v.Mongo == nil || v.Mongo.URIEnv == "" || v.Mongo.Database == "" || v.Mongo.Collection == "" {
			return errors.New("vector_store.mongo.uri_env, database and collection are required")
		}
	default:
		return fmt.Errorf("vector_store.type: unknown vector store %q", v.Type)
	}
	return nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai"},
		Generator:   GeneratorConfig{Type: "openai"},
		VectorStore: VectorStoreConfig{Type: "memory", Memory: &FileStoreConfig{Path: "index.json"}},
		Retrieval:   RetrievalConfig{RelevanceFloor: DefaultRelevanceFloor},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "openai"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}

	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small", 30)
	case "hugot":
		if cfg.Embedder.Hugot == nil {
			cfg.Embedder.Hugot = &HugotConfig{}
		}
		if cfg.Embedder.Hugot.Model == "" {
			cfg.Embedder.Hugot.Model = "sentence-transformers/all-MiniLM-L6-v2"
		}
		if cfg.Embedder.Hugot.ModelDir == "" {
			cfg.Embedder.Hugot.ModelDir = "./models"
		}
	}

	switch cfg.Generator.Type {
	case "openai":
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Generator.OpenAI, "gpt-4o-mini", 120)
	case "anthropic":
		if cfg.Generator.Anthropic == nil {
			cfg.Generator.Anthropic = &AnthropicConfig{}
		}
		a := cfg.Generator.Anthropic
		if a.BaseURL == "" {
			a.BaseURL = "https://api.anthropic.com"
		}
		if a.APIKeyEnv == "" {
			a.APIKeyEnv = "ANTHROPIC_API_KEY"
		}
		if a.Model == "" {
			a.Model = "claude-3-5-sonnet-latest"
		}
		if a.MaxTokens == 0 {
			a.MaxTokens = 1024
		}
		if a.TimeoutSecs == 0 {
			a.TimeoutSecs = 120
		}
	}
	if cfg.Generator.RateLimit.RequestsPerSecond > 0 && cfg.Generator.RateLimit.Burst == 0 {
		cfg.Generator.RateLimit.Burst = 1
	}

	switch cfg.VectorStore.Type {
	case "qdrant":
		if cfg.VectorStore.Qdrant != nil && cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	case "pgvector":
		if cfg.VectorStore.PGVector != nil && cfg.VectorStore.PGVector.Table == "" {
			cfg.VectorStore.PGVector.Table = "groundrag_passages"
		}
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
	if cfg.Prompt.MaxChars == 0 {
		cfg.Prompt.MaxChars = 64000
	}
	if cfg.Timeouts.RequestSecs == 0 {
		cfg.Timeouts.RequestSecs = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func applyOpenAIDefaults(c *OpenAIConfig, model string, timeoutSecs int) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = timeoutSecs
	}
}
