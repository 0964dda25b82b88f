package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedder.Type)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Generator.OpenAI.APIKeyEnv)
	assert.Equal(t, DefaultTopK, cfg.Retrieval.TopK)
	assert.Equal(t, DefaultRelevanceFloor, cfg.Retrieval.RelevanceFloor)
	assert.Equal(t, 64000, cfg.Prompt.MaxChars)
	assert.Equal(t, 60, cfg.Timeouts.RequestSecs)
	assert.NoError(t, cfg.Validate())
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
generator:
  type: anthropic
vector_store:
  type: sqlite
  sqlite:
    path: /var/lib/groundrag/index.db
retrieval:
  top_k: 5
`))
	require.NoError(t, err)

	assert.Equal(t, "ANTHROPIC_API_KEY", cfg.Generator.Anthropic.APIKeyEnv)
	assert.Equal(t, 1024, cfg.Generator.Anthropic.MaxTokens)
	assert.Equal(t, "/var/lib/groundrag/index.db", cfg.VectorStore.SQLite.Path)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, DefaultRelevanceFloor, cfg.Retrieval.RelevanceFloor)
	assert.NoError(t, cfg.Validate())
}

func TestLoadKeepsExplicitZeroFloor(t *testing.T) {
	cfg, err := Load(writeConfig(t, "retrieval:\n  relevance_floor: 0\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.Retrieval.RelevanceFloor)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "embedder: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{"unknown embedder", func(c *AppConfig) { c.Embedder.Type = "word2vec" }, "embedder.type"},
		{"unknown generator", func(c *AppConfig) { c.Generator.Type = "palm" }, "generator.type"},
		{"unknown store", func(c *AppConfig) { c.VectorStore.Type = "chroma" }, "vector_store.type"},
		{"memory without path", func(c *AppConfig) { c.VectorStore.Memory = nil }, "vector_store.memory.path"},
		{"qdrant without collection", func(c *AppConfig) {
			c.VectorStore.Type = "qdrant"
			c.VectorStore.Qdrant = &QdrantConfig{URL: "http://localhost:6333"}
		}, "vector_store.qdrant"},
		{"zero top k", func(c *AppConfig) { c.Retrieval.TopK = 0 }, "retrieval.top_k"},
		{"floor out of range", func(c *AppConfig) { c.Retrieval.RelevanceFloor = 1.5 }, "retrieval.relevance_floor"},
		{"negative floor", func(c *AppConfig) { c.Retrieval.RelevanceFloor = -0.2 }, "[0, 1]"},
		{"negative timeout", func(c *AppConfig) { c.Timeouts.RequestSecs = -1 }, "timeouts.request_secs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.TopK = 7
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestResolveCredential(t *testing.T) {
	t.Setenv("GROUNDRAG_TEST_KEY", "  sk-123 \n")
	assert.Equal(t, "sk-123", ResolveCredential("GROUNDRAG_TEST_KEY"))
	assert.Equal(t, "", ResolveCredential(""))
	assert.Equal(t, "", ResolveCredential("GROUNDRAG_TEST_UNSET"))
}
