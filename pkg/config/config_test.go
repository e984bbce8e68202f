package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "./chronicle.db", cfg.DBPath)
	assert.Equal(t, 1536, cfg.VectorDim)
	assert.Equal(t, 30000, cfg.MaxTokens)
	assert.Equal(t, "0 1 * * *", cfg.TickCron)
	assert.Equal(t, 900, cfg.Chunker.Size)
	assert.Equal(t, 120, cfg.Chunker.Overlap)
	assert.Equal(t, 200, cfg.Retriever.Chunks)
	assert.Equal(t, 1000, cfg.Retriever.Events)
	assert.Equal(t, 14, cfg.Retriever.StatesDays)
	assert.Equal(t, "text-embedding-3-large", cfg.Embeddings.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout())
}

func TestLoadConfigMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().VectorDim, cfg.VectorDim)
}

func TestLoadConfigOverlaysJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronicle.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"db_path": "/tmp/other.db",
		"vector_dim": 64,
		"retriever": {"chunks": 50}
	}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.Equal(t, 64, cfg.VectorDim)
	assert.Equal(t, 50, cfg.Retriever.Chunks)
	// Untouched fields keep their defaults.
	assert.Equal(t, 30000, cfg.MaxTokens)
}

func TestLoadConfigEnvOverridesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronicle.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"vector_dim": 64}`), 0o600))
	t.Setenv("CHRONICLE_VECTOR_DIM", "32")
	t.Setenv("CHRONICLE_LLM_MODEL", "test-model")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.VectorDim)
	assert.Equal(t, "test-model", cfg.LLM.Model)
}

func TestLoadConfigRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronicle.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "chronicle.json")

	cfg := DefaultConfig()
	cfg.VectorDim = 256
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 256, loaded.VectorDim)
}

func TestCapabilityChecks(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.EmbeddingsEnabled(), "no api key configured")
	assert.False(t, cfg.LLMEnabled())

	cfg.Embeddings.APIKey = "sk-test"
	assert.True(t, cfg.EmbeddingsEnabled())
	cfg.VectorDim = 0
	assert.False(t, cfg.EmbeddingsEnabled(), "vectors disabled")

	cfg.LLM.APIKey = "sk-test"
	assert.True(t, cfg.LLMEnabled())
	cfg.LLM.Model = " "
	assert.False(t, cfg.LLMEnabled())
}
