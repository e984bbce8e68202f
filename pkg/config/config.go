package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DBPath             string `json:"db_path" env:"CHRONICLE_DB_PATH"`
	VectorDim          int    `json:"vector_dim" env:"CHRONICLE_VECTOR_DIM"`
	MaxTokens          int    `json:"max_tokens" env:"CHRONICLE_MAX_TOKENS"`
	HTTPTimeoutSeconds int    `json:"http_timeout_seconds" env:"CHRONICLE_HTTP_TIMEOUT_SECONDS"`
	TickCron           string `json:"tick_cron" env:"CHRONICLE_TICK_CRON"`

	Chunker    ChunkerConfig   `json:"chunker"`
	Retriever  RetrieverConfig `json:"retriever"`
	Embeddings ProviderConfig  `json:"embeddings"`
	LLM        LLMConfig       `json:"llm"`
}

type ChunkerConfig struct {
	Size    int `json:"size" env:"CHRONICLE_CHUNKER_SIZE"`
	Overlap int `json:"overlap" env:"CHRONICLE_CHUNKER_OVERLAP"`
}

type RetrieverConfig struct {
	Chunks       int `json:"chunks" env:"CHRONICLE_RETRIEVER_CHUNKS"`
	Events       int `json:"events" env:"CHRONICLE_RETRIEVER_EVENTS"`
	StatesDays   int `json:"states_days" env:"CHRONICLE_RETRIEVER_STATES_DAYS"`
	CacheSeconds int `json:"cache_seconds" env:"CHRONICLE_RETRIEVER_CACHE_SECONDS"`
	CacheSize    int `json:"cache_size" env:"CHRONICLE_RETRIEVER_CACHE_SIZE"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" env:"CHRONICLE_EMBEDDINGS_API_KEY"`
	APIBase string `json:"api_base" env:"CHRONICLE_EMBEDDINGS_API_BASE"`
	Model   string `json:"model" env:"CHRONICLE_EMBEDDINGS_MODEL"`
}

type LLMConfig struct {
	APIKey  string `json:"api_key" env:"CHRONICLE_LLM_API_KEY"`
	APIBase string `json:"api_base" env:"CHRONICLE_LLM_API_BASE"`
	Model   string `json:"model" env:"CHRONICLE_LLM_MODEL"`
}

func DefaultConfig() *Config {
	return &Config{
		DBPath:             "./chronicle.db",
		VectorDim:          1536,
		MaxTokens:          30000,
		HTTPTimeoutSeconds: 15,
		TickCron:           "0 1 * * *",
		Chunker: ChunkerConfig{
			Size:    900,
			Overlap: 120,
		},
		Retriever: RetrieverConfig{
			Chunks:       200,
			Events:       1000,
			StatesDays:   14,
			CacheSeconds: 20,
			CacheSize:    128,
		},
		Embeddings: ProviderConfig{
			APIBase: "https://api.openai.com/v1",
			Model:   "text-embedding-3-large",
		},
		LLM: LLMConfig{
			APIBase: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
	}
}

// LoadConfig reads the JSON config at path (a missing file keeps the
// defaults) and overlays CHRONICLE_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) HTTPTimeout() time.Duration {
	if c.HTTPTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// EmbeddingsEnabled reports whether the remote embedding capability is
// configured. Absence selects the deterministic fallback, not an error.
func (c *Config) EmbeddingsEnabled() bool {
	return c.VectorDim > 0 &&
		strings.TrimSpace(c.Embeddings.APIKey) != "" &&
		strings.TrimSpace(c.Embeddings.Model) != ""
}

// LLMEnabled reports whether remote text generation is configured.
func (c *Config) LLMEnabled() bool {
	return strings.TrimSpace(c.LLM.APIKey) != "" &&
		strings.TrimSpace(c.LLM.Model) != ""
}
