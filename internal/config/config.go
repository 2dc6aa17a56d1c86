// Package config provides configuration management for engram.
// Settings are loaded from environment variables with the ENGRAM_ prefix,
// with sensible defaults for every option. An optional YAML file can overlay
// the environment values (LoadConfigFile).
//
// The resulting *Config is treated as immutable: it is built once at startup
// and passed explicitly to constructors, never read through package globals.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the engram memory pipeline.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	LLM     LLMConfig     `yaml:"llm"`
	Memory  MemoryConfig  `yaml:"memory"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// StorageConfig selects and configures the vector store / audit log backend.
type StorageConfig struct {
	// Engine is the storage backend: sqlite, postgres, or chromem (in-memory).
	Engine string `yaml:"engine"`

	// DataPath is the directory holding the SQLite database and event files.
	DataPath string `yaml:"data_path"`

	// PostgresDSN is the connection string for the postgres engine.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LLMConfig configures the text-generation and embedding providers.
type LLMConfig struct {
	Provider        string `yaml:"provider"`         // ollama, openai, anthropic
	OllamaURL       string `yaml:"ollama_url"`       // default: http://localhost:11434
	OllamaModel     string `yaml:"ollama_model"`     // default: qwen2.5:7b
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIModel     string `yaml:"openai_model"`     // default: gpt-4o-mini
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`  // default: claude-haiku-4-5-20251001
	EmbeddingModel  string `yaml:"embedding_model"`  // provider-specific default

	// RequestsPerSecond caps outbound LLM/embedding calls. Zero disables
	// rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// MemoryConfig holds the tunables of the memory pipeline itself.
type MemoryConfig struct {
	// Enabled turns the whole memory pipeline on or off.
	Enabled bool `yaml:"enabled"`

	// SimilarityThreshold is the minimum k-NN score (0–1) for an existing
	// memory to be offered to reconciliation as a candidate.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// RetrievalLimit is the default number of results for search and the
	// per-fact candidate fetch (must be > 0).
	RetrievalLimit int `yaml:"retrieval_limit"`

	// ExtractionEnabled controls whether facts are distilled via the LLM.
	// When false, add calls are no-ops that return zero actions.
	ExtractionEnabled bool `yaml:"extraction_enabled"`

	// EmbeddingDimension is the expected embedding vector length (must be > 0).
	EmbeddingDimension int `yaml:"embedding_dimension"`

	// CacheTTL bounds how long computed embeddings are cached. Performance
	// hint only; zero disables the cache.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// BatchSize chunks embedding batch requests. Performance hint only.
	BatchSize int `yaml:"batch_size"`

	// MaxMessages is the number of most-recent conversation turns considered
	// by fact extraction.
	MaxMessages int `yaml:"max_messages"`

	// MinMessageLength filters out conversation turns shorter than this many
	// characters before extraction.
	MinMessageLength int `yaml:"min_message_length"`

	// ExtractionTemperature is the sampling temperature for the extraction
	// prompt (0–2). Zero keeps the provider's deterministic default.
	ExtractionTemperature float64 `yaml:"extraction_temperature"`
}

// NotifyConfig configures cross-process mutation event files.
type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoadConfig builds a Config from environment variables and defaults.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile builds a Config from environment variables, then overlays
// values from the YAML file at path. File values take precedence over the
// environment.
func LoadConfigFile(path string) (*Config, error) {
	cfg := buildBaseConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option ranges. It is called by the loaders but exported so
// hand-built test configs can be checked too.
func (c *Config) Validate() error {
	if c.Memory.SimilarityThreshold < 0 || c.Memory.SimilarityThreshold > 1 {
		return fmt.Errorf("config: similarity_threshold %.2f out of range [0,1]", c.Memory.SimilarityThreshold)
	}
	if c.Memory.RetrievalLimit <= 0 {
		return fmt.Errorf("config: retrieval_limit must be positive, got %d", c.Memory.RetrievalLimit)
	}
	if c.Memory.EmbeddingDimension <= 0 {
		return fmt.Errorf("config: embedding_dimension must be positive, got %d", c.Memory.EmbeddingDimension)
	}
	if c.Memory.BatchSize < 0 {
		return fmt.Errorf("config: batch_size must not be negative, got %d", c.Memory.BatchSize)
	}
	if c.Memory.ExtractionTemperature < 0 || c.Memory.ExtractionTemperature > 2 {
		return fmt.Errorf("config: extraction_temperature %.2f out of range [0,2]", c.Memory.ExtractionTemperature)
	}
	switch c.Storage.Engine {
	case "sqlite", "postgres", "chromem":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	return nil
}

// buildBaseConfig constructs a Config from environment variables and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:      getEnv("ENGRAM_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("ENGRAM_DATA_PATH", "./data"),
			PostgresDSN: getEnv("ENGRAM_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			Provider:          getEnv("ENGRAM_LLM_PROVIDER", "ollama"),
			OllamaURL:         getEnv("ENGRAM_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("ENGRAM_OLLAMA_MODEL", "qwen2.5:7b"),
			OpenAIAPIKey:      getEnv("ENGRAM_OPENAI_API_KEY", ""),
			OpenAIModel:       getEnv("ENGRAM_OPENAI_MODEL", "gpt-4o-mini"),
			AnthropicAPIKey:   getEnv("ENGRAM_ANTHROPIC_API_KEY", ""),
			AnthropicModel:    getEnv("ENGRAM_ANTHROPIC_MODEL", "claude-haiku-4-5-20251001"),
			EmbeddingModel:    getEnv("ENGRAM_EMBEDDING_MODEL", ""),
			RequestsPerSecond: getEnvFloat("ENGRAM_LLM_REQUESTS_PER_SECOND", 0),
		},
		Memory: MemoryConfig{
			Enabled:             getEnvBool("ENGRAM_MEMORY_ENABLED", true),
			SimilarityThreshold: getEnvFloat("ENGRAM_SIMILARITY_THRESHOLD", 0.7),
			RetrievalLimit:      getEnvInt("ENGRAM_RETRIEVAL_LIMIT", 10),
			ExtractionEnabled:   getEnvBool("ENGRAM_EXTRACTION_ENABLED", true),
			EmbeddingDimension:  getEnvInt("ENGRAM_EMBEDDING_DIMENSION", 1536),
			CacheTTL:            getEnvDuration("ENGRAM_CACHE_TTL", 10*time.Minute),
			BatchSize:           getEnvInt("ENGRAM_BATCH_SIZE", 32),
			MaxMessages:         getEnvInt("ENGRAM_MAX_MESSAGES", 10),
			MinMessageLength:    getEnvInt("ENGRAM_MIN_MESSAGE_LENGTH", 4),

			ExtractionTemperature: getEnvFloat("ENGRAM_EXTRACTION_TEMPERATURE", 0),
		},
		Notify: NotifyConfig{
			Enabled: getEnvBool("ENGRAM_NOTIFY_ENABLED", false),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (e.g. "5m") or
// returns a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
