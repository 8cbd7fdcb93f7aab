package config

import (
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// Config represents the complete configuration for the ace-go engine.
type Config struct {
	// Engine configuration
	Engine EngineConfig `yaml:"engine" validate:"required"`

	// Embedding provider configuration
	Embedding EmbeddingConfig `yaml:"embedding,omitempty" validate:"omitempty"`

	// Reflection LLM configuration
	Reflection ReflectionConfig `yaml:"reflection,omitempty" validate:"omitempty"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage,omitempty" validate:"omitempty"`

	// Reporting server configuration
	Reporting ReportingConfig `yaml:"reporting,omitempty" validate:"omitempty"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,omitempty" validate:"omitempty"`
}

// EngineConfig holds the playbook engine parameters.
type EngineConfig struct {
	// Maximum number of items the playbook may hold
	MaxSize int `yaml:"max_size" validate:"min=1"`

	// Cosine similarity at or above which two items are duplicates
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gt=0,max=1"`

	// Score assigned to items that cannot be compared to the query
	MinScore float64 `yaml:"min_score"`

	// Default number of items returned by retrieval
	MaxRetrieved int `yaml:"max_retrieved" validate:"min=1"`

	// Concurrency for embedding backfill
	EmbedConcurrency int `yaml:"embed_concurrency" validate:"min=1"`

	// Remove items immediately on deprecation instead of waiting for
	// eviction pressure
	HardDeprecate bool `yaml:"hard_deprecate"`
}

// EmbeddingConfig holds configuration for the embedding provider.
type EmbeddingConfig struct {
	// Provider name (ollama)
	Provider string `yaml:"provider" validate:"omitempty,oneof=ollama"`

	// Base URL for the provider API
	BaseURL string `yaml:"base_url,omitempty"`

	// Model to use for embeddings
	Model string `yaml:"model,omitempty"`

	// Request timeout
	Timeout time.Duration `yaml:"timeout,omitempty" validate:"omitempty,min=1s"`
}

// ReflectionConfig holds configuration for the reflection LLM that
// proposes delta operations from execution feedback.
type ReflectionConfig struct {
	// Provider name (anthropic)
	Provider string `yaml:"provider" validate:"omitempty,oneof=anthropic"`

	// Model ID (e.g. claude-sonnet-4-20250514)
	Model string `yaml:"model,omitempty"`

	// API key for the provider; falls back to the provider's standard
	// environment variable when empty
	APIKey string `yaml:"api_key,omitempty"`

	// Maximum tokens to generate per reflection
	MaxTokens int `yaml:"max_tokens,omitempty" validate:"omitempty,min=1"`

	// Request timeout
	Timeout time.Duration `yaml:"timeout,omitempty" validate:"omitempty,min=1s"`
}

// StorageConfig holds playbook persistence configuration.
type StorageConfig struct {
	// Backend type (file, sqlite)
	Backend string `yaml:"backend" validate:"omitempty,oneof=file sqlite"`

	// Path to the snapshot file or database
	Path string `yaml:"path,omitempty"`

	// How often to persist the playbook; zero disables periodic saves
	SaveInterval time.Duration `yaml:"save_interval,omitempty" validate:"omitempty,min=1s"`
}

// ReportingConfig holds the read-only HTTP reporting server configuration.
type ReportingConfig struct {
	// Enable the reporting server
	Enabled bool `yaml:"enabled"`

	// Listen address (host:port)
	Address string `yaml:"address,omitempty" validate:"omitempty,hostname_port"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty" validate:"omitempty,min=1s"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Log level (DEBUG, INFO, WARN, ERROR, FATAL)
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL"`

	// File path for an additional file output; empty means console only
	FilePath string `yaml:"file_path,omitempty"`
}

// PlaybookConfig converts the engine section into the playbook package's
// configuration type.
func (c *Config) PlaybookConfig() playbook.Config {
	return playbook.Config{
		MaxSize:             c.Engine.MaxSize,
		SimilarityThreshold: c.Engine.SimilarityThreshold,
		MinScore:            c.Engine.MinScore,
		MaxRetrieved:        c.Engine.MaxRetrieved,
		EmbedConcurrency:    c.Engine.EmbedConcurrency,
		HardDeprecate:       c.Engine.HardDeprecate,
	}
}

// Validate validates the configuration using the singleton validator.
func (c *Config) Validate() error {
	return ValidateConfiguration(c)
}
