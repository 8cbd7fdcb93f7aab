package config

import (
	"time"
)

// GetDefaultConfig returns the default configuration for ace-go.
func GetDefaultConfig() *Config {
	return &Config{
		Engine:     getDefaultEngineConfig(),
		Embedding:  getDefaultEmbeddingConfig(),
		Reflection: getDefaultReflectionConfig(),
		Storage:    getDefaultStorageConfig(),
		Reporting:  getDefaultReportingConfig(),
		Logging:    getDefaultLoggingConfig(),
	}
}

func getDefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxSize:             1000,
		SimilarityThreshold: 0.8,
		MinScore:            0.0,
		MaxRetrieved:        10,
		EmbedConcurrency:    4,
	}
}

func getDefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider: "ollama",
		BaseURL:  "http://localhost:11434",
		Model:    "nomic-embed-text",
		Timeout:  30 * time.Second,
	}
}

func getDefaultReflectionConfig() ReflectionConfig {
	return ReflectionConfig{
		Provider:  "anthropic",
		Model:     "claude-sonnet-4-20250514",
		APIKey:    "", // Should be provided via environment or config file
		MaxTokens: 4096,
		Timeout:   60 * time.Second,
	}
}

func getDefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:      "file",
		Path:         "playbook.json",
		SaveInterval: 0,
	}
}

func getDefaultReportingConfig() ReportingConfig {
	return ReportingConfig{
		Enabled:         false,
		Address:         "localhost:8311",
		ShutdownTimeout: 10 * time.Second,
	}
}

func getDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:    "INFO",
		FilePath: "",
	}
}
