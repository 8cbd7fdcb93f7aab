package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source represents a configuration source.
type Source interface {
	// Load loads configuration from the source into the provided config
	Load(config *Config, paths []string) error

	// Name returns the name of the source
	Name() string

	// Priority returns the priority of the source (higher priority overrides lower)
	Priority() int
}

// FileSource loads configuration from YAML files.
type FileSource struct {
	priority int
}

// NewFileSource creates a new file source.
func NewFileSource() *FileSource {
	return &FileSource{priority: 100}
}

// Name returns the name of the file source.
func (fs *FileSource) Name() string {
	return "file"
}

// Priority returns the priority of the file source.
func (fs *FileSource) Priority() int {
	return fs.priority
}

// Load loads configuration from YAML files. Later paths override earlier
// ones; missing files are skipped.
func (fs *FileSource) Load(config *Config, paths []string) error {
	for _, path := range paths {
		if !fileExists(path) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshaling into the existing struct overrides only the
		// fields the file sets.
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML from %s: %w", path, err)
		}
	}

	return nil
}

// EnvironmentSource loads configuration from environment variables.
type EnvironmentSource struct {
	priority int
	prefix   string
}

// NewEnvironmentSource creates a new environment source.
func NewEnvironmentSource() *EnvironmentSource {
	return &EnvironmentSource{
		priority: 200, // Higher priority than file source
		prefix:   "ACE_",
	}
}

// NewEnvironmentSourceWithPrefix creates a new environment source with custom prefix.
func NewEnvironmentSourceWithPrefix(prefix string) *EnvironmentSource {
	return &EnvironmentSource{
		priority: 200,
		prefix:   prefix,
	}
}

// Name returns the name of the environment source.
func (es *EnvironmentSource) Name() string {
	return "environment"
}

// Priority returns the priority of the environment source.
func (es *EnvironmentSource) Priority() int {
	return es.priority
}

// Load applies environment variable overrides.
func (es *EnvironmentSource) Load(config *Config, paths []string) error {
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], es.prefix) {
			continue
		}

		key := strings.TrimPrefix(parts[0], es.prefix)
		if err := es.setConfigValue(config, key, parts[1]); err != nil {
			return fmt.Errorf("failed to set config value %s: %w", parts[0], err)
		}
	}

	return nil
}

// setConfigValue maps one environment variable onto its config field.
// Unknown keys are ignored so unrelated ACE_-prefixed variables do not
// break startup.
func (es *EnvironmentSource) setConfigValue(config *Config, key, value string) error {
	switch key {
	case "ENGINE_MAX_SIZE":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer %q: %w", value, err)
		}
		config.Engine.MaxSize = n
	case "ENGINE_SIMILARITY_THRESHOLD":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float %q: %w", value, err)
		}
		config.Engine.SimilarityThreshold = f
	case "ENGINE_MAX_RETRIEVED":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer %q: %w", value, err)
		}
		config.Engine.MaxRetrieved = n
	case "EMBEDDING_BASE_URL":
		config.Embedding.BaseURL = value
	case "EMBEDDING_MODEL":
		config.Embedding.Model = value
	case "REFLECTION_MODEL":
		config.Reflection.Model = value
	case "REFLECTION_API_KEY":
		config.Reflection.APIKey = value
	case "STORAGE_BACKEND":
		config.Storage.Backend = value
	case "STORAGE_PATH":
		config.Storage.Path = value
	case "REPORTING_ADDRESS":
		config.Reporting.Address = value
	case "REPORTING_ENABLED":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q: %w", value, err)
		}
		config.Reporting.Enabled = b
	case "LOGGING_LEVEL":
		config.Logging.Level = strings.ToUpper(value)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
