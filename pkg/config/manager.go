package config

import (
	"fmt"
	"sort"

	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// Manager loads configuration by layering sources in priority order over
// the built-in defaults.
type Manager struct {
	sources []Source
	logger  *logging.Logger
}

// NewManager creates a manager with the standard sources: YAML files then
// environment overrides.
func NewManager() *Manager {
	return &Manager{
		sources: []Source{
			NewFileSource(),
			NewEnvironmentSource(),
		},
		logger: logging.GetLogger(),
	}
}

// NewManagerWithSources creates a manager with custom sources.
func NewManagerWithSources(sources ...Source) *Manager {
	return &Manager{
		sources: sources,
		logger:  logging.GetLogger(),
	}
}

// Load builds the effective configuration from defaults plus the given
// file paths, validates it, and returns it.
func (m *Manager) Load(paths ...string) (*Config, error) {
	config := GetDefaultConfig()

	sources := make([]Source, len(m.sources))
	copy(sources, m.sources)
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Priority() < sources[j].Priority()
	})

	for _, source := range sources {
		if err := source.Load(config, paths); err != nil {
			return nil, fmt.Errorf("source %s: %w", source.Name(), err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a single YAML file with
// environment overrides applied on top.
func LoadFromFile(path string) (*Config, error) {
	return NewManager().Load(path)
}
