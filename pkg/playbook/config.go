package playbook

import (
	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// Config configures a Playbook and the components operating on it.
type Config struct {
	// MaxSize bounds the number of items the playbook may hold.
	MaxSize int `yaml:"max_size" json:"max_size"`

	// SimilarityThreshold is the cosine (or lexical fallback) similarity
	// above which an added item is treated as a duplicate of an existing
	// one in the same section. Must be in (0, 1].
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`

	// MinScore is the relevance assigned to items without a cached
	// embedding during retrieval so they stay discoverable.
	MinScore float64 `yaml:"min_score" json:"min_score"`

	// MaxRetrieved is the default number of items returned by the
	// Retriever when the caller does not request a count.
	MaxRetrieved int `yaml:"max_retrieved" json:"max_retrieved"`

	// EmbedConcurrency bounds the goroutines used when backfilling
	// missing item embeddings.
	EmbedConcurrency int `yaml:"embed_concurrency" json:"embed_concurrency"`

	// HardDeprecate removes items immediately on Deprecate instead of
	// only lowering their eviction priority.
	HardDeprecate bool `yaml:"hard_deprecate" json:"hard_deprecate"`
}

// DefaultConfig returns a Config with the defaults used by the original
// framework.
func DefaultConfig() Config {
	return Config{
		MaxSize:             1000,
		SimilarityThreshold: 0.8,
		MinScore:            0.0,
		MaxRetrieved:        10,
		EmbedConcurrency:    4,
	}
}

// Validate checks that the config has valid values. Violations are fatal at
// construction time.
func (c *Config) Validate() error {
	if c.MaxSize <= 0 {
		return errors.WithFields(
			errors.New(errors.ConfigurationError, "max_size must be positive"),
			errors.Fields{"max_size": c.MaxSize},
		)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return errors.WithFields(
			errors.New(errors.ConfigurationError, "similarity_threshold must be in (0, 1]"),
			errors.Fields{"similarity_threshold": c.SimilarityThreshold},
		)
	}
	if c.MaxRetrieved < 0 {
		return errors.WithFields(
			errors.New(errors.ConfigurationError, "max_retrieved cannot be negative"),
			errors.Fields{"max_retrieved": c.MaxRetrieved},
		)
	}
	if c.EmbedConcurrency < 0 {
		return errors.WithFields(
			errors.New(errors.ConfigurationError, "embed_concurrency cannot be negative"),
			errors.Fields{"embed_concurrency": c.EmbedConcurrency},
		)
	}
	return nil
}

// withDefaults fills zero-valued optional fields.
func (c Config) withDefaults() Config {
	if c.MaxRetrieved == 0 {
		c.MaxRetrieved = 10
	}
	if c.EmbedConcurrency == 0 {
		c.EmbedConcurrency = 4
	}
	return c
}
