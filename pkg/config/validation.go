package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Tag     string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	switch e.Tag {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "min", "gt":
		return fmt.Sprintf("%s is below the allowed minimum", e.Field)
	case "max":
		return fmt.Sprintf("%s is above the allowed maximum", e.Field)
	case "oneof":
		return fmt.Sprintf("%s must be one of the allowed values", e.Field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a host:port address", e.Field)
	default:
		return fmt.Sprintf("%s failed validation", e.Field)
	}
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Validator provides configuration validation.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// ValidateConfig validates a configuration struct. Structural failures are
// wrapped as ConfigurationError so callers can classify them.
func (v *Validator) ValidateConfig(config *Config) error {
	if config == nil {
		return errors.New(errors.ConfigurationError, "config is nil")
	}

	err := v.validate.Struct(config)
	if err == nil {
		return nil
	}

	var validationErrors ValidationErrors
	if errs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range errs {
			validationErrors = append(validationErrors, ValidationError{
				Field: e.Namespace(),
				Tag:   e.Tag(),
				Value: e.Value(),
			})
		}
	} else {
		validationErrors = append(validationErrors, ValidationError{Message: err.Error()})
	}

	return errors.Wrap(validationErrors, errors.ConfigurationError, "invalid configuration")
}

var (
	defaultValidator     *Validator
	defaultValidatorOnce sync.Once
)

// ValidateConfiguration validates a config with the shared validator.
func ValidateConfiguration(config *Config) error {
	defaultValidatorOnce.Do(func() {
		defaultValidator = NewValidator()
	})
	return defaultValidator.ValidateConfig(config)
}
