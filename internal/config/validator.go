package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the whole configuration
func (v *Validator) Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if err := v.ValidateProvider(cfg.Provider.Name); err != nil {
		return err
	}

	if err := v.ValidateAPIKey(cfg.Provider.APIKey, cfg.Provider.Name); err != nil {
		return err
	}

	if cfg.Provider.Temperature < 0 || cfg.Provider.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}

	if cfg.Runtime.MaxTurns <= 0 {
		return fmt.Errorf("runtime max_turns must be positive")
	}

	if cfg.Runtime.FeedbackTimeoutMs <= 0 {
		return fmt.Errorf("runtime feedback_timeout_ms must be positive")
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample_ratio must be between 0 and 1")
	}

	return nil
}

// ValidateProvider validates a provider name
func (v *Validator) ValidateProvider(name string) error {
	switch name {
	case "anthropic", "openai":
		return nil
	default:
		return fmt.Errorf("unsupported provider: %s", name)
	}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}
