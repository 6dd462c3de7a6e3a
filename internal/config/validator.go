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

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string) error {
	if key == "" {
		return &ConfigurationError{Field: "gemini.api_key", Reason: "API key cannot be empty"}
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return &ConfigurationError{Field: "gemini.api_key", Reason: "API key must not contain whitespace"}
	}
	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return &ConfigurationError{Field: "gemini.model", Reason: "model name cannot be empty"}
	}
	if strings.ContainsAny(model, " /") && !strings.HasPrefix(model, "models/") {
		return &ConfigurationError{Field: "gemini.model", Reason: fmt.Sprintf("invalid model name %q", model)}
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return &ConfigurationError{
			Field:  "gemini.temperature",
			Reason: fmt.Sprintf("temperature must be between 0 and 2, got %f", temp),
		}
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens < 0 {
		return &ConfigurationError{
			Field:  "gemini.max_output_tokens",
			Reason: fmt.Sprintf("max output tokens must be >= 0, got %d", tokens),
		}
	}
	return nil
}

// ValidateTimeout validates the provider call bound
func (v *Validator) ValidateTimeout(seconds int) error {
	if seconds <= 0 {
		return &ConfigurationError{
			Field:  "gemini.request_timeout",
			Reason: fmt.Sprintf("request timeout must be positive, got %d", seconds),
		}
	}
	return nil
}

// ValidatePort validates the listen port
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return &ConfigurationError{Field: "server.port", Reason: fmt.Sprintf("invalid port: %d", port)}
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return &ConfigurationError{
		Field:  "logging.level",
		Reason: fmt.Sprintf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", ")),
	}
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateAPIKey(cfg.Gemini.APIKey); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateModel(cfg.Gemini.Model); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTemperature(cfg.Gemini.Temperature); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateMaxTokens(cfg.Gemini.MaxOutputTokens); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTimeout(cfg.Gemini.RequestTimeout); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, err)
	}
	if cfg.Server.RequestsPerMinute < 0 {
		errors = append(errors, &ConfigurationError{Field: "server.requests_per_minute", Reason: "must be >= 0"})
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
