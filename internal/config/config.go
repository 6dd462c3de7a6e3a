package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// APIKeyEnv is the environment variable holding the Gemini API key.
const APIKeyEnv = "GOOGLE_API_KEY"

// Config represents the main gemchat configuration
type Config struct {
	// Gemini completion provider
	Gemini GeminiConfig `json:"gemini" mapstructure:"gemini"`

	// HTTP/websocket server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Page presentation
	UI UIConfig `json:"ui" mapstructure:"ui"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// GeminiConfig holds the Gemini API settings
type GeminiConfig struct {
	APIKey          string  `json:"api_key" mapstructure:"api_key"`
	Model           string  `json:"model" mapstructure:"model"`
	Temperature     float64 `json:"temperature" mapstructure:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens" mapstructure:"max_output_tokens"`
	SystemPrompt    string  `json:"system_prompt" mapstructure:"system_prompt"`
	RequestTimeout  int     `json:"request_timeout" mapstructure:"request_timeout"` // seconds
	BaseURL         string  `json:"base_url" mapstructure:"base_url"`
}

// Timeout returns the provider call bound as a duration.
func (g GeminiConfig) Timeout() time.Duration {
	return time.Duration(g.RequestTimeout) * time.Second
}

// ServerConfig holds the web render surface settings
type ServerConfig struct {
	Host              string `json:"host" mapstructure:"host"`
	Port              int    `json:"port" mapstructure:"port"`
	RequestsPerMinute int    `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	ShutdownTimeout   int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
}

// UIConfig holds page text and theme
type UIConfig struct {
	PageTitle       string `json:"page_title" mapstructure:"page_title"`
	PageIcon        string `json:"page_icon" mapstructure:"page_icon"`
	Header          string `json:"header" mapstructure:"header"`
	Placeholder     string `json:"placeholder" mapstructure:"placeholder"`
	SpinnerText     string `json:"spinner_text" mapstructure:"spinner_text"`
	BackgroundImage string `json:"background_image" mapstructure:"background_image"`
	PrimaryColor    string `json:"primary_color" mapstructure:"primary_color"`
	SecondaryColor  string `json:"secondary_color" mapstructure:"secondary_color"`
	TextColor       string `json:"text_color" mapstructure:"text_color"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Gemini: GeminiConfig{
			Model:           "gemini-2.0-flash",
			Temperature:     0,
			MaxOutputTokens: 0,
			RequestTimeout:  60,
		},
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              8501,
			RequestsPerMinute: 30,
			ShutdownTimeout:   10,
		},
		UI: UIConfig{
			PageTitle:       "Chat with AI!",
			PageIcon:        "💬",
			Header:          "💬 Large Language Model ChatBot",
			Placeholder:     "What's in your mind....?",
			SpinnerText:     "Let me think.....",
			BackgroundImage: "https://images.unsplash.com/photo-1542831371-29b0f74f9713?auto=format&fit=crop&w=1170&q=80",
			PrimaryColor:    "#000000",
			SecondaryColor:  "#1c1c1c",
			TextColor:       "#ffffff",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "gemchat",
		},
	}
}

// String returns a JSON representation of the config with the API key masked
func (c *Config) String() string {
	masked := *c
	if masked.Gemini.APIKey != "" {
		masked.Gemini.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// ConfigurationError reports a missing or invalid setting detected at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return &ConfigurationError{
			Field:  "gemini.api_key",
			Reason: fmt.Sprintf("no API key configured (set %s)", APIKeyEnv),
		}
	}

	v := NewValidator()
	if errs := v.ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}

	return nil
}
