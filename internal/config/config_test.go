package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	assert.Equal(t, 60*time.Second, cfg.Gemini.Timeout())
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8501, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Server.RequestsPerMinute)
	assert.Equal(t, "Chat with AI!", cfg.UI.PageTitle)
	assert.Equal(t, "What's in your mind....?", cfg.UI.Placeholder)
	assert.Equal(t, "Let me think.....", cfg.UI.SpinnerText)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.Empty(t, cfg.Gemini.APIKey)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Gemini.APIKey = "AIzaSyTestKey"

		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing API key is a configuration error", func(t *testing.T) {
		cfg := DefaultConfig()

		err := cfg.Validate()
		require.Error(t, err)

		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "gemini.api_key", cfgErr.Field)
		assert.Contains(t, err.Error(), APIKeyEnv)
	})

	t.Run("whitespace API key is a configuration error", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Gemini.APIKey = "   "

		var cfgErr *ConfigurationError
		assert.True(t, errors.As(cfg.Validate(), &cfgErr))
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Gemini.APIKey = "AIzaSyTestKey"
		cfg.Server.Port = 70000

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.port")
	})

	t.Run("non-positive timeout", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Gemini.APIKey = "AIzaSyTestKey"
		cfg.Gemini.RequestTimeout = 0

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "request_timeout")
	})
}

func TestConfigStringMasksAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gemini.APIKey = "AIzaSySecretValue"

	out := cfg.String()
	assert.NotContains(t, out, "AIzaSySecretValue")
	assert.Contains(t, out, "[REDACTED]")
	// The original is untouched.
	assert.Equal(t, "AIzaSySecretValue", cfg.Gemini.APIKey)
}

func TestWizardRun(t *testing.T) {
	in := strings.NewReader("AIzaSyWizardKey\ngemini-1.5-pro\n9000\ndebug\n")
	out := &strings.Builder{}

	cfg, err := NewWizardWithIO(in, out).Run()
	require.NoError(t, err)

	assert.Equal(t, "AIzaSyWizardKey", cfg.Gemini.APIKey)
	assert.Equal(t, "gemini-1.5-pro", cfg.Gemini.Model)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Contains(t, out.String(), "Configuration complete!")
}

func TestWizardRunKeepsDefaults(t *testing.T) {
	in := strings.NewReader("\n\nnot-a-port\nverbose\n")
	out := &strings.Builder{}

	cfg, err := NewWizardWithIO(in, out).Run()
	require.NoError(t, err)

	defaults := DefaultConfig()
	assert.Empty(t, cfg.Gemini.APIKey)
	assert.Equal(t, defaults.Gemini.Model, cfg.Gemini.Model)
	assert.Equal(t, defaults.Server.Port, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Contains(t, out.String(), "Warning")
}
