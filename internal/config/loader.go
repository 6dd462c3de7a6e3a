package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// DefaultEnvFile is read when no explicit env file is given. A missing default file is not an error.
const DefaultEnvFile = ".env"

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFile    string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// WithEnvFile sets the dotenv file loaded before the environment is read.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// Load loads the configuration from the optional config file and the environment.
// It does not validate; callers decide when a ConfigurationError is fatal.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	// Environment overrides: GEMCHAT_SERVER_PORT -> server.port
	v.SetEnvPrefix("GEMCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("gemini.api_key", APIKeyEnv, "GEMCHAT_GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", APIKeyEnv, err)
	}

	configPath := l.GetConfigPath()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if l.configPath != "" {
			// An explicitly requested file must exist.
			return nil, &ConfigurationError{Field: "config", Reason: fmt.Sprintf("config file not found: %s", configPath)}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Gemini.APIKey = strings.TrimSpace(cfg.Gemini.APIKey)

	return cfg, nil
}

func (l *Loader) loadEnvFile() error {
	path := l.envFile
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}

	// gotenv.Load never overrides variables already present in the environment.
	if err := gotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &ConfigurationError{Field: "env_file", Reason: err.Error()}
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	for key, value := range settings(cfg) {
		v.SetDefault(key, value)
	}
}

// settings flattens cfg into viper keys. The keys match the mapstructure tags Load reads.
func settings(cfg *Config) map[string]interface{} {
	return map[string]interface{}{
		"gemini.api_key":           cfg.Gemini.APIKey,
		"gemini.model":             cfg.Gemini.Model,
		"gemini.temperature":       cfg.Gemini.Temperature,
		"gemini.max_output_tokens": cfg.Gemini.MaxOutputTokens,
		"gemini.system_prompt":     cfg.Gemini.SystemPrompt,
		"gemini.request_timeout":   cfg.Gemini.RequestTimeout,
		"gemini.base_url":          cfg.Gemini.BaseURL,

		"server.host":                cfg.Server.Host,
		"server.port":                cfg.Server.Port,
		"server.requests_per_minute": cfg.Server.RequestsPerMinute,
		"server.shutdown_timeout":    cfg.Server.ShutdownTimeout,

		"ui.page_title":       cfg.UI.PageTitle,
		"ui.page_icon":        cfg.UI.PageIcon,
		"ui.header":           cfg.UI.Header,
		"ui.placeholder":      cfg.UI.Placeholder,
		"ui.spinner_text":     cfg.UI.SpinnerText,
		"ui.background_image": cfg.UI.BackgroundImage,
		"ui.primary_color":    cfg.UI.PrimaryColor,
		"ui.secondary_color":  cfg.UI.SecondaryColor,
		"ui.text_color":       cfg.UI.TextColor,

		"logging.level":     cfg.Logging.Level,
		"logging.file":      cfg.Logging.File,
		"logging.pretty":    cfg.Logging.Pretty,
		"logging.max_size":  cfg.Logging.MaxSize,
		"logging.max_age":   cfg.Logging.MaxAge,
		"logging.compress":  cfg.Logging.Compress,
		"logging.redaction": cfg.Logging.Redaction,

		"tracing.enabled":      cfg.Tracing.Enabled,
		"tracing.service_name": cfg.Tracing.ServiceName,
	}
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if filepath.Ext(configPath) == "" {
		v.SetConfigType("json")
	}

	for key, value := range settings(cfg) {
		v.Set(key, value)
	}

	if err := v.WriteConfig(); err != nil {
		// If file doesn't exist, create it
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	// The file may carry the API key.
	return os.Chmod(configPath, 0600)
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gemchat", "gemchat.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
