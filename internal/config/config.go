// Package config handles configuration loading for convoy.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for convoy.
type Config struct {
	Mode      string          `mapstructure:"mode"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the zap log level name.
	Level string `mapstructure:"level"`
	// Development switches to the console encoder.
	Development bool `mapstructure:"development"`
}

// StorageConfig selects the task store backend.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `mapstructure:"backend"`
	// Path is the sqlite database file when Backend is "sqlite".
	Path string `mapstructure:"path"`
}

// RemoteConfig holds remote execution node settings.
type RemoteConfig struct {
	// BaseURL is the execution node's base URL.
	BaseURL string `mapstructure:"base_url"`
	// PollInterval is the stream poll interval.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// RequestTimeout bounds each HTTP call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AnthropicConfig holds Anthropic API settings for the spawn collaborator.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// SecurityConfig holds security service settings.
type SecurityConfig struct {
	// SessionTTL is the session lifetime.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// TokenSecret signs session tokens. Empty means a per-process secret.
	TokenSecret string `mapstructure:"token_secret"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
//  1. Environment variables (CONVOY_*, ANTHROPIC_API_KEY)
//  2. Project config (.convoy.yaml in the current directory or a parent)
//  3. User config (~/.config/convoy/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("CONVOY")
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Mode: "local-only",
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Remote: RemoteConfig{
			PollInterval:   time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			SessionTTL: 24 * time.Hour,
		},
	}
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "local-only")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.path", "")
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.poll_interval", "1s")
	v.SetDefault("remote.request_timeout", "30s")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("security.session_ttl", "24h")
	v.SetDefault("security.token_secret", "")
}

// getUserConfigDir returns the XDG config directory for convoy.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "convoy")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "convoy")
	}
	return filepath.Join(home, ".config", "convoy")
}

// findProjectConfig searches for .convoy.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".convoy.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}
