// Package config handles configuration loading for unstuck. It supports
// XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the unstuck service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig holds SQLite settings. An empty path means the default
// XDG data location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AnthropicConfig holds generative-text service settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// AuthConfig holds identity-provider and session settings.
type AuthConfig struct {
	// ProviderURL is the external identity provider's code-exchange
	// endpoint. Empty disables the callback route.
	ProviderURL string        `mapstructure:"provider_url"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
}

// TimeoutsConfig holds request budget settings.
type TimeoutsConfig struct {
	// Generate bounds a single generative call.
	Generate time.Duration `mapstructure:"generate"`
	// Shutdown bounds graceful server shutdown.
	Shutdown time.Duration `mapstructure:"shutdown"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, UNSTUCK_*)
// 2. Project config (.unstuck.yaml in current directory or parent)
// 3. User config (~/.config/unstuck/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("UNSTUCK")

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("server.addr", "UNSTUCK_ADDR")
	v.BindEnv("database.path", "UNSTUCK_DB_PATH")
	v.BindEnv("auth.provider_url", "UNSTUCK_AUTH_PROVIDER_URL")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
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

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the project config file if one exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8484")

	v.SetDefault("database.path", "")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-3-5-haiku-20241022")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("auth.provider_url", "")
	v.SetDefault("auth.session_ttl", "720h")

	v.SetDefault("timeouts.generate", "30s")
	v.SetDefault("timeouts.shutdown", "10s")
}

// getUserConfigDir returns the XDG config directory for unstuck.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "unstuck")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "unstuck")
	}
	return filepath.Join(home, ".config", "unstuck")
}

// findProjectConfig searches for .unstuck.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".unstuck.yaml")
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

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8484"},
		Database: DatabaseConfig{Path: ""},
		Anthropic: AnthropicConfig{
			Model:     "claude-3-5-haiku-20241022",
			MaxTokens: 4096,
		},
		Auth: AuthConfig{
			SessionTTL: 720 * time.Hour,
		},
		Timeouts: TimeoutsConfig{
			Generate: 30 * time.Second,
			Shutdown: 10 * time.Second,
		},
	}
}
