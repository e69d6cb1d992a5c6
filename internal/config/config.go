// Package config loads client credentials and preferences from the config
// file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the client needs to reach a server.
type Config struct {
	ServerURL    string        `mapstructure:"server_url"`
	AuthToken    string        `mapstructure:"auth_token"`
	Directory    string        `mapstructure:"directory"`
	ProviderID   string        `mapstructure:"provider_id"`
	ModelID      string        `mapstructure:"model_id"`
	StuckTimeout time.Duration `mapstructure:"stuck_timeout"`
}

// Dir returns the configuration directory, honoring XDG_CONFIG_HOME.
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "opencode-chat"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "opencode-chat"), nil
}

// Load reads config.yaml from the config directory, overlaid with
// OPENCODE_* environment variables. A missing file is not an error.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom reads the configuration from a specific directory.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetDefault("server_url", "http://localhost:4096")
	v.SetDefault("stuck_timeout", time.Minute)

	v.SetEnvPrefix("OPENCODE")
	v.AutomaticEnv()
	for _, key := range []string{"server_url", "auth_token", "directory", "provider_id", "model_id", "stuck_timeout"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration back to the config directory.
func Save(cfg *Config) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	v := viper.New()
	v.Set("server_url", cfg.ServerURL)
	v.Set("auth_token", cfg.AuthToken)
	v.Set("directory", cfg.Directory)
	v.Set("provider_id", cfg.ProviderID)
	v.Set("model_id", cfg.ModelID)
	v.Set("stuck_timeout", cfg.StuckTimeout)

	path := filepath.Join(dir, "config.yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
