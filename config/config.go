// Package config loads newswatch configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full newswatch configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Log      LogConfig      `mapstructure:"log"`
	Seeds    SeedsConfig    `mapstructure:"seeds"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// MonitorConfig holds scan scheduling settings.
type MonitorConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	ScanOnStart  bool          `mapstructure:"scan_on_start"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SeedsConfig holds the default feed and keyword lists used only at
// first-run bootstrap, when the database is empty.
type SeedsConfig struct {
	Feeds    []SeedFeed `mapstructure:"feeds"`
	Keywords []string   `mapstructure:"keywords"`
}

// SeedFeed is one entry in the default feed list.
type SeedFeed struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// Load reads configuration from the given YAML file (optional) with
// NEWSWATCH_* environment variable overrides on top of defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NEWSWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("newswatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// A missing default config file is fine; defaults and env apply
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", c.Monitor.Interval)
	}
	if c.Monitor.FetchTimeout <= 0 {
		return fmt.Errorf("monitor fetch timeout must be positive, got %s", c.Monitor.FetchTimeout)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "newswatch.db")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("monitor.interval", 10*time.Minute)
	v.SetDefault("monitor.fetch_timeout", 15*time.Second)
	v.SetDefault("monitor.scan_on_start", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}
