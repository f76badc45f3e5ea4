package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gridsync/gridsync/pkg/manager"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for both roles.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
}

// LogConfig configures the global logger
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	File  string `yaml:"file"`
}

// ServerConfig configures the API server role
type ServerConfig struct {
	Listen           string                 `yaml:"listen"`
	DataDir          string                 `yaml:"dataDir"`
	DefaultKeyColumn string                 `yaml:"defaultKeyColumn"`
	Sources          []manager.SourceConfig `yaml:"sources"`

	// Secret is the shared token secret. Empty means open access.
	// The GRIDSYNC_SECRET environment variable overrides it so the
	// secret can stay out of config files.
	Secret string `yaml:"secret"`
}

// ViewConfig binds a client view to a sheet
type ViewConfig struct {
	ID    string `yaml:"id"`
	Sheet string `yaml:"sheet"`
}

// ClientConfig configures the sync client role
type ClientConfig struct {
	ServerURL      string        `yaml:"serverUrl"`
	Token          string        `yaml:"token"`
	SharedCacheDSN string        `yaml:"sharedCacheDsn"`
	LocalCachePath string        `yaml:"localCachePath"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	CallTimeout    time.Duration `yaml:"callTimeout"`
	Views          []ViewConfig  `yaml:"views"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Listen:           ":8460",
			DataDir:          "./data",
			DefaultKeyColumn: "Key",
		},
		Client: ClientConfig{
			ServerURL:      "http://127.0.0.1:8460",
			LocalCachePath: "./gridsync-cache.db",
			PollInterval:   30 * time.Second,
			CallTimeout:    15 * time.Second,
		},
	}
}

// Load reads a YAML config file over the defaults and applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GRIDSYNC_SECRET"); v != "" {
		c.Server.Secret = v
	}
	if v := os.Getenv("GRIDSYNC_TOKEN"); v != "" {
		c.Client.Token = v
	}
	if v := os.Getenv("GRIDSYNC_SHARED_CACHE_DSN"); v != "" {
		c.Client.SharedCacheDSN = v
	}
}
