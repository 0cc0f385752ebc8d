package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Webhook configures the outbound event notifier.
type Webhook struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
}

// Config represents the global ~/.huddle/config.toml.
type Config struct {
	DefaultWorkspace string  `toml:"default_workspace"`
	Listen           string  `toml:"listen"`
	Webhook          Webhook `toml:"webhook"`
}

// DefaultListen is the API address used when config omits one.
const DefaultListen = "127.0.0.1:7621"

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
