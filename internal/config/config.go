// Package config loads the client configuration from YAML.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full client configuration.
type Config struct {
	API     API     `yaml:"api"`
	Socket  Socket  `yaml:"socket"`
	Feed    Feed    `yaml:"feed"`
	Journal Journal `yaml:"journal"`
}

// API configures the HTTP transport.
type API struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Socket configures the push channel.
type Socket struct {
	URL string `yaml:"url"`
}

// Feed configures feed pagination.
type Feed struct {
	PageSize int `yaml:"page_size"`
}

// Journal configures the optional mutation journal. An empty path
// disables it.
type Journal struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		API:    API{BaseURL: "http://localhost:5001/api", Timeout: 15 * time.Second},
		Socket: Socket{URL: "ws://localhost:5001/ws"},
		Feed:   Feed{PageSize: 10},
	}
}

// Load reads a YAML config file over the defaults. Unknown fields are
// rejected so a typoed key fails instead of silently using a default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Feed.PageSize < 1 {
		return fmt.Errorf("feed.page_size must be at least 1")
	}
	return nil
}
