// Package config loads the flowd YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Engine     EngineConfig     `yaml:"engine"`
	Suggest    SuggestConfig    `yaml:"suggest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds database connection settings. An empty URL runs the
// engine on in-memory stores only.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig holds JWT verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DispatcherConfig bounds concurrent workflow executions.
type DispatcherConfig struct {
	GlobalMax       int `yaml:"global_max"`       // max concurrent executions system-wide (default: 32)
	PerOrganization int `yaml:"per_organization"` // max concurrent executions per tenant (default: 4)
}

// EngineConfig holds execution engine settings.
type EngineConfig struct {
	NodeTimeout time.Duration `yaml:"node_timeout"` // per-node execution deadline (default: 30s)
}

// SuggestConfig holds settings for the LLM-backed node suggestion provider.
// An empty URL selects the heuristic provider.
type SuggestConfig struct {
	URL    string `yaml:"url"`     // OpenAI-compatible base URL
	APIKey string `yaml:"api_key"` // API key
	Model  string `yaml:"model"`   // model name
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Dispatcher: DispatcherConfig{
			GlobalMax:       32,
			PerOrganization: 4,
		},
		Engine: EngineConfig{
			NodeTimeout: 30 * time.Second,
		},
	}
}

// Load reads a YAML configuration file at path and returns a Config.
// Values may reference environment variables with ${VAR} syntax; a .env
// file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Dispatcher.GlobalMax <= 0 {
		cfg.Dispatcher.GlobalMax = 32
	}
	if cfg.Dispatcher.PerOrganization <= 0 {
		cfg.Dispatcher.PerOrganization = 4
	}
	if cfg.Engine.NodeTimeout <= 0 {
		cfg.Engine.NodeTimeout = 30 * time.Second
	}

	return cfg, nil
}

// LoadDefault tries to load "config.yaml" from the current directory.
// If the file does not exist, it returns sensible defaults.
// Any other error (e.g. permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults(), nil
		}
		return nil, err
	}
	return cfg, nil
}
