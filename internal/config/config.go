// Package config loads runtime settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Token backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// FileEnv names the variable that points at the YAML overlay.
const FileEnv = "PULSE_CONFIG"

// Config holds all runtime settings for the dashboard client.
type Config struct {
	// Backend REST API, including the /api prefix
	APIBaseURL string `yaml:"api_base_url" env:"PULSE_API_URL"`

	// Local listener for the dashboard routes
	Host string `yaml:"host" env:"PULSE_HOST"`
	Port int    `yaml:"port" env:"PULSE_PORT"`

	// Token persistence
	DBPath       string `yaml:"db_path"       env:"PULSE_DB"`
	TokenBackend string `yaml:"token_backend" env:"PULSE_TOKEN_BACKEND"`
	RedisURL     string `yaml:"redis_url"     env:"REDIS_URL"`

	// Outgoing request pacing; 0 disables it
	RateLimitRPS   float64 `yaml:"rate_limit_rps"   env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	Verbose     bool   `yaml:"verbose"     env:"PULSE_VERBOSE"`
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		APIBaseURL:     "http://localhost:3001/api",
		Host:           "127.0.0.1",
		Port:           8787,
		DBPath:         "pulse.db",
		TokenBackend:   BackendSQLite,
		RateLimitBurst: 5,
		Environment:    "development",
	}
}

// Load applies defaults, then the YAML file named by PULSE_CONFIG (if set),
// then the environment.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	// Unset variables leave the field as is.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate rejects combinations the client cannot start with.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("config: api base URL is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	switch c.TokenBackend {
	case BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL is required for the redis token backend")
		}
	default:
		return fmt.Errorf("config: unknown token backend %q", c.TokenBackend)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("config: rate limit must not be negative")
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
