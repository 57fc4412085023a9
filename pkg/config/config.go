// Package config loads and validates the syncd YAML configuration. Secrets
// (remote auth token, Postgres DSN) may also come from the environment, with
// a .env file picked up when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Remote store kinds.
const (
	RemoteKindHTTP     = "http"
	RemoteKindPostgres = "postgres"
)

// Config holds the full application configuration.
type Config struct {
	// CachePath is the SQLite file backing the local cache.
	// Defaults to ~/.local/share/loci-offline-sync/cache.db.
	CachePath string `yaml:"cache_path"`

	Remote  RemoteConfig  `yaml:"remote"`
	Refresh RefreshConfig `yaml:"refresh"`
	Server  ServerConfig  `yaml:"server"`
}

// RemoteConfig selects and configures the document store adapter.
type RemoteConfig struct {
	// Kind is "http" (REST document API) or "postgres" (JSONB documents
	// table, server-side deployments).
	Kind string `yaml:"kind"`

	// BaseURL is the document API root, e.g. "https://store.example.com".
	// Required for kind "http".
	BaseURL string `yaml:"base_url"`

	// AuthToken is the bearer token for the document API. Overridable via
	// LOCI_SYNC_AUTH_TOKEN.
	AuthToken string `yaml:"auth_token"`

	// DSN is the Postgres connection string. Required for kind "postgres".
	// Overridable via LOCI_SYNC_DSN.
	DSN string `yaml:"dsn"`

	// Timeout bounds one remote round trip. Defaults to 15s.
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerSecond throttles outgoing remote calls; 0 disables.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// MaxRetries bounds transport retries on transient remote failures.
	MaxRetries uint64 `yaml:"max_retries"`
}

// RefreshConfig tunes the sync cadence.
type RefreshConfig struct {
	// Interval is the period of the background full refresh; 0 disables
	// the background loop (refreshes happen only on demand).
	Interval time.Duration `yaml:"interval"`

	// MinInterval short-circuits a scope refresh that succeeded within the
	// window. 0 disables the guard.
	MinInterval time.Duration `yaml:"min_interval"`
}

// ServerConfig configures the ops HTTP surface.
type ServerConfig struct {
	// Addr is the listen address. Defaults to ":8080".
	Addr string `yaml:"addr"`

	RateLimitPerSecond int `yaml:"rate_limit_per_second"`
	RateLimitBurst     int `yaml:"rate_limit_burst"`

	// CORSOrigins lists allowed origins; empty allows none.
	CORSOrigins []string `yaml:"cors_origins"`
}

// DefaultPath returns the default config file path:
// ~/.config/loci-offline-sync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "loci-offline-sync", "config.yaml"), nil
}

// Load reads, overrides, and validates the configuration at path.
func Load(path string) (*Config, error) {
	// Best effort; secrets may come from the real environment instead.
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if token := os.Getenv("LOCI_SYNC_AUTH_TOKEN"); token != "" {
		cfg.Remote.AuthToken = token
	}
	if dsn := os.Getenv("LOCI_SYNC_DSN"); dsn != "" {
		cfg.Remote.DSN = dsn
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CachePath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.CachePath = filepath.Join(home, ".local", "share", "loci-offline-sync", "cache.db")
		}
	}
	if c.Remote.Kind == "" {
		c.Remote.Kind = RemoteKindHTTP
	}
	if c.Remote.Timeout <= 0 {
		c.Remote.Timeout = 15 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

func (c *Config) validate() error {
	switch c.Remote.Kind {
	case RemoteKindHTTP:
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("remote.base_url is required for remote.kind %q", RemoteKindHTTP)
		}
	case RemoteKindPostgres:
		if c.Remote.DSN == "" {
			return fmt.Errorf("remote.dsn is required for remote.kind %q", RemoteKindPostgres)
		}
	default:
		return fmt.Errorf("unknown remote.kind %q", c.Remote.Kind)
	}

	if c.Refresh.Interval < 0 || c.Refresh.MinInterval < 0 {
		return fmt.Errorf("refresh intervals must not be negative")
	}
	if c.Refresh.Interval > 0 && c.Refresh.Interval < 10*time.Second {
		return fmt.Errorf("refresh.interval %s is below the 10s minimum", c.Refresh.Interval)
	}
	return nil
}
