// Package config loads the server configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/wangfeng/cherrycake-gateway/internal/db"
	"github.com/wangfeng/cherrycake-gateway/internal/logger"
)

// Cache provider types.
const (
	ProviderMemory   = "memory"
	ProviderRedis    = "redis"
	ProviderPostgres = "postgres"
)

// DefaultPostgresSweepSeconds is the purge interval of postgres cache
// providers that do not set one.
const DefaultPostgresSweepSeconds = 300

// Product repository backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// ErrInvalidConfig indicates a configuration that cannot be served.
var ErrInvalidConfig = errors.New("config: invalid")

type ServerConfig struct {
	Address         string `yaml:"address"`
	Mode            string `yaml:"mode"`
	ShutdownSeconds int    `yaml:"shutdown_seconds"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
}

// ActionsConfig holds the defaults applied to mapped actions.
type ActionsConfig struct {
	DefaultCacheProvider   string `yaml:"default_cache_provider"`
	DefaultCachePrefix     string `yaml:"default_cache_prefix"`
	DefaultCacheTTLSeconds int    `yaml:"default_cache_ttl_seconds"`
	BruteForceMinSeconds   int    `yaml:"brute_force_min_seconds"`
	BruteForceMaxSeconds   int    `yaml:"brute_force_max_seconds"`
	RecoverPanics          bool   `yaml:"recover_panics"`
}

// DefaultCacheTTL returns the default ttl as a duration.
func (a ActionsConfig) DefaultCacheTTL() time.Duration {
	return time.Duration(a.DefaultCacheTTLSeconds) * time.Second
}

// ProviderConfig describes one named cache provider.
type ProviderConfig struct {
	Type string `yaml:"type"`

	// redis
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// postgres
	Table string `yaml:"table"`

	// memory and postgres: interval between purges of expired entries
	SweepSeconds int `yaml:"sweep_seconds"`
}

type CacheConfig struct {
	Namespace string                    `yaml:"namespace"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

type CSRFConfig struct {
	CookieName string `yaml:"cookie_name"`
	HeaderName string `yaml:"header_name"`
	FieldName  string `yaml:"field_name"`
	Secure     bool   `yaml:"secure"`
}

type ProductsConfig struct {
	Backend string `yaml:"backend"`
	Seed    bool   `yaml:"seed"`
}

// Config is the root of the configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logger   LoggerConfig   `yaml:"logger"`
	Actions  ActionsConfig  `yaml:"actions"`
	Cache    CacheConfig    `yaml:"cache"`
	CSRF     CSRFConfig     `yaml:"csrf"`
	Database db.Config      `yaml:"database"`
	Products ProductsConfig `yaml:"products"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			Mode:            "release",
			ShutdownSeconds: 10,
		},
		Logger: LoggerConfig{Level: "INFO"},
		Actions: ActionsConfig{
			DefaultCacheProvider:   "fast",
			DefaultCachePrefix:     "Actions",
			DefaultCacheTTLSeconds: 600,
			BruteForceMinSeconds:   0,
			BruteForceMaxSeconds:   3,
			RecoverPanics:          true,
		},
		Cache: CacheConfig{
			Namespace: "cherrycake",
			Providers: map[string]ProviderConfig{
				"fast": {Type: ProviderMemory, SweepSeconds: 60},
			},
		},
		CSRF: CSRFConfig{
			CookieName: "csrf_token",
			HeaderName: "X-CSRF-Token",
			FieldName:  "csrf_token",
		},
		Database: db.DefaultConfig(),
		Products: ProductsConfig{Backend: BackendMemory, Seed: true},
	}
}

// Validate reports the first setting that cannot be served.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("%w: empty server address", ErrInvalidConfig)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("%w: unknown server mode %q", ErrInvalidConfig, c.Server.Mode)
	}
	if _, err := logger.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("%w: logger: %v", ErrInvalidConfig, err)
	}

	a := c.Actions
	if a.BruteForceMinSeconds < 0 || a.BruteForceMaxSeconds < a.BruteForceMinSeconds {
		return fmt.Errorf("%w: brute force bounds [%d, %d]", ErrInvalidConfig, a.BruteForceMinSeconds, a.BruteForceMaxSeconds)
	}
	if a.DefaultCacheTTLSeconds <= 0 {
		return fmt.Errorf("%w: default cache ttl must be positive", ErrInvalidConfig)
	}
	if _, ok := c.Cache.Providers[a.DefaultCacheProvider]; !ok {
		return fmt.Errorf("%w: default cache provider %q is not configured", ErrInvalidConfig, a.DefaultCacheProvider)
	}

	for name, p := range c.Cache.Providers {
		switch p.Type {
		case ProviderMemory:
		case ProviderRedis:
			if p.Addr == "" {
				return fmt.Errorf("%w: redis provider %q has no addr", ErrInvalidConfig, name)
			}
		case ProviderPostgres:
			if p.Table == "" {
				return fmt.Errorf("%w: postgres provider %q has no table", ErrInvalidConfig, name)
			}
		default:
			return fmt.Errorf("%w: provider %q has unknown type %q", ErrInvalidConfig, name, p.Type)
		}
	}

	switch c.Products.Backend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("%w: unknown products backend %q", ErrInvalidConfig, c.Products.Backend)
	}
	return nil
}

// NeedsDatabase reports whether any component is backed by PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	if c.Products.Backend == BackendPostgres {
		return true
	}
	for _, p := range c.Cache.Providers {
		if p.Type == ProviderPostgres {
			return true
		}
	}
	return false
}
