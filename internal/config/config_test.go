package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 10*time.Minute, cfg.Actions.DefaultCacheTTL())
	assert.Equal(t, 3, cfg.Actions.BruteForceMaxSeconds)
	assert.Equal(t, ProviderMemory, cfg.Cache.Providers["fast"].Type)
	assert.False(t, cfg.NeedsDatabase())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9090"
logger:
  level: DEBUG
actions:
  default_cache_provider: shared
  default_cache_ttl_seconds: 30
  brute_force_min_seconds: 1
  brute_force_max_seconds: 5
cache:
  namespace: shop
  providers:
    shared:
      type: redis
      addr: localhost:6379
    durable:
      type: postgres
      table: action_cache
products:
  backend: postgres
database:
  host: db.internal
  name: shop
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "DEBUG", cfg.Logger.Level)
	assert.Equal(t, "shared", cfg.Actions.DefaultCacheProvider)
	assert.Equal(t, 30*time.Second, cfg.Actions.DefaultCacheTTL())
	assert.Equal(t, "Actions", cfg.Actions.DefaultCachePrefix, "unset keys keep their default")
	assert.Equal(t, "shop", cfg.Cache.Namespace)
	assert.Equal(t, "localhost:6379", cfg.Cache.Providers["shared"].Addr)
	assert.Equal(t, DefaultPostgresSweepSeconds, cfg.Cache.Providers["durable"].SweepSeconds)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.True(t, cfg.NeedsDatabase())
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
cache:
  providers:
    shared:
      type: redis
      addr: localhost:6379
`)
	t.Setenv("CHERRYCAKE_ADDRESS", ":7000")
	t.Setenv("CHERRYCAKE_LOG_LEVEL", "ERROR")
	t.Setenv("CHERRYCAKE_REDIS_ADDR", "redis:6380")
	t.Setenv("CHERRYCAKE_DB_PASSWORD", "s3cret")
	t.Setenv("CHERRYCAKE_BRUTE_FORCE_MAX_SECONDS", "7")
	t.Setenv("CHERRYCAKE_BRUTE_FORCE_MIN_SECONDS", "not a number")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Address)
	assert.Equal(t, "ERROR", cfg.Logger.Level)
	assert.Equal(t, "redis:6380", cfg.Cache.Providers["shared"].Addr)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, 7, cfg.Actions.BruteForceMaxSeconds)
	assert.Equal(t, 0, cfg.Actions.BruteForceMinSeconds)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty address", func(c *Config) { c.Server.Address = "" }},
		{"bad level", func(c *Config) { c.Logger.Level = "LOUD" }},
		{"bad mode", func(c *Config) { c.Server.Mode = "loud" }},
		{"inverted brute force", func(c *Config) { c.Actions.BruteForceMinSeconds = 4 }},
		{"negative brute force", func(c *Config) { c.Actions.BruteForceMinSeconds = -1 }},
		{"zero ttl", func(c *Config) { c.Actions.DefaultCacheTTLSeconds = 0 }},
		{"missing default provider", func(c *Config) { c.Actions.DefaultCacheProvider = "nope" }},
		{"unknown provider type", func(c *Config) { c.Cache.Providers["x"] = ProviderConfig{Type: "memcached"} }},
		{"redis without addr", func(c *Config) { c.Cache.Providers["x"] = ProviderConfig{Type: ProviderRedis} }},
		{"postgres without table", func(c *Config) { c.Cache.Providers["x"] = ProviderConfig{Type: ProviderPostgres} }},
		{"unknown backend", func(c *Config) { c.Products.Backend = "mongo" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}

	c := Default()
	assert.NoError(t, c.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "products:\n  backend: mongo\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
