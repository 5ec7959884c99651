package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path over the defaults, then applies
// CHERRYCAKE_ environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("config unmarshal: %w", err)
		}
	}
	applyProviderDefaults(&c)
	applyEnvOverrides(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyProviderDefaults purges postgres providers every five minutes unless
// the file sets an interval.
func applyProviderDefaults(c *Config) {
	for name, p := range c.Cache.Providers {
		if p.Type == ProviderPostgres && p.SweepSeconds == 0 {
			p.SweepSeconds = DefaultPostgresSweepSeconds
			c.Cache.Providers[name] = p
		}
	}
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("CHERRYCAKE_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("CHERRYCAKE_GIN_MODE"); v != "" {
		c.Server.Mode = v
	}
	if v := os.Getenv("CHERRYCAKE_LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv("CHERRYCAKE_CACHE_NAMESPACE"); v != "" {
		c.Cache.Namespace = v
	}
	if v := os.Getenv("CHERRYCAKE_BRUTE_FORCE_MIN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Actions.BruteForceMinSeconds = n
		}
	}
	if v := os.Getenv("CHERRYCAKE_BRUTE_FORCE_MAX_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Actions.BruteForceMaxSeconds = n
		}
	}
	if v := os.Getenv("CHERRYCAKE_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("CHERRYCAKE_DB_PORT"); v != "" {
		c.Database.Port = v
	}
	if v := os.Getenv("CHERRYCAKE_DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("CHERRYCAKE_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("CHERRYCAKE_DB_NAME"); v != "" {
		c.Database.Database = v
	}
	if v := os.Getenv("CHERRYCAKE_REDIS_ADDR"); v != "" {
		for name, p := range c.Cache.Providers {
			if p.Type == ProviderRedis {
				p.Addr = v
				c.Cache.Providers[name] = p
			}
		}
	}
	if v := os.Getenv("CHERRYCAKE_PRODUCTS_BACKEND"); v != "" {
		c.Products.Backend = strings.ToLower(v)
	}
}
