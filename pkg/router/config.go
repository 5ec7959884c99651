package router

import "time"

// Config holds dispatcher configuration options.
type Config struct {
	// Namespace prefixes every action cache key.
	Namespace string

	// DefaultCacheProvider is used by cached actions that name no provider.
	DefaultCacheProvider string

	// DefaultCachePrefix is used by cached actions that name no prefix.
	DefaultCachePrefix string

	// DefaultCacheTTL is used by cached actions with no ttl.
	DefaultCacheTTL time.Duration

	// BruteForceMin and BruteForceMax bound, in seconds, the delay applied
	// to declined actions that are sensitive to brute force.
	BruteForceMin int
	BruteForceMax int

	// RecoverFromPanic turns handler panics into error outcomes.
	RecoverFromPanic bool
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Namespace:            "cherrycake",
		DefaultCacheProvider: "fast",
		DefaultCachePrefix:   "Actions",
		DefaultCacheTTL:      10 * time.Minute,
		BruteForceMin:        0,
		BruteForceMax:        3,
		RecoverFromPanic:     true,
	}
}

// WithNamespace returns a copy of the config with the cache namespace set.
func (c Config) WithNamespace(namespace string) Config {
	c.Namespace = namespace
	return c
}

// WithCacheDefaults returns a copy of the config with the cache defaults set.
// Empty or zero arguments keep the current value.
func (c Config) WithCacheDefaults(provider, prefix string, ttl time.Duration) Config {
	if provider != "" {
		c.DefaultCacheProvider = provider
	}
	if prefix != "" {
		c.DefaultCachePrefix = prefix
	}
	if ttl > 0 {
		c.DefaultCacheTTL = ttl
	}
	return c
}

// WithBruteForce returns a copy of the config with the brute force delay
// bounds set.
func (c Config) WithBruteForce(minSeconds, maxSeconds int) Config {
	c.BruteForceMin = minSeconds
	c.BruteForceMax = maxSeconds
	return c
}

// WithPanicRecovery returns a copy of the config with panic recovery set.
func (c Config) WithPanicRecovery(recover bool) Config {
	c.RecoverFromPanic = recover
	return c
}
