// Package cache provides the key/value stores used for action response caching.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrProviderNotFound = errors.New("cache: provider not found")
)

// Cache is a key/value store with per-entry expiry.
type Cache interface {
	// Get returns the stored value and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Key describes a cache key. Exactly one of Key, UniqueID or Hash is used,
// in that order of preference.
type Key struct {
	Prefix         string
	SpecificPrefix string
	UniqueID       string
	Hash           string
	Key            string
}

// BuildKey renders k under namespace. Empty parts are skipped and the rest
// joined with underscores; Hash is replaced by its md5 hex digest.
func BuildKey(namespace string, k Key) string {
	var id string
	switch {
	case k.Key != "":
		id = k.Key
	case k.UniqueID != "":
		id = k.UniqueID
	case k.Hash != "":
		sum := md5.Sum([]byte(k.Hash))
		id = hex.EncodeToString(sum[:])
	}

	parts := make([]string, 0, 4)
	for _, p := range []string{namespace, k.Prefix, k.SpecificPrefix, id} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "_")
}

// Registry maps provider names to caches.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Cache
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Cache)}
}

// Register adds or replaces the provider called name.
func (r *Registry) Register(name string, c Cache) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = c
}

// Provider returns the provider called name.
func (r *Registry) Provider(name string) (Cache, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return c, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
