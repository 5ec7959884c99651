// Package action binds request shapes to module handlers.
//
// An Action is a definition created once at mapping time: which module method
// answers a request, whether its outcome is cached, and whether declines are
// slowed down to frustrate brute force attempts. Running an action goes
// through a fixed sequence:
//
//  1. Cache check (cached actions only). A hit restores the stored outcome and
//     response; the handler is not invoked.
//  2. The target module is loaded and the security pre-check runs (CSRF when
//     the request asks for it, then the optional Guard). A failing pre-check
//     declines without invoking the handler.
//  3. The handler is invoked.
//  4. Accepted and declined outcomes are stored in the cache. Errors are not.
//  5. Declined outcomes of brute force sensitive actions sleep for a random
//     whole number of seconds within the configured bounds.
package action

import (
	"errors"
	"fmt"
	"time"

	"github.com/wangfeng/cherrycake-gateway/pkg/cache"
	"github.com/wangfeng/cherrycake-gateway/pkg/request"
)

var (
	// ErrInvalidAction indicates an action definition missing required fields.
	ErrInvalidAction = errors.New("action: invalid definition")
)

// ModuleKind tells the loader where to find the target module.
type ModuleKind uint8

const (
	// ModuleFramework modules ship with the server.
	ModuleFramework ModuleKind = iota
	// ModuleApp modules belong to the application.
	ModuleApp
)

// String returns a string representation of the kind.
func (k ModuleKind) String() string {
	switch k {
	case ModuleFramework:
		return "framework"
	case ModuleApp:
		return "app"
	default:
		return "unknown"
	}
}

// CacheConfig controls response caching for an action.
type CacheConfig struct {
	Enabled  bool
	Provider string
	Prefix   string
	TTL      time.Duration
}

// Action binds a request shape to a module method.
type Action struct {
	ModuleKind            ModuleKind
	ModuleName            string
	MethodName            string
	Request               *request.Request
	Cache                 CacheConfig
	SensitiveToBruteForce bool
}

// Validate checks that the action names a handler and a request.
func (a *Action) Validate() error {
	switch {
	case a == nil:
		return fmt.Errorf("%w: nil action", ErrInvalidAction)
	case a.ModuleName == "":
		return fmt.Errorf("%w: no module name", ErrInvalidAction)
	case a.MethodName == "":
		return fmt.Errorf("%w: no method name", ErrInvalidAction)
	case a.Request == nil:
		return fmt.Errorf("%w: no request", ErrInvalidAction)
	}
	return nil
}

// ApplyDefaults fills the provider, prefix and ttl of a cached action that
// left them empty. Uncached actions are left untouched.
func (a *Action) ApplyDefaults(defaults CacheConfig) {
	if !a.Cache.Enabled {
		return
	}
	if a.Cache.Provider == "" {
		a.Cache.Provider = defaults.Provider
	}
	if a.Cache.Prefix == "" {
		a.Cache.Prefix = defaults.Prefix
	}
	if a.Cache.TTL <= 0 {
		a.Cache.TTL = defaults.TTL
	}
}

// Target returns "module.method".
func (a *Action) Target() string {
	return a.ModuleName + "." + a.MethodName
}

// CacheKey returns the key this action's outcome is stored under for values.
func (a *Action) CacheKey(namespace string, values map[string]string) string {
	return cache.BuildKey(namespace, cache.Key{
		Prefix:         a.Cache.Prefix,
		SpecificPrefix: a.Target(),
		Hash:           a.Request.CacheKey(values),
	})
}
