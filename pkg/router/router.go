// Package router holds the table of mapped actions and dispatches inbound
// URIs to them.
//
// Actions are tried in registration order. Every action whose request
// structurally matches the URI is a candidate; a candidate whose parameters
// fail their security rules is skipped, and a candidate whose handler declines
// hands over to the next one. The first accepted or failed run ends the
// dispatch. When no candidate accepts, the dispatch is not found.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wangfeng/cherrycake-gateway/pkg/action"
	"github.com/wangfeng/cherrycake-gateway/pkg/failure"
	"github.com/wangfeng/cherrycake-gateway/pkg/metrics"
	"github.com/wangfeng/cherrycake-gateway/pkg/request"
	"github.com/wangfeng/cherrycake-gateway/pkg/security"
)

var (
	// ErrActionNotFound indicates no action is mapped under the name.
	ErrActionNotFound = errors.New("router: action not found")

	// ErrEmptyName indicates an action was mapped without a name.
	ErrEmptyName = errors.New("router: empty action name")
)

// MappingError reports why an action could not be mapped.
type MappingError struct {
	Name string
	Err  error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("router: map action %q: %v", e.Name, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// Security filters and checks parameter values and validates rule and filter
// names at mapping time.
type Security interface {
	request.Security
	request.Validator
}

// Deps are the collaborators injected into the dispatcher.
type Deps struct {
	Caches   action.CacheResolver
	Loader   action.Loader
	Security Security
	CSRF     action.CSRFVerifier
	Guard    action.Guard
	Failures failure.Reporter
	Logger   *slog.Logger
	Metrics  *metrics.Collector

	// Sleep and IntN override the brute force delay clock and randomness.
	Sleep func(time.Duration)
	IntN  func(n int) int
}

// Actions is the registry and dispatcher of mapped actions.
type Actions struct {
	mu      sync.RWMutex
	actions map[string]*action.Action
	order   []string

	cfg      Config
	security Security
	failures failure.Reporter
	rt       *action.Runtime
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// New creates a new action dispatcher
func New(cfg Config, deps Deps) *Actions {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sec := deps.Security
	if sec == nil {
		sec = security.NewChecker()
	}
	failures := deps.Failures
	if failures == nil {
		failures = failure.NewJSONReporter(logger)
	}

	return &Actions{
		actions:  make(map[string]*action.Action),
		cfg:      cfg,
		security: sec,
		failures: failures,
		logger:   logger,
		metrics:  deps.Metrics,
		rt: &action.Runtime{
			Namespace: cfg.Namespace,
			Caches:    deps.Caches,
			Loader:    deps.Loader,
			CSRF:      deps.CSRF,
			Guard:     deps.Guard,
			BruteForce: action.BruteForce{
				MinSeconds: cfg.BruteForceMin,
				MaxSeconds: cfg.BruteForceMax,
			},
			Sleep:         deps.Sleep,
			IntN:          deps.IntN,
			RecoverPanics: cfg.RecoverFromPanic,
			Logger:        logger,
			Metrics:       deps.Metrics,
		},
	}
}

// MapAction registers a under name. Mapping a name again replaces the
// previous action but keeps its place in the dispatch order.
func (r *Actions) MapAction(name string, a *action.Action) error {
	if name == "" {
		return &MappingError{Name: name, Err: ErrEmptyName}
	}
	if err := a.Validate(); err != nil {
		return &MappingError{Name: name, Err: err}
	}
	if err := a.Request.Validate(r.security); err != nil {
		return &MappingError{Name: name, Err: err}
	}

	a.ApplyDefaults(action.CacheConfig{
		Provider: r.cfg.DefaultCacheProvider,
		Prefix:   r.cfg.DefaultCachePrefix,
		TTL:      r.cfg.DefaultCacheTTL,
	})
	if a.Cache.Enabled {
		if r.rt.Caches == nil {
			return &MappingError{Name: name, Err: errors.New("caching requested but no cache providers configured")}
		}
		if _, err := r.rt.Caches.Provider(a.Cache.Provider); err != nil {
			return &MappingError{Name: name, Err: err}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; !exists {
		r.order = append(r.order, name)
	} else {
		r.logger.Debug("Replacing mapped action", slog.String("action", name))
	}
	r.actions[name] = a
	return nil
}

// GetAction returns the action mapped under name.
func (r *Actions) GetAction(name string) (*action.Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, name)
	}
	return a, nil
}

// Names returns the mapped action names in registration order.
func (r *Actions) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Count returns the number of mapped actions.
func (r *Actions) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

type mapped struct {
	name   string
	action *action.Action
}

func (r *Actions) snapshot() []mapped {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]mapped, len(r.order))
	for i, name := range r.order {
		out[i] = mapped{name: name, action: r.actions[name]}
	}
	return out
}

// ResetCache removes the cached outcome of the named action for params.
// Params are filtered the same way dispatch filters them, so the key matches
// the one a dispatch with the same input would use.
func (r *Actions) ResetCache(ctx context.Context, name string, params map[string]string) error {
	a, err := r.GetAction(name)
	if err != nil {
		return err
	}

	values := make(map[string]string, len(params))
	for k, v := range params {
		if p, ok := a.Request.Parameter(k); ok {
			v = r.security.FilterValue(v, p.Filters)
		}
		values[k] = v
	}
	return a.ResetCache(ctx, r.rt, values)
}

// BuildURL renders a URL that dispatches to the named action.
func (r *Actions) BuildURL(name string, params map[string]string, opts request.URLOptions) (string, error) {
	a, err := r.GetAction(name)
	if err != nil {
		return "", err
	}
	return a.Request.BuildURL(params, opts)
}
