package action

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/wangfeng/cherrycake-gateway/pkg/cache"
	"github.com/wangfeng/cherrycake-gateway/pkg/metrics"
)

// CacheResolver finds a cache provider by name.
type CacheResolver interface {
	Provider(name string) (cache.Cache, error)
}

// Loader resolves the handler for a module method, loading the module first
// if needed.
type Loader interface {
	Resolve(ctx context.Context, kind ModuleKind, module, method string) (HandlerFunc, error)
}

// CSRFVerifier checks the CSRF token of an HTTP request.
type CSRFVerifier interface {
	Verify(r *http.Request) error
}

// Guard is an additional pre-check run before every handler.
type Guard interface {
	Precheck(ctx context.Context, call *Call) error
}

// GuardFunc adapts a function to the Guard interface.
type GuardFunc func(ctx context.Context, call *Call) error

// Precheck calls f.
func (f GuardFunc) Precheck(ctx context.Context, call *Call) error {
	return f(ctx, call)
}

// BruteForce holds the bounds of the delay applied to declined sensitive actions.
type BruteForce struct {
	MinSeconds int
	MaxSeconds int
}

// Delay draws a whole number of seconds uniformly from [MinSeconds, MaxSeconds]
// using intN, which must return a value in [0, n).
func (b BruteForce) Delay(intN func(n int) int) time.Duration {
	lo, hi := b.MinSeconds, b.MaxSeconds
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}
	return time.Duration(lo+intN(hi-lo+1)) * time.Second
}

// Runtime carries the collaborators an action needs to run. It is built once
// and shared by all dispatches.
type Runtime struct {
	// Namespace prefixes every cache key.
	Namespace string
	Caches    CacheResolver
	Loader    Loader
	CSRF      CSRFVerifier
	Guard     Guard

	BruteForce BruteForce
	// Sleep blocks the calling goroutine. Defaults to time.Sleep.
	Sleep func(time.Duration)
	// IntN returns a random int in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int

	// RecoverPanics turns a handler panic into an error outcome.
	RecoverPanics bool

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

func (rt *Runtime) logger() *slog.Logger {
	if rt.Logger != nil {
		return rt.Logger
	}
	return slog.Default()
}

func (rt *Runtime) sleep(d time.Duration) {
	if rt.Sleep != nil {
		rt.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (rt *Runtime) intN(n int) int {
	if rt.IntN != nil {
		return rt.IntN(n)
	}
	return rand.IntN(n)
}
