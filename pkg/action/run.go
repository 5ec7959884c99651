package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/wangfeng/cherrycake-gateway/pkg/cache"
	"github.com/wangfeng/cherrycake-gateway/pkg/output"
)

var (
	// ErrHandlerPanic indicates the handler panicked.
	ErrHandlerPanic = errors.New("action: handler panic")

	// ErrPrecheck indicates the security pre-check failed.
	ErrPrecheck = errors.New("action: security pre-check failed")

	// ErrNoLoader indicates the runtime has no module loader.
	ErrNoLoader = errors.New("action: no module loader")
)

// cachedOutcome is the stored form of an outcome.
type cachedOutcome struct {
	Accepted bool             `json:"accepted"`
	Response *output.Response `json:"response,omitempty"`
}

// Run executes the action for one dispatch.
func (a *Action) Run(ctx context.Context, rt *Runtime, call *Call) Outcome {
	log := rt.logger().With(slog.String("dispatch_id", call.ID), slog.String("action", call.Action))

	var (
		store cache.Cache
		key   string
	)
	if a.Cache.Enabled {
		store, key = a.cacheStore(rt, call, log)
		if store != nil {
			if out, ok := a.lookup(ctx, rt, store, key, call, log); ok {
				return out
			}
		}
	}

	if rt.Loader == nil {
		return Error(fmt.Errorf("resolve %s: %w", a.Target(), ErrNoLoader))
	}
	h, err := rt.Loader.Resolve(ctx, a.ModuleKind, a.ModuleName, a.MethodName)
	if err != nil {
		return Error(fmt.Errorf("resolve %s: %w", a.Target(), err))
	}

	if err := a.precheck(ctx, rt, call); err != nil {
		log.DebugContext(ctx, "Pre-check failed", slog.String("error", err.Error()))
		return a.decline(ctx, rt, Declined(), log)
	}

	out := a.invoke(ctx, rt, h, call)
	if out.Response == nil {
		out.Response = call.Response
	}
	call.Response = out.Response

	if store != nil && out.Status != StatusError {
		a.store(ctx, store, key, out, log)
	}

	if out.Status == StatusDeclined {
		return a.decline(ctx, rt, out, log)
	}
	return out
}

// ResetCache deletes the cached outcome for values. It does nothing for
// uncached actions.
func (a *Action) ResetCache(ctx context.Context, rt *Runtime, values map[string]string) error {
	if !a.Cache.Enabled {
		return nil
	}
	store, err := rt.Caches.Provider(a.Cache.Provider)
	if err != nil {
		return err
	}
	return store.Delete(ctx, a.CacheKey(rt.Namespace, values))
}

func (a *Action) cacheStore(rt *Runtime, call *Call, log *slog.Logger) (cache.Cache, string) {
	if rt.Caches == nil {
		return nil, ""
	}
	store, err := rt.Caches.Provider(a.Cache.Provider)
	if err != nil {
		log.Warn("Cache provider unavailable", slog.String("provider", a.Cache.Provider), slog.String("error", err.Error()))
		return nil, ""
	}
	return store, a.CacheKey(rt.Namespace, call.Values.Map())
}

// lookup returns the cached outcome, if any. Backend and decoding failures
// count as misses.
func (a *Action) lookup(ctx context.Context, rt *Runtime, store cache.Cache, key string, call *Call, log *slog.Logger) (Outcome, bool) {
	data, found, err := store.Get(ctx, key)
	if err != nil {
		rt.Metrics.CacheLookup("error", call.Action)
		log.WarnContext(ctx, "Cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		return Outcome{}, false
	}
	if !found {
		rt.Metrics.CacheLookup("miss", call.Action)
		return Outcome{}, false
	}

	var stored cachedOutcome
	if err := json.Unmarshal(data, &stored); err != nil {
		rt.Metrics.CacheLookup("error", call.Action)
		log.WarnContext(ctx, "Cache entry unreadable", slog.String("key", key), slog.String("error", err.Error()))
		return Outcome{}, false
	}
	rt.Metrics.CacheLookup("hit", call.Action)

	call.Response = stored.Response
	out := Outcome{Status: StatusDeclined, Response: stored.Response, CacheHit: true}
	if stored.Accepted {
		out.Status = StatusAccepted
	}
	return out, true
}

func (a *Action) store(ctx context.Context, store cache.Cache, key string, out Outcome, log *slog.Logger) {
	data, err := json.Marshal(cachedOutcome{Accepted: out.Status == StatusAccepted, Response: out.Response})
	if err != nil {
		log.WarnContext(ctx, "Cache entry not encodable", slog.String("error", err.Error()))
		return
	}
	if err := store.Set(ctx, key, data, a.Cache.TTL); err != nil {
		log.WarnContext(ctx, "Cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (a *Action) precheck(ctx context.Context, rt *Runtime, call *Call) error {
	if a.Request.CSRF() {
		if rt.CSRF == nil {
			return fmt.Errorf("%w: no csrf verifier", ErrPrecheck)
		}
		if err := rt.CSRF.Verify(call.HTTP); err != nil {
			return fmt.Errorf("%w: %w", ErrPrecheck, err)
		}
	}
	if rt.Guard != nil {
		if err := rt.Guard.Precheck(ctx, call); err != nil {
			return fmt.Errorf("%w: %w", ErrPrecheck, err)
		}
	}
	return nil
}

func (a *Action) invoke(ctx context.Context, rt *Runtime, h HandlerFunc, call *Call) (out Outcome) {
	if !rt.RecoverPanics {
		return h(ctx, call)
	}
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			n := runtime.Stack(stack, false)
			rt.Metrics.Panic(call.Action)
			out = Error(fmt.Errorf("%w in %s: %v\n%s", ErrHandlerPanic, a.Target(), r, stack[:n]))
		}
	}()
	return h(ctx, call)
}

// decline applies the brute force delay when the action asks for it. The
// delay ignores ctx so a client cannot cut it short by disconnecting.
func (a *Action) decline(ctx context.Context, rt *Runtime, out Outcome, log *slog.Logger) Outcome {
	if !a.SensitiveToBruteForce {
		return out
	}
	d := rt.BruteForce.Delay(rt.intN)
	log.DebugContext(ctx, "Brute force delay", slog.Duration("delay", d))
	rt.Metrics.BruteForceDelay(d)
	rt.sleep(d)
	return out
}
