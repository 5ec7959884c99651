// Package status is the framework module answering health and version checks.
package status

import (
	"context"
	"net/http"
	"time"

	"github.com/wangfeng/cherrycake-gateway/pkg/action"
	"github.com/wangfeng/cherrycake-gateway/pkg/module"
	"github.com/wangfeng/cherrycake-gateway/pkg/request"
)

const Name = "Status"

// Checker reports whether a dependency is healthy.
type Checker interface {
	PingContext(ctx context.Context) error
}

// CheckFunc adapts a function to the Checker interface.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Module answers /health and /version.
type Module struct {
	version string
	started time.Time
	checks  map[string]Checker
	now     func() time.Time
}

// New creates the status module. Checks are run on every health request.
func New(version string, checks map[string]Checker) *Module {
	return &Module{version: version, checks: checks, now: time.Now}
}

func (m *Module) Name() string            { return Name }
func (m *Module) Kind() action.ModuleKind { return action.ModuleFramework }

func (m *Module) Init(context.Context) error {
	m.started = m.now()
	return nil
}

func (m *Module) Methods() map[string]action.HandlerFunc {
	return map[string]action.HandlerFunc{
		"health":  m.health,
		"version": m.versionInfo,
	}
}

func (m *Module) MapActions(mp module.Mapper) error {
	if err := mp.MapAction("health", &action.Action{
		ModuleKind: action.ModuleFramework,
		ModuleName: Name,
		MethodName: "health",
		Request: request.MustNew(request.Config{
			Path:        []request.PathComponent{request.Fixed("health")},
			Description: "Health check",
		}),
	}); err != nil {
		return err
	}
	return mp.MapAction("version", &action.Action{
		ModuleKind: action.ModuleFramework,
		ModuleName: Name,
		MethodName: "version",
		Request: request.MustNew(request.Config{
			Path:        []request.PathComponent{request.Fixed("version")},
			Description: "Server version",
		}),
	})
}

func (m *Module) health(ctx context.Context, call *action.Call) action.Outcome {
	code := http.StatusOK
	state := "UP"
	deps := make(map[string]string, len(m.checks))
	for name, c := range m.checks {
		if err := c.PingContext(ctx); err != nil {
			deps[name] = err.Error()
			code = http.StatusServiceUnavailable
			state = "DOWN"
			continue
		}
		deps[name] = "UP"
	}

	if err := call.RespondJSON(code, map[string]any{
		"status":       state,
		"time":         m.now().Format(time.RFC3339),
		"dependencies": deps,
	}); err != nil {
		return action.Error(err)
	}
	return action.Accepted()
}

func (m *Module) versionInfo(_ context.Context, call *action.Call) action.Outcome {
	if err := call.RespondJSON(http.StatusOK, map[string]string{
		"name":    "Cherrycake Gateway",
		"version": m.version,
		"uptime":  m.now().Sub(m.started).Truncate(time.Second).String(),
	}); err != nil {
		return action.Error(err)
	}
	return action.Accepted()
}
