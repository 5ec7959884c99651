// Package module loads the modules actions are dispatched to.
package module

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/wangfeng/cherrycake-gateway/pkg/action"
)

var (
	// ErrModuleNotFound indicates no module is registered under the name.
	ErrModuleNotFound = errors.New("module: not found")

	// ErrMethodNotFound indicates the module has no such method.
	ErrMethodNotFound = errors.New("module: method not found")

	// ErrDuplicateModule indicates a module name was registered twice.
	ErrDuplicateModule = errors.New("module: already registered")
)

// Module is a unit of handlers addressed by actions.
type Module interface {
	Name() string
	Kind() action.ModuleKind
	// Init prepares the module. It is called once, on first use.
	Init(ctx context.Context) error
	Methods() map[string]action.HandlerFunc
}

// Mapper receives the actions a module maps.
type Mapper interface {
	MapAction(name string, a *action.Action) error
}

// ActionMapper is implemented by modules that map their own actions.
type ActionMapper interface {
	MapActions(m Mapper) error
}

type entry struct {
	module  Module
	once    sync.Once
	initErr error
}

// Loader keeps registered modules and initializes them lazily.
type Loader struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	logger  *slog.Logger
}

// NewLoader creates a new module loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

func key(kind action.ModuleKind, name string) string {
	return kind.String() + "/" + name
}

// Register adds modules to the loader.
func (l *Loader) Register(modules ...Module) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range modules {
		k := key(m.Kind(), m.Name())
		if _, exists := l.entries[k]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateModule, k)
		}
		l.entries[k] = &entry{module: m}
		l.order = append(l.order, k)
	}
	return nil
}

// Resolve returns the handler for module.method, initializing the module on
// first use. A module whose Init failed stays failed.
func (l *Loader) Resolve(ctx context.Context, kind action.ModuleKind, name, method string) (action.HandlerFunc, error) {
	l.mu.RLock()
	e, ok := l.entries[key(kind, name)]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s module %q", ErrModuleNotFound, kind, name)
	}

	e.once.Do(func() {
		l.logger.DebugContext(ctx, "Loading module", slog.String("module", name), slog.String("kind", kind.String()))
		e.initErr = e.module.Init(ctx)
	})
	if e.initErr != nil {
		return nil, fmt.Errorf("init %s: %w", name, e.initErr)
	}

	h, ok := e.module.Methods()[method]
	if !ok || h == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrMethodNotFound, name, method)
	}
	return h, nil
}

// MapAll lets every module that implements ActionMapper map its actions, in
// registration order.
func (l *Loader) MapAll(m Mapper) error {
	for _, mod := range l.Modules() {
		mapper, ok := mod.(ActionMapper)
		if !ok {
			continue
		}
		if err := mapper.MapActions(m); err != nil {
			return fmt.Errorf("map actions of %s: %w", mod.Name(), err)
		}
	}
	return nil
}

// Modules returns the registered modules in registration order.
func (l *Loader) Modules() []Module {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Module, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, l.entries[k].module)
	}
	return out
}

// Names returns the registered module keys, sorted.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := append([]string(nil), l.order...)
	sort.Strings(names)
	return names
}
