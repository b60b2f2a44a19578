// Package loader defines the host's module loading primitive and a
// path-keyed registry implementing it.
package loader

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/Iron-Ham/dataimport/internal/errors"
	"github.com/Iron-Ham/dataimport/internal/module"
)

// Loader loads the module at a resolved URI. Implementations decide their
// own caching and may honor ctx cancellation.
type Loader interface {
	Load(ctx context.Context, uri string) (module.Module, error)
}

// Func adapts a function to the Loader interface.
type Func func(ctx context.Context, uri string) (module.Module, error)

// Load implements Loader.
func (f Func) Load(ctx context.Context, uri string) (module.Module, error) {
	return f(ctx, uri)
}

// Safe calls l.Load, converting a panic into an error wrapping
// errors.ErrLoaderPanicked.
func Safe(ctx context.Context, l Loader, uri string) (mod module.Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			mod = nil
			err = fmt.Errorf("%w: %v\n%s", errors.ErrLoaderPanicked, r, debug.Stack())
		}
	}()
	return l.Load(ctx, uri)
}

// Factory produces a module for a registered path.
type Factory func(ctx context.Context) (module.Module, error)

// Registry serves modules registered under URI paths. The query string and
// fragment of a requested URI are ignored when looking up its path.
// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	loads     map[string]int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		loads:     make(map[string]int),
	}
}

// Register binds a factory to a path, replacing any previous binding.
func (r *Registry) Register(path string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[StripQuery(path)] = factory
}

// RegisterModule binds a fixed module value to a path.
func (r *Registry) RegisterModule(path string, mod module.Module) {
	r.Register(path, func(context.Context) (module.Module, error) {
		return mod, nil
	})
}

// Load implements Loader. An unregistered path fails with
// errors.ErrModuleNotFound.
func (r *Registry) Load(ctx context.Context, uri string) (module.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := StripQuery(uri)
	r.mu.Lock()
	factory, ok := r.factories[path]
	if ok {
		r.loads[path]++
	}
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrModuleNotFound, path)
	}
	return factory(ctx)
}

// Loads returns how many times path has been loaded.
func (r *Registry) Loads(path string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loads[StripQuery(path)]
}

// Paths returns the registered paths in sorted order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.factories))
	for p := range r.factories {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// StripQuery removes the query string and fragment from uri.
func StripQuery(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		return uri[:i]
	}
	return uri
}
