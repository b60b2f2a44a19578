package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/Iron-Ham/dataimport/internal/loader"
	"github.com/Iron-Ham/dataimport/internal/module"
	"github.com/Iron-Ham/dataimport/internal/request"
)

// Built-in module behaviors a manifest entry can bind to.
const (
	builtinEcho    = "echo"    // Initializes successfully
	builtinSilent  = "silent"  // Loads with no initialization hook
	builtinBroken  = "broken"  // Initialization hook returns an error
	builtinPanic   = "panic"   // Initialization hook panics
	builtinMissing = "missing" // Never registered; the load fails
)

var builtins = map[string]loader.Factory{
	builtinEcho: func(context.Context) (module.Module, error) {
		return module.New("", func(ctx context.Context, elements []request.Element) error {
			return ctx.Err()
		}), nil
	},
	builtinSilent: func(context.Context) (module.Module, error) {
		return module.New("", nil), nil
	},
	builtinBroken: func(context.Context) (module.Module, error) {
		return module.New("", func(context.Context, []request.Element) error {
			return fmt.Errorf("initialization rejected")
		}), nil
	},
	builtinPanic: func(context.Context) (module.Module, error) {
		return module.New("", func(context.Context, []request.Element) error {
			panic("initialization panicked")
		}), nil
	},
}

// builtinNames returns every name a manifest may bind, sorted.
func builtinNames() []string {
	names := []string{builtinMissing}
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// uriResolver is the part of *resolve.Resolver the registry needs.
type uriResolver interface {
	Resolve(key request.Key) string
}

// buildRegistry registers a built-in module at the resolved path of every
// key in reqs. Keys without a binding get the echo module.
func buildRegistry(r uriResolver, reqs request.Requests, bindings map[request.Key]string) (*loader.Registry, error) {
	registry := loader.NewRegistry()
	for _, set := range []request.Set{reqs.Eager, reqs.Deferred} {
		for _, key := range set.Keys() {
			name := bindings[key]
			if name == "" {
				name = builtinEcho
			}
			if name == builtinMissing {
				continue
			}
			factory, ok := builtins[name]
			if !ok {
				return nil, fmt.Errorf("key %q binds unknown module %q (valid: %v)", key, name, builtinNames())
			}
			registry.Register(r.Resolve(key), factory)
		}
	}
	return registry, nil
}
