// Package module defines the contract between the import orchestrator and the
// values a host loader yields.
//
// A loaded module is an opaque value. The orchestrator discovers its optional
// capabilities by interface assertion:
//
//   - [Named]: a human-readable name used in notifications
//   - [Initializer]: a hook receiving the elements that requested the module
//
// Modules implementing neither are valid; they are loaded and reported but
// never initialized.
package module

import (
	"context"
	"strings"

	"github.com/Iron-Ham/dataimport/internal/request"
)

// Module is the value produced by a successful load.
type Module any

// Named is implemented by modules that export a display name.
type Named interface {
	ModuleName() string
}

// Initializer is implemented by modules exposing an initialization hook.
// Init is called at most once per load with every element that requested
// the module.
type Initializer interface {
	Init(ctx context.Context, elements []request.Element) error
}

// InitFunc adapts a function to the Init hook signature.
type InitFunc func(ctx context.Context, elements []request.Element) error

// New builds a module from a name and an optional hook. A nil hook yields a
// module that implements Named only.
func New(name string, init InitFunc) Module {
	if init == nil {
		return &named{name: name}
	}
	return &hooked{named: named{name: name}, init: init}
}

type named struct {
	name string
}

func (m *named) ModuleName() string { return m.name }

type hooked struct {
	named
	init InitFunc
}

func (m *hooked) Init(ctx context.Context, elements []request.Element) error {
	return m.init(ctx, elements)
}

// DisplayName returns the module's exported name when it has a non-empty one,
// otherwise the final path segment of key with any query or fragment removed.
// A ModuleName that panics counts as empty.
func DisplayName(mod Module, key request.Key) string {
	if n, ok := mod.(Named); ok {
		if name := exportedName(n); name != "" {
			return name
		}
	}
	return SegmentName(key)
}

func exportedName(n Named) (name string) {
	defer func() {
		if recover() != nil {
			name = ""
		}
	}()
	return n.ModuleName()
}

// SegmentName returns the final path segment of key with any query or
// fragment removed.
func SegmentName(key request.Key) string {
	s := string(key)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return s
}
