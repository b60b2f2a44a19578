// Package testutil provides test doubles and helpers for dataimport tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/dataimport/internal/event"
	"github.com/Iron-Ham/dataimport/internal/loader"
	"github.com/Iron-Ham/dataimport/internal/module"
	"github.com/Iron-Ham/dataimport/internal/request"
)

// Nodes builds a request group of placed nodes from IDs. All nodes sit at
// offset zero.
func Nodes(ids ...string) request.Group {
	g := make(request.Group, len(ids))
	for i, id := range ids {
		g[i] = &request.Node{ID: id}
	}
	return g
}

// WriteManifest writes content to a manifest file in a temporary directory
// and returns its path. The directory is removed when the test completes.
func WriteManifest(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}

// Eventually polls cond until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v: %s", timeout, msg)
		}
		time.Sleep(time.Millisecond)
	}
}

// -----------------------------------------------------------------------------
// Loader
// -----------------------------------------------------------------------------

// Outcome scripts the result of loading one path.
type Outcome struct {
	Module module.Module
	Err    error
	Panic  any
	// Block, when non-nil, holds the load until it is closed or the load's
	// context is canceled.
	Block chan struct{}
}

// ScriptedLoader is a loader.Loader serving scripted outcomes by path.
// Unscripted paths fail with errors.ErrModuleNotFound via a loader.Registry.
type ScriptedLoader struct {
	mu       sync.Mutex
	outcomes map[string]Outcome
	calls    map[string]int
	uris     []string
	fallback *loader.Registry
}

// NewScriptedLoader creates an empty ScriptedLoader.
func NewScriptedLoader() *ScriptedLoader {
	return &ScriptedLoader{
		outcomes: make(map[string]Outcome),
		calls:    make(map[string]int),
		fallback: loader.NewRegistry(),
	}
}

// Script sets the outcome for path. Query strings are ignored.
func (l *ScriptedLoader) Script(path string, o Outcome) *ScriptedLoader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes[loader.StripQuery(path)] = o
	return l
}

// Serve scripts path to succeed with mod.
func (l *ScriptedLoader) Serve(path string, mod module.Module) *ScriptedLoader {
	return l.Script(path, Outcome{Module: mod})
}

// Hold scripts path to succeed with mod once the returned release function
// is called.
func (l *ScriptedLoader) Hold(path string, mod module.Module) (release func()) {
	block := make(chan struct{})
	l.Script(path, Outcome{Module: mod, Block: block})
	var once sync.Once
	return func() { once.Do(func() { close(block) }) }
}

// Load implements loader.Loader.
func (l *ScriptedLoader) Load(ctx context.Context, uri string) (module.Module, error) {
	path := loader.StripQuery(uri)

	l.mu.Lock()
	l.calls[path]++
	l.uris = append(l.uris, uri)
	o, ok := l.outcomes[path]
	l.mu.Unlock()

	if !ok {
		return l.fallback.Load(ctx, uri)
	}
	if o.Block != nil {
		select {
		case <-o.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if o.Panic != nil {
		panic(o.Panic)
	}
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Module, nil
}

// Calls returns how many loads were issued for path.
func (l *ScriptedLoader) Calls(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[loader.StripQuery(path)]
}

// URIs returns every requested URI in call order.
func (l *ScriptedLoader) URIs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.uris...)
}

// -----------------------------------------------------------------------------
// Modules
// -----------------------------------------------------------------------------

// RecordingModule is a module that records Init calls.
type RecordingModule struct {
	Name  string
	Err   error // Returned from Init
	Panic any   // Raised from Init when non-nil

	mu    sync.Mutex
	calls [][]request.Element
}

// ModuleName implements module.Named.
func (m *RecordingModule) ModuleName() string { return m.Name }

// Init implements module.Initializer.
func (m *RecordingModule) Init(_ context.Context, elements []request.Element) error {
	m.mu.Lock()
	m.calls = append(m.calls, elements)
	m.mu.Unlock()

	if m.Panic != nil {
		panic(m.Panic)
	}
	return m.Err
}

// Calls returns how many times Init ran.
func (m *RecordingModule) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Elements returns the element IDs passed to the nth Init call.
func (m *RecordingModule) Elements(n int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n >= len(m.calls) {
		return nil
	}
	return request.Group(m.calls[n]).IDs()
}

// -----------------------------------------------------------------------------
// Visibility
// -----------------------------------------------------------------------------

// Visibility records visibility watches and fires them on demand.
type Visibility struct {
	mu      sync.Mutex
	armed   map[string]int
	watches map[string][]func()
}

// NewVisibility creates a Visibility with nothing visible.
func NewVisibility() *Visibility {
	return &Visibility{
		armed:   make(map[string]int),
		watches: make(map[string][]func()),
	}
}

// IsVisible records a one-shot watch for el.
func (v *Visibility) IsVisible(el request.Element, onVisible func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := el.ElementID()
	v.armed[id]++
	v.watches[id] = append(v.watches[id], onVisible)
}

// Reveal fires and clears every pending watch on the element with id,
// returning how many fired.
func (v *Visibility) Reveal(id string) int {
	v.mu.Lock()
	fns := v.watches[id]
	delete(v.watches, id)
	v.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Armed returns how many watches were ever registered for id.
func (v *Visibility) Armed(id string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.armed[id]
}

// Pending returns the number of unfired watches across all elements.
func (v *Visibility) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, fns := range v.watches {
		n += len(fns)
	}
	return n
}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

// Recorder collects every event published on a bus.
type Recorder struct {
	mu     sync.Mutex
	events []event.Event
}

// Record subscribes a Recorder to all events on bus.
func Record(bus *event.Bus) *Recorder {
	r := &Recorder{}
	bus.SubscribeAll(func(e event.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// Count returns how many events of eventType were recorded.
func (r *Recorder) Count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}
