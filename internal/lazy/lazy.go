// Package lazy defers module loads until a requesting element becomes
// visible.
//
// Each deferred key is tracked as a group with its own state:
//
//	Watching -> Loading -> Done
//	                    -> Failed
//	Watching -> Abandoned            (Close)
//
// The only way out of Watching is a single compare-and-swap, so a group is
// loaded at most once no matter how many of its elements report visible, or
// from how many goroutines. A failed group is never retried.
package lazy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/dataimport/internal/errors"
	"github.com/Iron-Ham/dataimport/internal/event"
	"github.com/Iron-Ham/dataimport/internal/initializer"
	"github.com/Iron-Ham/dataimport/internal/loader"
	"github.com/Iron-Ham/dataimport/internal/logging"
	"github.com/Iron-Ham/dataimport/internal/module"
	"github.com/Iron-Ham/dataimport/internal/request"
)

// State is the lifecycle state of a deferred group.
type State int32

// Group states.
const (
	StateWatching State = iota
	StateLoading
	StateDone
	StateFailed
	StateAbandoned
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateWatching:
		return "watching"
	case StateLoading:
		return "loading"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateAbandoned
}

// Visibility watches elements. onVisible must be called at most once per
// IsVisible call, when el is visible, possibly before IsVisible returns.
type Visibility interface {
	IsVisible(el request.Element, onVisible func())
}

// Watcher is a Visibility whose pending watches can be withdrawn. The
// scheduler keeps at most one outstanding watch per element of a Watcher and
// cancels them when the group leaves Watching. *viewport.Viewport implements
// it.
type Watcher interface {
	Visibility
	Watch(el request.Element, onVisible func()) (cancel func())
}

// Signals delivers viewport shift notifications. *event.Bus implements it.
type Signals interface {
	Subscribe(eventType string, handler event.Handler) string
	Unsubscribe(id string) bool
}

// Resolver maps keys to loadable URIs. *resolve.Resolver implements it.
type Resolver interface {
	Resolve(key request.Key) string
}

// Publisher receives lifecycle events. *event.Bus implements it.
type Publisher interface {
	Publish(e event.Event)
}

// Config holds the scheduler's dependencies.
type Config struct {
	Resolver    Resolver                 // Required
	Loader      loader.Loader            // Required
	Visibility  Visibility               // Required
	Signals     Signals                  // Optional; without it elements are armed once
	Initializer *initializer.Initializer // Defaults to one sharing Logger and Bus
	Bus         Publisher                // Optional
	Logger      *logging.Logger          // Defaults to a no-op logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithShiftEvent overrides the event type that re-arms watching groups.
func WithShiftEvent(eventType string) Option {
	return func(s *Scheduler) {
		s.shiftEvent = eventType
	}
}

type group struct {
	key      request.Key
	elements request.Group
	ctx      context.Context
	state    atomic.Int32

	// Guarded by Scheduler.mu.
	subID    string
	detached bool
	watches  map[int]*watchSlot // Outstanding Watcher registrations by element index
}

type watchSlot struct {
	cancel func()
}

func (g *group) current() State {
	return State(g.state.Load())
}

func (g *group) transition(from, to State) bool {
	return g.state.CompareAndSwap(int32(from), int32(to))
}

// Scheduler watches deferred groups and loads each on first visibility.
type Scheduler struct {
	resolver   Resolver
	loader     loader.Loader
	visibility Visibility
	signals    Signals
	init       *initializer.Initializer
	bus        Publisher
	logger     *logging.Logger
	shiftEvent string

	mu      sync.Mutex
	groups  map[request.Key]*group
	pending map[request.Key]*group
	closed  bool

	inflight conc.WaitGroup
}

// New creates a Scheduler.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("lazy: Resolver is required")
	}
	if cfg.Loader == nil {
		return nil, fmt.Errorf("lazy: Loader is required")
	}
	if cfg.Visibility == nil {
		return nil, fmt.Errorf("lazy: Visibility is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	if cfg.Initializer == nil {
		cfg.Initializer = initializer.New(cfg.Logger, cfg.Bus)
	}

	s := &Scheduler{
		resolver:   cfg.Resolver,
		loader:     cfg.Loader,
		visibility: cfg.Visibility,
		signals:    cfg.Signals,
		init:       cfg.Initializer,
		bus:        cfg.Bus,
		logger:     cfg.Logger,
		shiftEvent: event.TypeViewportShifted,
		groups:     make(map[request.Key]*group),
		pending:    make(map[request.Key]*group),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run starts watching every group of set. Elements already visible trigger
// their group's load before Run returns. ctx is passed to the loads.
func (s *Scheduler) Run(ctx context.Context, set request.Set) error {
	keys := set.Keys()
	added := make([]*group, 0, len(keys))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("lazy: scheduler is closed")
	}
	for _, key := range keys {
		if _, ok := s.groups[key]; ok {
			s.mu.Unlock()
			return errors.NewValidationError(errors.ErrInvalidRequest, "deferred", key, "key is already scheduled")
		}
	}
	for _, key := range keys {
		g := &group{key: key, elements: set[key], ctx: ctx, watches: make(map[int]*watchSlot)}
		s.groups[key] = g
		s.pending[key] = g
		added = append(added, g)
	}
	s.mu.Unlock()

	for _, g := range added {
		s.logger.WithKey(string(g.key)).WithMode(request.ModeLazy).Debug("watching module",
			"elements", g.elements.IDs(),
		)
		s.subscribe(g)
		s.arm(g)
	}
	return nil
}

// subscribe re-arms g on every viewport shift until g leaves Watching.
func (s *Scheduler) subscribe(g *group) {
	if s.signals == nil {
		return
	}
	id := s.signals.Subscribe(s.shiftEvent, func(event.Event) {
		s.arm(g)
	})

	s.mu.Lock()
	if g.detached {
		s.mu.Unlock()
		s.signals.Unsubscribe(id)
		return
	}
	g.subID = id
	s.mu.Unlock()
}

// detach removes g's shift subscription and withdraws its outstanding
// watches. It is safe to call more than once.
func (s *Scheduler) detach(g *group) {
	s.mu.Lock()
	id := g.subID
	g.subID = ""
	g.detached = true
	cancels := make([]func(), 0, len(g.watches))
	for _, slot := range g.watches {
		if slot.cancel != nil {
			cancels = append(cancels, slot.cancel)
		}
	}
	clear(g.watches)
	s.mu.Unlock()

	if id != "" && s.signals != nil {
		s.signals.Unsubscribe(id)
	}
	for _, cancel := range cancels {
		cancel()
	}
}

// arm registers a visibility watch for every element of a watching group.
// A plain Visibility is asked again on every call; a Watcher only for
// elements without an outstanding watch.
func (s *Scheduler) arm(g *group) {
	w, cancelable := s.visibility.(Watcher)
	for i, el := range g.elements {
		if g.current() != StateWatching {
			return
		}
		if cancelable {
			s.watch(w, g, i, el)
			continue
		}
		s.visibility.IsVisible(el, func() {
			s.trigger(g)
		})
	}
}

// watch registers element i of g with w unless a watch for it is already
// outstanding. The slot is reserved before calling w so concurrent arms
// cannot both register.
func (s *Scheduler) watch(w Watcher, g *group, i int, el request.Element) {
	slot := &watchSlot{}
	s.mu.Lock()
	if g.detached || g.watches[i] != nil {
		s.mu.Unlock()
		return
	}
	g.watches[i] = slot
	s.mu.Unlock()

	cancel := w.Watch(el, func() {
		s.mu.Lock()
		if g.watches[i] == slot {
			delete(g.watches, i)
		}
		s.mu.Unlock()
		s.trigger(g)
	})

	s.mu.Lock()
	if g.watches[i] == slot {
		slot.cancel = cancel
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	// Fired already, or g detached while w.Watch ran.
	cancel()
}

// trigger moves g from Watching to Loading and issues its load. Calls after
// the first are no-ops.
func (s *Scheduler) trigger(g *group) {
	if !g.transition(StateWatching, StateLoading) {
		return
	}

	s.mu.Lock()
	delete(s.pending, g.key)
	s.mu.Unlock()
	s.detach(g)

	s.inflight.Go(func() {
		s.load(g)
	})
}

func (s *Scheduler) load(g *group) {
	key := string(g.key)
	uri := s.resolver.Resolve(g.key)
	log := s.logger.WithKey(key).WithMode(request.ModeLazy)

	log.Info("loading module", "uri", uri, "elements", g.elements.IDs())
	s.publish(event.NewModuleLoadingEvent(key, uri, request.ModeLazy))

	mod, err := loader.Safe(g.ctx, s.loader, uri)
	if err != nil {
		loadErr := errors.NewLoadError(key, err).WithURI(uri)
		g.transition(StateLoading, StateFailed)
		log.Error("module load failed", "uri", uri, "error", loadErr)
		s.publish(event.NewModuleFailedEvent(key, uri, request.ModeLazy, loadErr))
		return
	}

	name := module.DisplayName(mod, g.key)
	log.Info("module loaded", "uri", uri, "module", name)
	s.publish(event.NewModuleLoadedEvent(key, uri, name, request.ModeLazy))

	_ = s.init.Initialize(g.ctx, mod, g.elements, initializer.Dispatch{
		Key:  g.key,
		Name: name,
		Mode: request.ModeLazy,
	})
	g.transition(StateLoading, StateDone)
}

// Wait blocks until every load triggered before the call has finished,
// including initialization.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

// Close abandons every group still watching and removes its subscription.
// Loads already in flight are not aborted. Run fails after Close.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	watching := make([]*group, 0, len(s.pending))
	for _, g := range s.pending {
		watching = append(watching, g)
	}
	clear(s.pending)
	s.mu.Unlock()

	sort.Slice(watching, func(i, j int) bool { return watching[i].key < watching[j].key })
	for _, g := range watching {
		if !g.transition(StateWatching, StateAbandoned) {
			continue
		}
		s.detach(g)
		s.logger.WithKey(string(g.key)).WithMode(request.ModeLazy).Debug("module abandoned")
		s.publish(event.NewModuleAbandonedEvent(string(g.key)))
	}
}

// State returns the state of key's group.
func (s *Scheduler) State(key request.Key) (State, bool) {
	s.mu.Lock()
	g, ok := s.groups[key]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}
	return g.current(), true
}

// States returns the state of every scheduled group.
func (s *Scheduler) States() map[request.Key]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[request.Key]State, len(s.groups))
	for k, g := range s.groups {
		out[k] = g.current()
	}
	return out
}

// Pending returns the keys still watching, sorted.
func (s *Scheduler) Pending() []request.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]request.Key, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *Scheduler) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
