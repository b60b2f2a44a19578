// Package eager loads every module of an eager request set concurrently and
// signals once when all of them have settled.
package eager

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/dataimport/internal/errors"
	"github.com/Iron-Ham/dataimport/internal/event"
	"github.com/Iron-Ham/dataimport/internal/initializer"
	"github.com/Iron-Ham/dataimport/internal/loader"
	"github.com/Iron-Ham/dataimport/internal/logging"
	"github.com/Iron-Ham/dataimport/internal/module"
	"github.com/Iron-Ham/dataimport/internal/request"
	"github.com/Iron-Ham/dataimport/internal/tracker"
)

// Resolver maps keys to loadable URIs. *resolve.Resolver implements it.
type Resolver interface {
	Resolve(key request.Key) string
}

// Publisher receives lifecycle events. *event.Bus implements it.
type Publisher interface {
	Publish(e event.Event)
}

// Config holds the dispatcher's dependencies.
type Config struct {
	Resolver    Resolver                 // Required
	Loader      loader.Loader            // Required
	Initializer *initializer.Initializer // Defaults to one sharing Logger and Bus
	Bus         Publisher                // Optional
	Logger      *logging.Logger          // Defaults to a no-op logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxConcurrency caps the number of loads in flight. Zero, the default,
// issues every load at once.
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) {
		d.maxConcurrency = n
	}
}

// Dispatcher runs eager batches.
type Dispatcher struct {
	resolver Resolver
	loader   loader.Loader
	init     *initializer.Initializer
	bus      Publisher
	logger   *logging.Logger

	maxConcurrency int
}

// New creates a Dispatcher.
func New(cfg Config, opts ...Option) (*Dispatcher, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("eager: Resolver is required")
	}
	if cfg.Loader == nil {
		return nil, fmt.Errorf("eager: Loader is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	if cfg.Initializer == nil {
		cfg.Initializer = initializer.New(cfg.Logger, cfg.Bus)
	}

	d := &Dispatcher{
		resolver: cfg.Resolver,
		loader:   cfg.Loader,
		init:     cfg.Initializer,
		bus:      cfg.Bus,
		logger:   cfg.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Batch is one running eager set.
type Batch struct {
	pool      *pool.Pool
	tracker   *tracker.Tracker
	submitted chan struct{}
	waitOnce  sync.Once
}

// Wait blocks until every load goroutine of the batch has returned.
func (b *Batch) Wait() {
	b.waitOnce.Do(func() {
		<-b.submitted
		b.pool.Wait()
	})
}

// Done returns a channel closed once every load has settled and the
// completion callback has returned.
func (b *Batch) Done() <-chan struct{} {
	return b.tracker.Done()
}

// Remaining returns the number of loads not yet settled.
func (b *Batch) Remaining() int {
	return b.tracker.Remaining()
}

// Failed returns the number of loads that settled with an error.
func (b *Batch) Failed() int {
	return b.tracker.Failed()
}

// Run issues a load for every key in set without waiting for any of them,
// and returns immediately. When the last load settles, the batch logs the
// full request snapshot, publishes an imports.settled event, then calls
// onAllSettled (if non-nil) with the settlement of that last load.
func (d *Dispatcher) Run(ctx context.Context, set request.Set, onAllSettled func(tracker.Settlement)) *Batch {
	snapshot := set.Snapshot()
	total := len(set)

	var tr *tracker.Tracker
	tr = tracker.New(total, func(last tracker.Settlement) {
		failed := 0
		if tr != nil {
			failed = tr.Failed()
		}
		d.logger.Info("all imports finished",
			"total", total,
			"failed", failed,
			"requests", snapshot,
		)
		d.publish(event.NewImportsSettledEvent(total, failed, snapshot))
		if onAllSettled != nil {
			onAllSettled(last)
		}
	})

	p := pool.New()
	if d.maxConcurrency > 0 {
		p = p.WithMaxGoroutines(d.maxConcurrency)
	}
	b := &Batch{pool: p, tracker: tr, submitted: make(chan struct{})}

	// A capped pool blocks Go until a slot frees, so submission runs on its
	// own goroutine.
	keys := set.Keys()
	go func() {
		defer close(b.submitted)
		for _, key := range keys {
			group := set[key]
			p.Go(func() {
				tr.Settle(d.load(ctx, key, group))
			})
		}
	}()
	return b
}

// load resolves, loads, and initializes one module, returning its settlement.
func (d *Dispatcher) load(ctx context.Context, key request.Key, group request.Group) tracker.Settlement {
	uri := d.resolver.Resolve(key)
	log := d.logger.WithKey(string(key)).WithMode(request.ModeEager)

	log.Info("loading module", "uri", uri, "elements", group.IDs())
	d.publish(event.NewModuleLoadingEvent(string(key), uri, request.ModeEager))

	mod, err := loader.Safe(ctx, d.loader, uri)
	if err != nil {
		loadErr := errors.NewLoadError(string(key), err).WithURI(uri)
		log.Error("module load failed", "uri", uri, "error", loadErr)
		d.publish(event.NewModuleFailedEvent(string(key), uri, request.ModeEager, loadErr))
		return tracker.Settlement{Key: key, URI: uri, Err: loadErr}
	}

	name := module.DisplayName(mod, key)
	log.Info("module loaded", "uri", uri, "module", name)
	d.publish(event.NewModuleLoadedEvent(string(key), uri, name, request.ModeEager))

	// Initialization failures are reported by the initializer and do not
	// affect the settlement.
	_ = d.init.Initialize(ctx, mod, group, initializer.Dispatch{
		Key:  key,
		Name: name,
		Mode: request.ModeEager,
	})

	return tracker.Settlement{Key: key, URI: uri, Name: name, Module: mod}
}

func (d *Dispatcher) publish(e event.Event) {
	if d.bus != nil {
		d.bus.Publish(e)
	}
}
