// Package orchestrator is the entry point of an import run. It receives the
// scanner's request partition once and drives the eager batch and the lazy
// scheduler independently of each other.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/dataimport/internal/eager"
	"github.com/Iron-Ham/dataimport/internal/errors"
	"github.com/Iron-Ham/dataimport/internal/event"
	"github.com/Iron-Ham/dataimport/internal/initializer"
	"github.com/Iron-Ham/dataimport/internal/lazy"
	"github.com/Iron-Ham/dataimport/internal/loader"
	"github.com/Iron-Ham/dataimport/internal/logging"
	"github.com/Iron-Ham/dataimport/internal/request"
	"github.com/Iron-Ham/dataimport/internal/tracker"
)

// ScanResult is what the scanner hands over once scanning completes.
type ScanResult struct {
	Requests request.Requests
	// Total is the scanner's count of distinct keys. Zero skips the check.
	Total int
}

// Config holds the orchestrator's dependencies.
type Config struct {
	Resolver   eager.Resolver  // Required; *resolve.Resolver
	Loader     loader.Loader   // Required
	Visibility lazy.Visibility // Required
	Bus        *event.Bus      // Defaults to a private bus
	Logger     *logging.Logger // Defaults to a no-op logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRunID sets the ID attached to every log entry of the run.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// WithMaxConcurrency caps concurrent eager loads.
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) {
		o.eagerOpts = append(o.eagerOpts, eager.WithMaxConcurrency(n))
	}
}

// Orchestrator runs one import pass over a scanned document.
type Orchestrator struct {
	runID     string
	bus       *event.Bus
	logger    *logging.Logger
	eager     *eager.Dispatcher
	lazy      *lazy.Scheduler
	eagerOpts []eager.Option

	mu      sync.Mutex
	scanned bool
	batch   *eager.Batch
}

// New creates an Orchestrator.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("orchestrator: Resolver is required")
	}
	if cfg.Loader == nil {
		return nil, fmt.Errorf("orchestrator: Loader is required")
	}
	if cfg.Visibility == nil {
		return nil, fmt.Errorf("orchestrator: Visibility is required")
	}
	if cfg.Bus == nil {
		cfg.Bus = event.NewBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}

	o := &Orchestrator{
		runID: generateID(),
		bus:   cfg.Bus,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = cfg.Logger.WithRun(o.runID)

	shared := initializer.New(o.logger, o.bus)

	var err error
	o.eager, err = eager.New(eager.Config{
		Resolver:    cfg.Resolver,
		Loader:      cfg.Loader,
		Initializer: shared,
		Bus:         o.bus,
		Logger:      o.logger,
	}, o.eagerOpts...)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	o.lazy, err = lazy.New(lazy.Config{
		Resolver:    cfg.Resolver,
		Loader:      cfg.Loader,
		Visibility:  cfg.Visibility,
		Signals:     o.bus,
		Initializer: shared,
		Bus:         o.bus,
		Logger:      o.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	return o, nil
}

// OnScanned starts the run. The eager batch starts immediately and
// onAllSettled (if non-nil) is called once when it settles; the deferred
// groups start watching for visibility. Only the first call is accepted.
func (o *Orchestrator) OnScanned(ctx context.Context, scan ScanResult, onAllSettled func(tracker.Settlement)) error {
	if err := scan.Requests.Validate(); err != nil {
		return err
	}
	if scan.Total != 0 && scan.Total != scan.Requests.Total() {
		return errors.NewValidationError(errors.ErrInvalidRequest, "total", scan.Total,
			fmt.Sprintf("scanner reported %d keys but supplied %d", scan.Total, scan.Requests.Total()))
	}

	o.mu.Lock()
	if o.scanned {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: scan already handled for run %s", o.runID)
	}
	o.scanned = true
	o.mu.Unlock()

	o.logger.Info("imports scanned",
		"eager", len(scan.Requests.Eager),
		"deferred", len(scan.Requests.Deferred),
	)

	batch := o.eager.Run(ctx, scan.Requests.Eager, onAllSettled)
	o.mu.Lock()
	o.batch = batch
	o.mu.Unlock()

	if err := o.lazy.Run(ctx, scan.Requests.Deferred); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	return nil
}

// Wait blocks until the eager batch has finished and every lazy load
// triggered so far has finished.
func (o *Orchestrator) Wait() {
	if b := o.Batch(); b != nil {
		b.Wait()
	}
	o.lazy.Wait()
}

// Close tears down lazy watchers. In-flight loads are not aborted.
func (o *Orchestrator) Close() {
	pending := o.lazy.Pending()
	o.lazy.Close()
	o.logger.Info("orchestrator closed", "abandoned", len(pending))
}

// Batch returns the eager batch, or nil before OnScanned.
func (o *Orchestrator) Batch() *eager.Batch {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.batch
}

// Scheduler returns the lazy scheduler.
func (o *Orchestrator) Scheduler() *lazy.Scheduler {
	return o.lazy
}

// Bus returns the bus carrying the run's events.
func (o *Orchestrator) Bus() *event.Bus {
	return o.bus
}

// RunID returns the run's ID.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// generateID creates a short random hex ID.
// Falls back to a timestamp-based ID if crypto/rand fails.
func generateID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xFFFFFFFF)
	}
	return hex.EncodeToString(b)
}
