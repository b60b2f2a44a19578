// Package initializer hands loaded modules the elements that requested them.
//
// Initialization failures are contained: a hook that returns an error or
// panics is reported and the error returned for inspection, but callers never
// propagate it. Sibling modules and completion counting are unaffected.
package initializer

import (
	"context"

	"github.com/Iron-Ham/dataimport/internal/errors"
	"github.com/Iron-Ham/dataimport/internal/event"
	"github.com/Iron-Ham/dataimport/internal/logging"
	"github.com/Iron-Ham/dataimport/internal/module"
	"github.com/Iron-Ham/dataimport/internal/request"
)

// Publisher receives lifecycle events. *event.Bus implements it.
type Publisher interface {
	Publish(e event.Event)
}

// Dispatch describes one initialization.
type Dispatch struct {
	Key  request.Key
	Name string // Display name of the module
	Mode string // request.ModeEager or request.ModeLazy
}

// Initializer runs module initialization hooks.
type Initializer struct {
	logger *logging.Logger
	pub    Publisher
}

// New creates an Initializer. A nil logger discards output and a nil
// publisher drops events.
func New(logger *logging.Logger, pub Publisher) *Initializer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Initializer{logger: logger, pub: pub}
}

// Initialize invokes mod's Init hook once with elements, if it has one.
// The returned *errors.InitError is informational.
func (i *Initializer) Initialize(ctx context.Context, mod module.Module, elements []request.Element, d Dispatch) error {
	log := i.logger.WithKey(string(d.Key)).WithMode(d.Mode)

	hook, hooked := mod.(module.Initializer)
	if hooked {
		if err := invoke(ctx, hook, elements, d); err != nil {
			log.Error("module initialization failed",
				"module", d.Name,
				"elements", len(elements),
				"error", err,
			)
			i.publish(event.NewModuleInitFailedEvent(string(d.Key), d.Name, d.Mode, err))
			return err
		}
	}

	log.Info("module initialized",
		"module", d.Name,
		"elements", len(elements),
		"hooked", hooked,
	)
	i.publish(event.NewModuleInitializedEvent(string(d.Key), d.Name, d.Mode, len(elements), hooked))
	return nil
}

func invoke(ctx context.Context, hook module.Initializer, elements []request.Element, d Dispatch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInitPanicError(string(d.Key), d.Name, r)
		}
	}()

	if hookErr := hook.Init(ctx, elements); hookErr != nil {
		return errors.NewInitError(string(d.Key), d.Name, hookErr)
	}
	return nil
}

func (i *Initializer) publish(e event.Event) {
	if i.pub != nil {
		i.pub.Publish(e)
	}
}
