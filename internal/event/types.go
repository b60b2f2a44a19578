package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "module.loaded", "viewport.shifted")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeViewportShifted   = "viewport.shifted"
	TypeModuleLoading     = "module.loading"
	TypeModuleLoaded      = "module.loaded"
	TypeModuleFailed      = "module.failed"
	TypeModuleInitialized = "module.initialized"
	TypeModuleInitFailed  = "module.init_failed"
	TypeModuleAbandoned   = "module.abandoned"
	TypeImportsSettled    = "imports.settled"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Viewport Events
// -----------------------------------------------------------------------------

// ViewportShiftedEvent is broadcast when the viewport may have changed
// (scroll or resize), prompting watchers to re-check visibility.
type ViewportShiftedEvent struct {
	baseEvent
	Top    int // Offset of the viewport's top edge
	Height int // Viewport height
}

// NewViewportShiftedEvent creates a ViewportShiftedEvent.
func NewViewportShiftedEvent(top, height int) ViewportShiftedEvent {
	return ViewportShiftedEvent{
		baseEvent: newBaseEvent(TypeViewportShifted),
		Top:       top,
		Height:    height,
	}
}

// -----------------------------------------------------------------------------
// Module Lifecycle Events
// -----------------------------------------------------------------------------

// ModuleLoadingEvent is emitted when a load is issued, before it settles.
type ModuleLoadingEvent struct {
	baseEvent
	Key  string
	URI  string
	Mode string // "eager" or "lazy"
}

// NewModuleLoadingEvent creates a ModuleLoadingEvent.
func NewModuleLoadingEvent(key, uri, mode string) ModuleLoadingEvent {
	return ModuleLoadingEvent{
		baseEvent: newBaseEvent(TypeModuleLoading),
		Key:       key,
		URI:       uri,
		Mode:      mode,
	}
}

// ModuleLoadedEvent is emitted when a load settles successfully.
type ModuleLoadedEvent struct {
	baseEvent
	Key  string
	URI  string
	Name string // Display name
	Mode string
}

// NewModuleLoadedEvent creates a ModuleLoadedEvent.
func NewModuleLoadedEvent(key, uri, name, mode string) ModuleLoadedEvent {
	return ModuleLoadedEvent{
		baseEvent: newBaseEvent(TypeModuleLoaded),
		Key:       key,
		URI:       uri,
		Name:      name,
		Mode:      mode,
	}
}

// ModuleFailedEvent is emitted when a load settles with a failure.
type ModuleFailedEvent struct {
	baseEvent
	Key  string
	URI  string
	Mode string
	Err  error
}

// NewModuleFailedEvent creates a ModuleFailedEvent.
func NewModuleFailedEvent(key, uri, mode string, err error) ModuleFailedEvent {
	return ModuleFailedEvent{
		baseEvent: newBaseEvent(TypeModuleFailed),
		Key:       key,
		URI:       uri,
		Mode:      mode,
		Err:       err,
	}
}

// ModuleInitializedEvent is emitted after a loaded module was handed its
// elements, whether or not it exposed an initialization hook.
type ModuleInitializedEvent struct {
	baseEvent
	Key      string
	Name     string
	Mode     string
	Elements int
	Hooked   bool // The module exposed an initialization hook
}

// NewModuleInitializedEvent creates a ModuleInitializedEvent.
func NewModuleInitializedEvent(key, name, mode string, elements int, hooked bool) ModuleInitializedEvent {
	return ModuleInitializedEvent{
		baseEvent: newBaseEvent(TypeModuleInitialized),
		Key:       key,
		Name:      name,
		Mode:      mode,
		Elements:  elements,
		Hooked:    hooked,
	}
}

// ModuleInitFailedEvent is emitted when an initialization hook fails.
type ModuleInitFailedEvent struct {
	baseEvent
	Key  string
	Name string
	Mode string
	Err  error
}

// NewModuleInitFailedEvent creates a ModuleInitFailedEvent.
func NewModuleInitFailedEvent(key, name, mode string, err error) ModuleInitFailedEvent {
	return ModuleInitFailedEvent{
		baseEvent: newBaseEvent(TypeModuleInitFailed),
		Key:       key,
		Name:      name,
		Mode:      mode,
		Err:       err,
	}
}

// ModuleAbandonedEvent is emitted when a lazy module is torn down before any
// of its elements became visible.
type ModuleAbandonedEvent struct {
	baseEvent
	Key string
}

// NewModuleAbandonedEvent creates a ModuleAbandonedEvent.
func NewModuleAbandonedEvent(key string) ModuleAbandonedEvent {
	return ModuleAbandonedEvent{
		baseEvent: newBaseEvent(TypeModuleAbandoned),
		Key:       key,
	}
}

// -----------------------------------------------------------------------------
// Batch Events
// -----------------------------------------------------------------------------

// ImportsSettledEvent is emitted once, when every eager load has settled.
type ImportsSettledEvent struct {
	baseEvent
	Total    int                 // Number of eager requests
	Failed   int                 // Loads that settled with a failure
	Requests map[string][]string // Key -> element IDs snapshot
}

// NewImportsSettledEvent creates an ImportsSettledEvent.
func NewImportsSettledEvent(total, failed int, requests map[string][]string) ImportsSettledEvent {
	return ImportsSettledEvent{
		baseEvent: newBaseEvent(TypeImportsSettled),
		Total:     total,
		Failed:    failed,
		Requests:  requests,
	}
}
