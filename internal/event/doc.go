// Package event provides a pub-sub event bus for decoupled communication
// between the import orchestrator, the viewport, and observers such as the CLI.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Viewport:
//   - [ViewportShiftedEvent]: the viewport scrolled or resized; lazy watchers re-check visibility
//
// Module lifecycle:
//   - [ModuleLoadingEvent], [ModuleLoadedEvent], [ModuleFailedEvent]
//   - [ModuleInitializedEvent], [ModuleInitFailedEvent]
//   - [ModuleAbandonedEvent]: a lazy module torn down before it became visible
//
// Batch:
//   - [ImportsSettledEvent]: every eager load has settled
//
// # Thread Safety
//
// The [Bus] is safe for concurrent use. Handlers are called synchronously on
// the publishing goroutine and are protected against panics: a panicking
// handler does not prevent other handlers from being called.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	id := bus.Subscribe(event.TypeViewportShifted, func(e event.Event) {
//	    shift := e.(event.ViewportShiftedEvent)
//	    recheck(shift.Top)
//	})
//
//	bus.Publish(event.NewViewportShiftedEvent(400, 800))
//
//	// Unsubscribe with the same handle
//	bus.Unsubscribe(id)
package event
