// Package engine implements the prioritized event bus every component
// communicates through: a single dispatcher draining a priority queue
// into per-subscriber inboxes, each consumed by its own worker.
package engine

import "github.com/yourusername/quantcapital-engine/pkg/entity"

// Handler is the contract a subscriber implements to receive events.
//
// HandleEvent is called from the subscriber's own worker goroutine, so a
// handler never blocks other subscribers; it must still be safe against
// the component's other goroutines.
type Handler interface {
	// Name identifies the subscriber; registration is keyed by it.
	Name() string

	// Initialize is called once when the handler is registered.
	Initialize() error

	// HandleEvent processes one event. Errors are logged and counted,
	// they do not stop dispatch.
	HandleEvent(event entity.Event) error

	// Destroy is called when the handler is unregistered or the engine
	// shuts down.
	Destroy() error
}
