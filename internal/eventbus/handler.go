package eventbus

import "context"

// Handler processes classified events on the bus. Handlers are invoked in
// priority order (lower value first) for events they subscribe to; one
// handler's failure must not prevent siblings from running, enforced by
// Bus.Dispatch rather than by the handler itself.
type Handler interface {
	// ID returns a unique identifier for this handler.
	ID() string

	// Handles returns the event types this handler subscribes to. An empty
	// slice means "every type" — a wildcard subscription.
	Handles() []EventType

	// Priority determines call order; lower values run first.
	Priority() int

	// Handle processes one event. A returned error is logged by the bus and
	// does not stop dispatch to the remaining handlers.
	Handle(ctx context.Context, event *Event) error
}
