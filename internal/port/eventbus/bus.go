// Package eventbus defines the automation event bus port (interface).
package eventbus

import (
	"context"

	"github.com/craftapp/craftd/internal/domain/event"
)

// Handler processes one event delivered by the bus. A handler error is
// logged by the bus and never propagates to the emitter or to sibling
// handlers.
type Handler func(ctx context.Context, eventType event.Type, payload event.Payload) error

// Bus is the per-workspace pub/sub channel for automation events.
type Bus interface {
	// Emit delivers the event to every handler registered for its type and
	// to every all-event handler. The per-type rate limit is applied first;
	// a dropped event invokes nobody. Emit returns after all handlers for
	// this event have finished; handlers run concurrently with each other.
	Emit(ctx context.Context, eventType event.Type, payload event.Payload)

	// Subscribe registers a handler for one event type.
	// The returned function cancels the registration.
	Subscribe(eventType event.Type, h Handler) (cancel func())

	// SubscribeAll registers a handler invoked for every event type.
	// The returned function cancels the registration.
	SubscribeAll(h Handler) (cancel func())

	// HandlerCount reports the number of registrations for the given types.
	// Without arguments it returns the total across all types plus the
	// all-event handlers.
	HandlerCount(types ...event.Type) int

	// Disposed reports whether Dispose has been called.
	Disposed() bool

	// Dispose drops every registration. Afterward Emit delivers to nobody
	// and new subscriptions are discarded. Safe to call more than once.
	Dispose()
}
