// internal/events/handler.go
package events

import (
	"context"
)

// Handler processes events of a specific type.
type Handler interface {
	// Handle processes an event. Runs on the subscription's own goroutine.
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow the use of ordinary functions as event handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f(ctx, event).
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription represents a subscription to events.
type Subscription interface {
	// Unsubscribe removes the subscription.
	Unsubscribe()
}

type subscription struct {
	id       string
	eventBus *Bus
	typ      EventType
}

// Unsubscribe removes this subscription from the event bus.
func (s *subscription) Unsubscribe() {
	s.eventBus.unsubscribe(s.id, s.typ)
}

// LaunchHandler adapts a typed launch callback.
func LaunchHandler(fn func(context.Context, LaunchDetectedEvent) error) Handler {
	return HandlerFunc(func(ctx context.Context, e Event) error {
		if ev, ok := e.(LaunchDetectedEvent); ok {
			return fn(ctx, ev)
		}
		return nil
	})
}

// CandleHandler adapts a typed candle callback.
func CandleHandler(fn func(context.Context, CandleClosedEvent) error) Handler {
	return HandlerFunc(func(ctx context.Context, e Event) error {
		if ev, ok := e.(CandleClosedEvent); ok {
			return fn(ctx, ev)
		}
		return nil
	})
}
