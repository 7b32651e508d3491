// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrBusClosed is returned by Publish after Shutdown.
var ErrBusClosed = errors.New("event bus is shutting down")

// Bus is an in-memory event bus. Each subscription owns a mailbox drained by
// its own goroutine, so handlers see events in publish order and a slow
// handler only loses its own events.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType]map[string]*mailbox
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	bufferSize  int
	dropped     atomic.Uint64
	closed      atomic.Bool
}

type mailbox struct {
	id      string
	handler Handler
	ch      chan Event
	done    chan struct{}
}

// NewBus creates a new event bus.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subscribers: make(map[EventType]map[string]*mailbox),
		logger:      logger.Named("event_bus"),
		ctx:         ctx,
		cancel:      cancel,
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	mb := &mailbox{
		id:      uuid.New().String(),
		handler: handler,
		ch:      make(chan Event, b.bufferSize),
		done:    make(chan struct{}),
	}

	if b.subscribers[eventType] == nil {
		b.subscribers[eventType] = make(map[string]*mailbox)
	}
	b.subscribers[eventType][mb.id] = mb

	b.wg.Add(1)
	go b.drain(eventType, mb)

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", mb.id))

	return &subscription{
		id:       mb.id,
		eventBus: b,
		typ:      eventType,
	}
}

// SubscribeFunc is a convenience method for subscribing with a function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues an event for every subscriber of its type without blocking.
// Subscribers whose mailbox is full miss the event.
func (b *Bus) Publish(event Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var full int
	for id, mb := range b.subscribers[event.Type()] {
		select {
		case mb.ch <- event:
		default:
			full++
			b.dropped.Add(1)
			b.logger.Warn("Subscriber mailbox full, dropping event",
				zap.String("event_type", string(event.Type())),
				zap.String("subscription_id", id))
		}
	}

	if full > 0 {
		return fmt.Errorf("event dropped for %d subscribers", full)
	}
	return nil
}

// PublishSync sends an event to all registered handlers synchronously.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := make(map[string]Handler, len(b.subscribers[event.Type()]))
	for id, mb := range b.subscribers[event.Type()] {
		handlers[id] = mb.handler
	}
	b.mu.RUnlock()

	var errs []error
	for id, handler := range handlers {
		if err := handler.Handle(ctx, event); err != nil {
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("handler_id", id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (b *Bus) drain(eventType EventType, mb *mailbox) {
	defer b.wg.Done()

	for {
		select {
		case <-mb.done:
			return
		case <-b.ctx.Done():
			// Drain remaining events
			for {
				select {
				case event := <-mb.ch:
					b.handle(context.Background(), mb, event)
				default:
					return
				}
			}
		case event := <-mb.ch:
			b.handle(b.ctx, mb, event)
		}
	}
}

func (b *Bus) handle(ctx context.Context, mb *mailbox, event Event) {
	if err := mb.handler.Handle(ctx, event); err != nil {
		b.logger.Error("Failed to process event",
			zap.String("event_type", string(event.Type())),
			zap.String("subscription_id", mb.id),
			zap.Error(err))
	}
}

// unsubscribe removes a handler subscription.
func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	mbs, ok := b.subscribers[eventType]
	if !ok {
		return
	}
	if mb, ok := mbs[id]; ok {
		close(mb.done)
		delete(mbs, id)
	}
	if len(mbs) == 0 {
		delete(b.subscribers, eventType)
	}

	b.logger.Debug("Handler unsubscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))
}

// Shutdown stops accepting events, lets mailboxes drain and waits for handlers.
func (b *Bus) Shutdown(ctx context.Context) error {
	if b.closed.Swap(true) {
		return nil
	}
	b.logger.Info("Shutting down event bus")
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Event bus shutdown complete",
			zap.Uint64("dropped_events", b.dropped.Load()))
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}

// Stats returns statistics about the event bus.
func (b *Bus) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlerCounts := make(map[string]int)
	pending := 0
	for eventType, mbs := range b.subscribers {
		handlerCounts[string(eventType)] = len(mbs)
		for _, mb := range mbs {
			pending += len(mb.ch)
		}
	}

	return map[string]interface{}{
		"buffer_size":       b.bufferSize,
		"pending_events":    pending,
		"dropped_events":    b.dropped.Load(),
		"event_types":       len(b.subscribers),
		"handlers_per_type": handlerCounts,
	}
}
