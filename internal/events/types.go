// internal/events/types.go
package events

import (
	"time"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
)

// EventType represents the type of event.
type EventType string

const (
	// Detection events
	LaunchDetected EventType = "launch.detected"
	LaunchFailed   EventType = "launch.failed"

	// Market data events
	CandleClosed EventType = "candle.closed"

	// Stream lifecycle events
	StreamStarted EventType = "stream.started"
	StreamStopped EventType = "stream.stopped"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

func base(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// LaunchDetectedEvent is emitted once per resolved launch.
type LaunchDetectedEvent struct {
	BaseEvent
	Launch domain.LaunchEvent
}

// NewLaunchDetected wraps a launch.
func NewLaunchDetected(l domain.LaunchEvent) LaunchDetectedEvent {
	return LaunchDetectedEvent{BaseEvent: base(LaunchDetected), Launch: l}
}

// LaunchFailedEvent is emitted when a detected launch could not be resolved or its curve never appeared.
type LaunchFailedEvent struct {
	BaseEvent
	Signature string
	Mint      string
	Err       error
}

// NewLaunchFailed reports a launch that was dropped.
func NewLaunchFailed(signature, mint string, err error) LaunchFailedEvent {
	return LaunchFailedEvent{BaseEvent: base(LaunchFailed), Signature: signature, Mint: mint, Err: err}
}

// CandleClosedEvent carries a finished candle.
type CandleClosedEvent struct {
	BaseEvent
	Candle domain.Candle
}

// NewCandleClosed wraps a closed candle.
func NewCandleClosed(c domain.Candle) CandleClosedEvent {
	return CandleClosedEvent{BaseEvent: base(CandleClosed), Candle: c}
}

// StreamEvent reports a subscription starting or stopping.
type StreamEvent struct {
	BaseEvent
	Stream string
	Reason string // "started", "closed", "failed"
}

// NewStreamEvent reports stream lifecycle.
func NewStreamEvent(t EventType, stream, reason string) StreamEvent {
	return StreamEvent{BaseEvent: base(t), Stream: stream, Reason: reason}
}
