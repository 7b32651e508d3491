// Package ohlc turns a price stream into OHLC candles and broadcasts them to
// WebSocket listeners.
package ohlc

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
)

const (
	DefaultInterval     = 5 * time.Second
	DefaultHistoryDepth = 500
)

var (
	ErrOutOfOrderTick = errors.New("tick older than the current candle")
	ErrInvalidPrice   = errors.New("price must be positive and finite")
)

// EventKind is the type of an aggregator output.
type EventKind string

const (
	KindOpen   EventKind = "open"
	KindUpdate EventKind = "update"
	KindClose  EventKind = "close"
	KindTick   EventKind = "tick"
)

// Event is one aggregator output. Candle is a copy; Price and At describe the tick.
// Snapshot is set on tick events when the price came from decoded reserves.
type Event struct {
	Kind     EventKind
	Candle   domain.Candle
	Price    float64
	At       time.Time
	Snapshot *pumpfun.BondingCurve
}

// Aggregator builds candles for one pool. Ticks must arrive in time order.
type Aggregator struct {
	pool     string
	interval time.Duration
	depth    int

	mu         sync.RWMutex
	current    *domain.Candle
	lastUpdate time.Time
	history    []domain.Candle
}

// NewAggregator creates an aggregator keeping at most depth closed candles.
func NewAggregator(pool string, interval time.Duration, depth int) *Aggregator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &Aggregator{
		pool:     pool,
		interval: interval,
		depth:    depth,
		history:  make([]domain.Candle, 0, depth),
	}
}

// Interval returns the candle length.
func (a *Aggregator) Interval() time.Duration {
	return a.interval
}

// Pool returns the pool the candles describe.
func (a *Aggregator) Pool() string {
	return a.pool
}

// Tick applies one price observation and returns the resulting events in order.
// The last event is always the tick itself.
func (a *Aggregator) Tick(price float64, at time.Time) ([]Event, error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil && at.Before(a.lastUpdate) {
		return nil, fmt.Errorf("%w: %s before %s", ErrOutOfOrderTick,
			at.Format(time.RFC3339Nano), a.lastUpdate.Format(time.RFC3339Nano))
	}

	var out []Event
	switch {
	case a.current == nil:
		out = append(out, a.open(price, at))

	case at.Sub(a.current.OpenTime) < a.interval:
		c := a.current
		c.High = math.Max(c.High, price)
		c.Low = math.Min(c.Low, price)
		c.Close = price
		c.CloseTime = at
		c.Ticks++
		c.Tag = domain.CandleUpdate
		out = append(out, Event{Kind: KindUpdate, Candle: *c, Price: price, At: at})

	default:
		closed := *a.current
		closed.CloseTime = closed.OpenTime.Add(a.interval)
		closed.Tag = domain.CandleClose
		a.appendHistory(closed)
		out = append(out, Event{Kind: KindClose, Candle: closed, Price: closed.Close, At: at})
		out = append(out, a.open(price, at))
	}

	a.lastUpdate = at
	snapshot := *a.current
	out = append(out, Event{Kind: KindTick, Candle: snapshot, Price: price, At: at})
	return out, nil
}

func (a *Aggregator) open(price float64, at time.Time) Event {
	a.current = &domain.Candle{
		Pool:      a.pool,
		OpenTime:  at,
		CloseTime: at,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Interval:  a.interval,
		Tag:       domain.CandleOpen,
		Ticks:     1,
	}
	return Event{Kind: KindOpen, Candle: *a.current, Price: price, At: at}
}

func (a *Aggregator) appendHistory(c domain.Candle) {
	if len(a.history) >= a.depth {
		copy(a.history, a.history[1:])
		a.history = a.history[:len(a.history)-1]
	}
	a.history = append(a.history, c)
}

// Current returns the open candle, if any.
func (a *Aggregator) Current() (domain.Candle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return domain.Candle{}, false
	}
	return *a.current, true
}

// History returns closed candles, oldest first.
func (a *Aggregator) History() []domain.Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.Candle, len(a.history))
	copy(out, a.history)
	return out
}

// Backlog is the closed history followed by the open candle.
func (a *Aggregator) Backlog() []domain.Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.Candle, 0, len(a.history)+1)
	out = append(out, a.history...)
	if a.current != nil {
		out = append(out, *a.current)
	}
	return out
}

// Started reports whether any tick has been applied.
func (a *Aggregator) Started() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current != nil
}
