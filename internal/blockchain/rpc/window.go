// internal/blockchain/rpc/window.go
package rpc

import (
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
)

const (
	DefaultRateWindow  = 10 * time.Second
	DefaultRateCeiling = 90
	// windowBuffer is added to the computed wait so the oldest stamp has surely left the window.
	windowBuffer = 50 * time.Millisecond
)

// slidingWindow admits at most ceiling requests per window for one endpoint.
type slidingWindow struct {
	mu      sync.Mutex
	clock   clock.Clock
	window  time.Duration
	ceiling int
	stamps  []time.Time
}

func newSlidingWindow(clk clock.Clock, window time.Duration, ceiling int) *slidingWindow {
	if window <= 0 {
		window = DefaultRateWindow
	}
	if ceiling <= 0 {
		ceiling = DefaultRateCeiling
	}
	return &slidingWindow{
		clock:   clk,
		window:  window,
		ceiling: ceiling,
		stamps:  make([]time.Time, 0, ceiling),
	}
}

// acquire blocks until a slot is free and records the admission.
// It returns the total time spent waiting.
func (w *slidingWindow) acquire() time.Duration {
	var waited time.Duration
	for {
		wait := w.tryAdmit()
		if wait == 0 {
			return waited
		}
		w.clock.Sleep(wait)
		waited += wait
	}
}

// tryAdmit records the request and returns 0, or returns how long to wait.
func (w *slidingWindow) tryAdmit() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.prune(now)

	if len(w.stamps) < w.ceiling {
		w.stamps = append(w.stamps, now)
		return 0
	}

	wait := w.stamps[0].Add(w.window).Sub(now) + windowBuffer
	if wait <= 0 {
		wait = windowBuffer
	}
	return wait
}

func (w *slidingWindow) prune(now time.Time) {
	i := 0
	for i < len(w.stamps) && now.Sub(w.stamps[i]) >= w.window {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// inFlight returns the number of stamps still inside the window.
func (w *slidingWindow) inFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.clock.Now())
	return len(w.stamps)
}
