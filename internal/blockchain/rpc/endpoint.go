// internal/blockchain/rpc/endpoint.go
package rpc

import (
	"sync/atomic"
	"time"
)

// Endpoint представляет отдельный RPC узел пула
type Endpoint struct {
	URL    string
	window *slidingWindow

	requests atomic.Uint64
	failures atomic.Uint64
	waited   atomic.Int64
}

// EndpointStats is a point-in-time view of one endpoint's counters.
type EndpointStats struct {
	URL          string        `json:"url"`
	Requests     uint64        `json:"requests"`
	Failures     uint64        `json:"failures"`
	InWindow     int           `json:"in_window"`
	ThrottleWait time.Duration `json:"throttle_wait"`
}

// admit waits for the endpoint's rate window and counts the request.
func (e *Endpoint) admit() time.Duration {
	waited := e.window.acquire()
	if waited > 0 {
		e.waited.Add(int64(waited))
	}
	e.requests.Add(1)
	return waited
}

func (e *Endpoint) recordFailure() {
	e.failures.Add(1)
}

// Stats returns the endpoint counters.
func (e *Endpoint) Stats() EndpointStats {
	return EndpointStats{
		URL:          e.URL,
		Requests:     e.requests.Load(),
		Failures:     e.failures.Load(),
		InWindow:     e.window.inFlight(),
		ThrottleWait: time.Duration(e.waited.Load()),
	}
}
