package rpc

import (
	"sync"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock is a mock clock whose Sleep advances time instantly and records the request.
type stepClock struct {
	*clock.Mock
	mu    sync.Mutex
	slept []time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{Mock: clock.NewMock()}
}

func (c *stepClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	c.Mock.Add(d)
}

func (c *stepClock) sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

func TestSlidingWindowWaitsForOldestStamp(t *testing.T) {
	clk := newStepClock()
	w := newSlidingWindow(clk, 10*time.Second, 3)

	start := clk.Now()
	for i := 0; i < 3; i++ {
		assert.Zero(t, w.acquire(), "call %d fits in the window", i)
		clk.Add(time.Second)
	}
	assert.Empty(t, clk.sleeps())

	// Fourth call at t=3s must wait until t=0 leaves the window.
	waited := w.acquire()
	assert.Equal(t, 7*time.Second+windowBuffer, waited)
	assert.Equal(t, []time.Duration{7*time.Second + windowBuffer}, clk.sleeps())
	assert.True(t, clk.Now().Sub(start) >= 10*time.Second)
	assert.Equal(t, 3, w.inFlight())
}

func TestSlidingWindowDefaultCeiling(t *testing.T) {
	clk := newStepClock()
	w := newSlidingWindow(clk, 0, 0)

	for i := 0; i < DefaultRateCeiling; i++ {
		require.Zero(t, w.acquire())
	}
	waited := w.acquire()
	assert.Equal(t, DefaultRateWindow+windowBuffer, waited)
}

func TestSlidingWindowExpiresStamps(t *testing.T) {
	clk := newStepClock()
	w := newSlidingWindow(clk, 10*time.Second, 2)

	w.acquire()
	w.acquire()
	assert.Equal(t, 2, w.inFlight())

	clk.Add(10 * time.Second)
	assert.Equal(t, 0, w.inFlight())
	assert.Zero(t, w.acquire())
}

func TestPoolRoundRobin(t *testing.T) {
	p, err := NewPool([]string{"http://a", "http://b", "http://c"}, true, newStepClock(), 0, 0)
	require.NoError(t, err)

	var got []string
	for i := 0; i < 6; i++ {
		got = append(got, p.Next().URL)
	}
	assert.Equal(t, []string{"http://a", "http://b", "http://c", "http://a", "http://b", "http://c"}, got)

	single, err := NewPool([]string{"http://a", "http://b"}, false, newStepClock(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, single.Size())
	assert.Equal(t, "http://a", single.Next().URL)
	assert.Equal(t, "http://a", single.Next().URL)

	_, err = NewPool(nil, true, nil, 0, 0)
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestEndpointCountersConcurrent(t *testing.T) {
	p, err := NewPool([]string{"http://a", "http://b"}, true, clock.New(), time.Second, 10_000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ep := p.Next()
				ep.admit()
				if j%2 == 0 {
					ep.recordFailure()
				}
			}
		}()
	}
	wg.Wait()

	var requests, failures uint64
	for _, st := range p.Stats() {
		requests += st.Requests
		failures += st.Failures
	}
	assert.Equal(t, uint64(1000), requests)
	assert.Equal(t, uint64(500), failures)
}
