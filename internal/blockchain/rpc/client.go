// internal/blockchain/rpc/client.go
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Observer receives one call per HTTP attempt. Implemented by the metrics package.
type Observer interface {
	ObserveRequest(endpoint, method string, err error, latency time.Duration)
	ObserveThrottle(endpoint string, wait time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string, error, time.Duration) {}
func (nopObserver) ObserveThrottle(string, time.Duration)               {}

// Client is a JSON-RPC 2.0 HTTP client over a rate-limited endpoint pool.
type Client struct {
	pool     *Pool
	http     *http.Client
	logger   *zap.Logger
	observer Observer

	clock          clock.Clock
	rotate         bool
	rateWindow     time.Duration
	rateCeiling    int
	maxRetries     uint
	initialBackoff time.Duration
	maxBackoff     time.Duration

	requestID atomic.Uint64
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRotation enables or disables round-robin over the endpoint list.
func WithRotation(rotate bool) Option {
	return func(c *Client) { c.rotate = rotate }
}

// WithRateLimit sets the per-endpoint sliding window.
func WithRateLimit(window time.Duration, ceiling int) Option {
	return func(c *Client) {
		c.rateWindow = window
		c.rateCeiling = ceiling
	}
}

// WithRetry sets the attempt ceiling and backoff bounds.
func WithRetry(maxAttempts uint, initial, ceiling time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxAttempts
		c.initialBackoff = initial
		c.maxBackoff = ceiling
	}
}

// WithClock replaces the wall clock used by the rate window.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a client for the given HTTP endpoints.
func NewClient(urls []string, logger *zap.Logger, opts ...Option) (*Client, error) {
	c := &Client{
		http:           &http.Client{Timeout: DefaultTimeout},
		logger:         logger.Named("rpc"),
		observer:       nopObserver{},
		clock:          clock.New(),
		rotate:         true,
		rateWindow:     DefaultRateWindow,
		rateCeiling:    DefaultRateCeiling,
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}

	pool, err := NewPool(urls, c.rotate, c.clock, c.rateWindow, c.rateCeiling)
	if err != nil {
		return nil, err
	}
	c.pool = pool

	return c, nil
}

// Stats returns per-endpoint request and failure counters.
func (c *Client) Stats() []EndpointStats {
	return c.pool.Stats()
}

// Request performs method with params and returns the raw result.
// Throttling and transport errors are retried with exponential backoff on
// the next endpoint in rotation; after the last attempt the error wraps ErrRetriesExhausted.
func (c *Client) Request(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var attempts uint
	operation := func() (json.RawMessage, error) {
		attempts++
		ep := c.pool.Next()

		if waited := ep.admit(); waited > 0 {
			c.observer.ObserveThrottle(ep.URL, waited)
			c.logger.Debug("Rate window full, waited",
				zap.String("endpoint", ep.URL),
				zap.Duration("wait", waited))
		}

		start := time.Now()
		result, err := c.do(ctx, ep.URL, body)
		c.observer.ObserveRequest(ep.URL, method, err, time.Since(start))

		if err == nil {
			return result, nil
		}

		ep.recordFailure()
		err = NewError(err, ep.URL, method)

		if ctx.Err() != nil || !IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug("Retrying RPC request",
				zap.String("method", method),
				zap.Duration("next_backoff", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		if IsRetryable(err) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, method, attempts, err)
		}
		return nil, err
	}
	return result, nil
}

// Call performs method and decodes the result into out.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	raw, err := c.Request(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", ErrInvalidResponse, method, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, url string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrConnectionFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimit
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrForbidden
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, string(respBody))
	}

	var rpcResp response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}
