// Package ratelimit spaces successive calls made on behalf of one target
// (a wallet, a tracked address). Create one Limiter per target.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	MinRPS = 0.1
	MaxRPS = 100.0
)

// Limiter enforces a minimum spacing of 1s/rps between calls.
type Limiter struct {
	limiter *rate.Limiter
	rps     float64
	enabled bool
}

// New creates a limiter. rps is clamped to [MinRPS, MaxRPS];
// a disabled limiter lets every call through immediately.
func New(rps float64, enabled bool) *Limiter {
	rps = clamp(rps)
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		rps:     rps,
		enabled: enabled,
	}
}

// Interval is the enforced spacing between calls.
func (l *Limiter) Interval() time.Duration {
	return time.Duration(float64(time.Second) / l.rps)
}

// Execute waits for the next slot, then runs fn.
func (l *Limiter) Execute(ctx context.Context, fn func(context.Context) error) error {
	if l.enabled {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return fn(ctx)
}

// Do is the generic form of Execute for calls that return a value.
func Do[T any](ctx context.Context, l *Limiter, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := l.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func clamp(rps float64) float64 {
	switch {
	case rps < MinRPS:
		return MinRPS
	case rps > MaxRPS:
		return MaxRPS
	default:
		return rps
	}
}
