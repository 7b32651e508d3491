// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/events"
)

var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrNotFound     = errors.New("not found")
)

// CandleStore persists closed candles.
type CandleStore interface {
	// Insert stores a closed candle. Returns ErrDuplicateKey if (pool, open_time, interval) exists.
	Insert(ctx context.Context, c domain.Candle) error
	// Range returns candles of pool with open_time in [from, to), oldest first.
	Range(ctx context.Context, pool string, interval time.Duration, from, to time.Time) ([]domain.Candle, error)
	// Latest returns the newest candle of pool.
	Latest(ctx context.Context, pool string, interval time.Duration) (domain.Candle, error)
}

// LaunchStore persists detected launches.
type LaunchStore interface {
	// Insert stores a launch. Returns ErrDuplicateKey if (signature, mint) exists.
	Insert(ctx context.Context, l domain.LaunchEvent) error
	// Recent returns the newest launches, newest first.
	Recent(ctx context.Context, limit int) ([]domain.LaunchEvent, error)
}

// Bind writes closed candles and launches published on the bus. Either store may be nil.
// Duplicates are ignored.
func Bind(bus *events.Bus, candles CandleStore, launches LaunchStore, logger *zap.Logger) []events.Subscription {
	logger = logger.Named("storage")
	var subs []events.Subscription

	if candles != nil {
		subs = append(subs, bus.Subscribe(events.CandleClosed, events.CandleHandler(func(ctx context.Context, e events.CandleClosedEvent) error {
			if err := candles.Insert(ctx, e.Candle); err != nil && !errors.Is(err, ErrDuplicateKey) {
				logger.Error("Failed to store candle",
					zap.String("pool", e.Candle.Pool),
					zap.Time("open_time", e.Candle.OpenTime),
					zap.Error(err))
				return err
			}
			return nil
		})))
	}

	if launches != nil {
		subs = append(subs, bus.Subscribe(events.LaunchDetected, events.LaunchHandler(func(ctx context.Context, e events.LaunchDetectedEvent) error {
			if err := launches.Insert(ctx, e.Launch); err != nil && !errors.Is(err, ErrDuplicateKey) {
				logger.Error("Failed to store launch",
					zap.String("signature", e.Launch.Signature),
					zap.String("mint", e.Launch.Mint.String()),
					zap.Error(err))
				return err
			}
			return nil
		})))
	}

	return subs
}
