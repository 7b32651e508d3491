package ohlc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpwatch/internal/blockchain/rpc"
	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/pumpwatch/internal/events"
	"go.uber.org/zap"
)

// ErrCurveComplete is returned by Run when the bonding curve graduates.
var ErrCurveComplete = errors.New("bonding curve complete")

// AccountSubscriber opens an account subscription.
type AccountSubscriber interface {
	Account(ctx context.Context, account string) (rpc.Stream, error)
}

// Broadcaster receives every wire message. *Hub satisfies it.
type Broadcaster interface {
	Broadcast(msg Message)
}

// Publisher receives closed candles as events. *events.Bus satisfies it.
type Publisher interface {
	Publish(event events.Event) error
}

// Feed prices bonding-curve snapshots and drives one aggregator.
type Feed struct {
	agg         *Aggregator
	decimals    uint8
	broadcaster Broadcaster
	publisher   Publisher
	onPrice     func(price float64, at time.Time)
	clock       clock.Clock
	logger      *zap.Logger
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithBroadcaster sends every aggregator event to b.
func WithBroadcaster(b Broadcaster) FeedOption {
	return func(f *Feed) { f.broadcaster = b }
}

// WithPublisher publishes closed candles to p.
func WithPublisher(p Publisher) FeedOption {
	return func(f *Feed) { f.publisher = p }
}

// WithPriceHook calls fn with every accepted price.
func WithPriceHook(fn func(price float64, at time.Time)) FeedOption {
	return func(f *Feed) { f.onPrice = fn }
}

// WithClock replaces the wall clock used to timestamp ticks.
func WithClock(clk clock.Clock) FeedOption {
	return func(f *Feed) { f.clock = clk }
}

// NewFeed creates a feed over agg for a token with the given decimals.
func NewFeed(agg *Aggregator, decimals uint8, logger *zap.Logger, opts ...FeedOption) *Feed {
	f := &Feed{
		agg:      agg,
		decimals: decimals,
		clock:    clock.New(),
		logger:   logger.Named("feed").With(zap.String("pool", agg.Pool())),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Aggregator returns the underlying aggregator.
func (f *Feed) Aggregator() *Aggregator {
	return f.agg
}

// Seed applies a lower-fidelity snapshot, such as one parsed from launch logs,
// only if no price has been recorded yet.
func (f *Feed) Seed(bc *pumpfun.BondingCurve) bool {
	if bc == nil || f.agg.Started() {
		return false
	}
	return f.OnSnapshot(*bc) == nil
}

// OnSnapshot prices a snapshot and feeds it to the aggregator as of now.
func (f *Feed) OnSnapshot(bc pumpfun.BondingCurve) error {
	price, ok := pumpfun.ComputePrice(bc, f.decimals)
	if !ok {
		return fmt.Errorf("%w: no price for reserves %d/%d", ErrInvalidPrice, bc.VirtualSolReserves, bc.VirtualTokenReserves)
	}
	return f.apply(price, f.clock.Now(), &bc)
}

// OnPrice feeds one tick and dispatches the resulting events.
func (f *Feed) OnPrice(price float64, at time.Time) error {
	return f.apply(price, at, nil)
}

func (f *Feed) apply(price float64, at time.Time, snap *pumpfun.BondingCurve) error {
	evs, err := f.agg.Tick(price, at)
	if err != nil {
		return err
	}
	if f.onPrice != nil {
		f.onPrice(price, at)
	}

	for _, e := range evs {
		if e.Kind == KindTick {
			e.Snapshot = snap
		}
		if f.broadcaster != nil {
			f.broadcaster.Broadcast(FromEvent(e))
		}
		if e.Kind == KindClose && f.publisher != nil {
			if err := f.publisher.Publish(events.NewCandleClosed(e.Candle)); err != nil {
				f.logger.Debug("Closed candle not delivered", zap.Error(err))
			}
		}
		if e.Kind == KindClose {
			f.logger.Info("Candle closed",
				zap.Float64("open", e.Candle.Open),
				zap.Float64("high", e.Candle.High),
				zap.Float64("low", e.Candle.Low),
				zap.Float64("close", e.Candle.Close),
				zap.Int("ticks", e.Candle.Ticks))
		}
	}
	return nil
}

// Run subscribes to the curve account and feeds every decodable update.
// It returns ErrCurveComplete once the curve graduates.
func (f *Feed) Run(ctx context.Context, sub AccountSubscriber, curve solana.PublicKey) error {
	stream, err := sub.Account(ctx, curve.String())
	if err != nil {
		return fmt.Errorf("subscribe to curve %s: %w", curve, err)
	}
	defer stream.Close()

	f.logger.Info("Price feed started", zap.String("curve", curve.String()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-stream.Notifications():
			if !ok {
				if err := stream.Err(); err != nil {
					return err
				}
				return ctx.Err()
			}

			bc, err := decodeNotification(raw)
			if err != nil {
				f.logger.Debug("Skipping account update", zap.Error(err))
				continue
			}
			if bc.Complete {
				f.logger.Info("Bonding curve complete, stopping feed")
				return ErrCurveComplete
			}
			if err := f.OnSnapshot(bc); err != nil {
				f.logger.Warn("Tick rejected", zap.Error(err))
			}
		}
	}
}

func decodeNotification(raw json.RawMessage) (pumpfun.BondingCurve, error) {
	var res rpc.AccountResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return pumpfun.BondingCurve{}, err
	}
	if res.Value == nil {
		return pumpfun.BondingCurve{}, errors.New("account closed")
	}
	data, err := res.Value.Bytes()
	if err != nil {
		return pumpfun.BondingCurve{}, err
	}
	return pumpfun.DecodeAccountLayout(data)
}
