// internal/app/pipelines.go
package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/pumpwatch/internal/ohlc"
)

// PriceObserver receives every accepted price of a mint. *monitor.Service satisfies it.
type PriceObserver interface {
	Observe(ctx context.Context, mint solana.PublicKey, price float64) error
}

type pipeline struct {
	mint   solana.PublicKey
	agg    *ohlc.Aggregator
	hub    *ohlc.Hub
	feed   *ohlc.Feed
	cancel context.CancelFunc
}

// Pipelines runs one account feed, aggregator and broadcast hub per bonding curve.
// Hubs are served under /ws/<curve>; /ws serves the most recent curve.
type Pipelines struct {
	accounts  ohlc.AccountSubscriber
	publisher ohlc.Publisher
	observer  PriceObserver
	interval  time.Duration
	depth     int
	decimals  uint8
	logger    *zap.Logger

	mu     sync.RWMutex
	byPool map[string]*pipeline
	latest string
	wg     sync.WaitGroup
}

// NewPipelines creates an empty registry. publisher and observer may be nil.
func NewPipelines(accounts ohlc.AccountSubscriber, publisher ohlc.Publisher, observer PriceObserver, interval time.Duration, depth int, decimals uint8, logger *zap.Logger) *Pipelines {
	return &Pipelines{
		accounts:  accounts,
		publisher: publisher,
		observer:  observer,
		interval:  interval,
		depth:     depth,
		decimals:  decimals,
		logger:    logger.Named("pipelines"),
		byPool:    make(map[string]*pipeline),
	}
}

// Start begins tracking curve. seed is the optional first snapshot from the
// launch logs; the account feed overrides it once live updates arrive.
// Returns false if the curve is already tracked.
func (p *Pipelines) Start(ctx context.Context, mint, curve solana.PublicKey, seed *pumpfun.BondingCurve) bool {
	pool := curve.String()

	p.mu.Lock()
	if _, ok := p.byPool[pool]; ok {
		p.mu.Unlock()
		return false
	}

	pctx, cancel := context.WithCancel(ctx)
	agg := ohlc.NewAggregator(pool, p.interval, p.depth)
	hub := ohlc.NewHub(pool, p.interval, agg.Backlog, p.logger)

	opts := []ohlc.FeedOption{ohlc.WithBroadcaster(hub)}
	if p.publisher != nil {
		opts = append(opts, ohlc.WithPublisher(p.publisher))
	}
	if p.observer != nil {
		opts = append(opts, ohlc.WithPriceHook(func(price float64, _ time.Time) {
			_ = p.observer.Observe(pctx, mint, price)
		}))
	}
	feed := ohlc.NewFeed(agg, p.decimals, p.logger, opts...)

	p.byPool[pool] = &pipeline{mint: mint, agg: agg, hub: hub, feed: feed, cancel: cancel}
	p.latest = pool
	p.mu.Unlock()

	if feed.Seed(seed) {
		p.logger.Debug("Seeded price from launch logs", zap.String("curve", pool))
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := feed.Run(pctx, p.accounts, curve)
		switch {
		case errors.Is(err, ohlc.ErrCurveComplete):
			p.logger.Info("Curve graduated, feed stopped", zap.String("mint", mint.String()))
		case err != nil && pctx.Err() == nil:
			p.logger.Warn("Price feed stopped", zap.String("mint", mint.String()), zap.Error(err))
		}
	}()

	p.logger.Info("Tracking mint",
		zap.String("mint", mint.String()),
		zap.String("curve", pool))
	return true
}

// Len returns the number of tracked curves.
func (p *Pipelines) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byPool)
}

// Listeners sums connected WebSocket listeners over all hubs.
func (p *Pipelines) Listeners() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, pl := range p.byPool {
		n += pl.hub.Listeners()
	}
	return n
}

// Aggregator returns the aggregator of curve.
func (p *Pipelines) Aggregator(curve string) (*ohlc.Aggregator, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pl, ok := p.byPool[curve]
	if !ok {
		return nil, false
	}
	return pl.agg, true
}

func (p *Pipelines) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pool := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws"), "/")

	p.mu.RLock()
	if pool == "" {
		pool = p.latest
	}
	pl, ok := p.byPool[pool]
	p.mu.RUnlock()

	if !ok {
		http.Error(w, "no candle stream for pool", http.StatusNotFound)
		return
	}
	pl.hub.ServeHTTP(w, r)
}

// Close stops every feed and disconnects listeners.
func (p *Pipelines) Close() {
	p.mu.Lock()
	for _, pl := range p.byPool {
		pl.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, pl := range p.byPool {
		pl.hub.Close()
	}
}
