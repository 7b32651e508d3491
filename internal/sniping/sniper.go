// internal/sniping/sniper.go
package sniping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/logger"
	"github.com/rovshanmuradov/pumpwatch/internal/monitor"
	"github.com/rovshanmuradov/pumpwatch/internal/trading"
)

var (
	ErrInactive           = errors.New("sniper is inactive")
	ErrAlreadySeen        = errors.New("mint already handled")
	ErrFiltered           = errors.New("launch filtered")
	ErrPositionOpen       = errors.New("a position is already open")
	ErrMaxSnipesReached   = errors.New("max snipes reached")
	ErrReconnectExhausted = errors.New("launch stream reconnect attempts exhausted")
)

const eventBuffer = 64

// Snipe outcomes reported to the Recorder.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeFiltered = "filtered"
)

// TradingEngine executes buys and sells.
type TradingEngine interface {
	BuyToken(ctx context.Context, req trading.BuyRequest) (trading.BuyResult, error)
	SellToken(ctx context.Context, req trading.SellRequest) (trading.SellResult, error)
}

// PriceMonitor tracks prices of bought mints and fires alerts.
type PriceMonitor interface {
	StartCampaign(ctx context.Context, mint, pool solana.PublicKey) (string, error)
	AddAlert(campaignID string, spec monitor.AlertSpec) (string, error)
	GetCampaign(mint solana.PublicKey) (monitor.CampaignInfo, bool)
	StopCampaign(campaignID string)
}

// LaunchSource delivers detected launches until ctx ends or the stream fails.
type LaunchSource interface {
	Watch(ctx context.Context, out chan<- domain.LaunchEvent) error
}

// Journal records trade decisions.
type Journal interface {
	Record(r logger.TradeRecord) error
}

// Recorder counts snipe outcomes.
type Recorder interface {
	SnipeAttempt(outcome string)
}

type mintState int

const (
	stateBuying mintState = iota + 1
	stateBought
	stateFiltered
	stateClosed
)

// Sniper buys detected launches and manages the resulting positions.
type Sniper struct {
	cfg      Config
	source   LaunchSource
	engine   TradingEngine
	monitor  PriceMonitor
	journal  Journal
	recorder Recorder
	clock    clock.Clock
	logger   *zap.Logger

	events  chan Event
	dropped atomic.Uint64
	active  atomic.Bool

	mu        sync.Mutex
	mints     map[solana.PublicKey]mintState
	positions map[solana.PublicKey]*Position
	buying    int
	snipes    int
}

// Option configures a Sniper.
type Option func(*Sniper)

// WithJournal records every trade decision.
func WithJournal(j Journal) Option {
	return func(s *Sniper) { s.journal = j }
}

// WithRecorder reports snipe outcomes.
func WithRecorder(r Recorder) Option {
	return func(s *Sniper) { s.recorder = r }
}

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(s *Sniper) { s.clock = clk }
}

// New creates an active sniper. Call Validate on cfg first.
func New(cfg Config, source LaunchSource, engine TradingEngine, pm PriceMonitor, log *zap.Logger, opts ...Option) *Sniper {
	s := &Sniper{
		cfg:       cfg.withDefaults(),
		source:    source,
		engine:    engine,
		monitor:   pm,
		clock:     clock.New(),
		logger:    log.Named("sniper"),
		events:    make(chan Event, eventBuffer),
		mints:     make(map[solana.PublicKey]mintState),
		positions: make(map[solana.PublicKey]*Position),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.active.Store(true)
	return s
}

// Events returns the event channel. Events are dropped when nobody reads it.
func (s *Sniper) Events() <-chan Event {
	return s.events
}

// Active reports whether the sniper still accepts launches.
func (s *Sniper) Active() bool {
	return s.active.Load()
}

// Stop deactivates the sniper. Open positions keep being managed.
func (s *Sniper) Stop() {
	if s.active.CompareAndSwap(true, false) {
		s.logger.Info("Sniper stopped")
	}
}

// Positions returns copies of all positions.
func (s *Sniper) Positions() []Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	return out
}

// OpenPositions counts positions that are not closed.
func (s *Sniper) OpenPositions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

func (s *Sniper) openLocked() int {
	n := 0
	for _, p := range s.positions {
		if !p.Closed {
			n++
		}
	}
	return n
}

// Run consumes launches from the source until the sniper goes inactive, then
// keeps evaluating open positions until they close. A failed stream is
// reconnected ReconnectAttempts times before Run gives up with ErrReconnectExhausted.
func (s *Sniper) Run(ctx context.Context) error {
	s.emit(Started{At: s.clock.Now(), Mode: s.cfg.Mode, Wallet: s.cfg.Wallet})
	s.logger.Info("Sniper started",
		zap.String("mode", string(s.cfg.Mode)),
		zap.String("wallet", s.cfg.Wallet),
		zap.String("buy_amount_sol", s.cfg.BuyAmountSOL.String()))

	g, gctx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gctx)
	defer stopWatch()

	launches := make(chan domain.LaunchEvent, eventBuffer)

	g.Go(func() error {
		defer close(launches)
		return s.watch(watchCtx, launches)
	})

	g.Go(func() error {
		for launch := range launches {
			if err := s.HandleLaunch(gctx, launch); err != nil && !errors.Is(err, ErrAlreadySeen) {
				s.logger.Debug("Launch not sniped",
					zap.String("mint", launch.Mint.String()),
					zap.Error(err))
			}
			if !s.Active() {
				stopWatch()
			}
		}
		return nil
	})

	g.Go(func() error {
		ticker := s.clock.Ticker(s.cfg.EvaluateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				s.Evaluate(gctx)
				if !s.Active() && s.OpenPositions() == 0 {
					stopWatch()
					return nil
				}
			}
		}
	})

	err := g.Wait()
	s.logger.Info("Sniper finished",
		zap.Int("snipes", s.snipeCount()),
		zap.Uint64("dropped_events", s.dropped.Load()))
	return err
}

// watch runs the source, reconnecting with a fixed delay.
func (s *Sniper) watch(ctx context.Context, out chan<- domain.LaunchEvent) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.source.Watch(ctx, out)
		if ctx.Err() != nil || err == nil {
			return struct{}{}, nil
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.cfg.ReconnectDelay)),
		backoff.WithMaxTries(uint(s.cfg.ReconnectAttempts+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("Launch stream failed, reconnecting",
				zap.Error(err),
				zap.Duration("retry_in", next))
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.Stop()
		return fmt.Errorf("%w: %w", ErrReconnectExhausted, err)
	}
	return nil
}

// HandleLaunch applies the filters and buys the launch when they pass.
func (s *Sniper) HandleLaunch(ctx context.Context, launch domain.LaunchEvent) error {
	if !s.Active() {
		return ErrInactive
	}

	s.mu.Lock()
	if _, seen := s.mints[launch.Mint]; seen {
		s.mu.Unlock()
		return ErrAlreadySeen
	}
	if err := s.filterLocked(launch); err != nil {
		if errors.Is(err, ErrFiltered) {
			s.mints[launch.Mint] = stateFiltered
		}
		s.mu.Unlock()
		s.record(OutcomeFiltered)
		s.logger.Info("Launch filtered",
			zap.String("mint", launch.Mint.String()),
			zap.Error(err))
		return err
	}
	s.mints[launch.Mint] = stateBuying
	s.buying++
	s.mu.Unlock()

	res, err := s.engine.BuyToken(ctx, trading.BuyRequest{
		Mint:         launch.Mint,
		BondingCurve: launch.BondingCurve,
		Wallet:       s.cfg.Wallet,
		AmountSOL:    s.cfg.BuyAmountSOL,
		SlippageBps:  s.cfg.SlippageBps,
		PriorityFee:  s.cfg.PriorityFee,
		SkipTax:      s.cfg.SkipTax,
	})
	if err != nil {
		s.mu.Lock()
		delete(s.mints, launch.Mint)
		s.buying--
		s.mu.Unlock()

		s.record(OutcomeFailed)
		s.journalRecord(logger.ActionBuyFailed, launch.Mint, s.cfg.BuyAmountSOL.String(), 0, "", "")
		s.emit(SnipeFailed{At: s.clock.Now(), Mint: launch.Mint, Err: err})
		s.logger.Error("Snipe failed",
			zap.String("mint", launch.Mint.String()),
			zap.Error(err))
		return fmt.Errorf("buy %s: %w", launch.Mint, err)
	}

	price := res.Price
	if price <= 0 && res.TokenAmount.IsPositive() {
		price = res.SpentSOL.Div(res.TokenAmount).InexactFloat64()
	}

	pos := &Position{
		Mint:           launch.Mint,
		BondingCurve:   launch.BondingCurve,
		BuyPrice:       price,
		CurrentPrice:   price,
		InitialTokens:  res.TokenAmount,
		TokenAmount:    res.TokenAmount,
		CostSOL:        res.SpentSOL,
		EntryTime:      s.clock.Now(),
		EntrySignature: res.Signature,
	}

	s.mu.Lock()
	s.mints[launch.Mint] = stateBought
	s.positions[launch.Mint] = pos
	s.buying--
	s.snipes++
	s.mu.Unlock()

	if s.cfg.Mode == ModeSingle {
		s.Stop()
	}

	s.record(OutcomeSuccess)
	s.journalRecord(logger.ActionBuy, launch.Mint, res.TokenAmount.String(), price, "", res.Signature)
	s.emit(SnipeSuccess{
		At:          s.clock.Now(),
		Mint:        launch.Mint,
		Signature:   res.Signature,
		Price:       price,
		TokenAmount: res.TokenAmount,
		SpentSOL:    res.SpentSOL,
	})
	s.logger.Info("Snipe succeeded",
		zap.String("mint", launch.Mint.String()),
		zap.String("signature", res.Signature),
		zap.Float64("price", price),
		zap.String("tokens", res.TokenAmount.String()))

	s.arm(ctx, pos)
	return nil
}

// filterLocked applies, in order: graduated, liquidity, max snipes, open position.
func (s *Sniper) filterLocked(launch domain.LaunchEvent) error {
	snap := launch.Snapshot

	if s.cfg.ExcludeGraduated && snap != nil && snap.Graduated() {
		return fmt.Errorf("%w: curve already graduated", ErrFiltered)
	}

	if s.cfg.liquidityBounded() {
		if snap == nil {
			return fmt.Errorf("%w: no curve snapshot to check liquidity", ErrFiltered)
		}
		liq := pumpfun.Liquidity(*snap)
		if liq.LessThan(s.cfg.MinLiquiditySOL) {
			return fmt.Errorf("%w: liquidity %s SOL below %s", ErrFiltered, liq, s.cfg.MinLiquiditySOL)
		}
		if s.cfg.MaxLiquiditySOL.IsPositive() && liq.GreaterThan(s.cfg.MaxLiquiditySOL) {
			return fmt.Errorf("%w: liquidity %s SOL above %s", ErrFiltered, liq, s.cfg.MaxLiquiditySOL)
		}
	}

	if s.cfg.Mode == ModeAll && s.cfg.MaxSnipes > 0 && s.snipes+s.buying >= s.cfg.MaxSnipes {
		s.active.Store(false)
		return ErrMaxSnipesReached
	}

	if s.cfg.Mode == ModeOneAtATime && (s.buying > 0 || s.openLocked() > 0) {
		return ErrPositionOpen
	}
	return nil
}

// arm starts a price campaign for pos with a stop-loss and the take-profit ladder.
func (s *Sniper) arm(ctx context.Context, pos *Position) {
	if s.monitor == nil {
		return
	}

	id, err := s.monitor.StartCampaign(ctx, pos.Mint, pos.BondingCurve)
	if err != nil {
		s.logger.Warn("Failed to start price campaign",
			zap.String("mint", pos.Mint.String()),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	pos.CampaignID = id
	buyPrice := pos.BuyPrice
	s.mu.Unlock()

	var specs []monitor.AlertSpec
	if s.cfg.StopLossPercent > 0 {
		specs = append(specs, monitor.AlertSpec{
			Label:     "stop-loss",
			Threshold: -s.cfg.StopLossPercent,
			Direction: monitor.Below,
			Metric:    monitor.MetricPercentChange,
			Reference: buyPrice,
			Actions:   []monitor.Action{{Type: monitor.ActionSell, Fraction: 1}},
		})
	}
	for i, tp := range s.cfg.TakeProfits {
		specs = append(specs, monitor.AlertSpec{
			Label:     fmt.Sprintf("take-profit-%d", i+1),
			Threshold: tp.Percent,
			Direction: monitor.Above,
			Metric:    monitor.MetricPercentChange,
			Reference: buyPrice,
			Actions:   []monitor.Action{{Type: monitor.ActionSell, Fraction: tp.SellFraction}},
		})
	}

	for _, spec := range specs {
		if _, err := s.monitor.AddAlert(id, spec); err != nil {
			s.logger.Warn("Failed to arm alert",
				zap.String("mint", pos.Mint.String()),
				zap.String("label", spec.Label),
				zap.Error(err))
		}
	}
}

// Evaluate reprices every open position from the price monitor.
func (s *Sniper) Evaluate(ctx context.Context) {
	if s.monitor == nil || ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	var updated []Position
	for mint, pos := range s.positions {
		if pos.Closed {
			continue
		}
		info, ok := s.monitor.GetCampaign(mint)
		if !ok || info.CurrentPrice <= 0 {
			continue
		}
		pos.mark(info.CurrentPrice, s.cfg)
		updated = append(updated, *pos)
	}
	s.mu.Unlock()

	now := s.clock.Now()
	for _, p := range updated {
		s.emit(PositionUpdate{At: now, Position: p})
		s.logger.Debug("Position evaluated",
			zap.String("mint", p.Mint.String()),
			zap.Float64("price", p.CurrentPrice),
			zap.Float64("profit_percent", p.ProfitPercent),
			zap.Bool("stop_loss_hit", p.StopLossHit),
			zap.Bool("take_profit_hit", p.TakeProfitHit))
	}
}

// HandleAction executes alert actions for the monitor. Sell actions sell a
// fraction of the original position; a position is closed once all of it is sold.
func (s *Sniper) HandleAction(ctx context.Context, fired monitor.Fired, action monitor.Action) error {
	mint := fired.Campaign.Mint

	if action.Type == monitor.ActionNotify {
		s.logger.Info("Alert fired",
			zap.String("mint", mint.String()),
			zap.String("label", fired.Alert.Spec.Label),
			zap.Float64("price", fired.Price))
		s.journalRecord(logger.ActionAlert, mint, fired.Alert.Spec.Label, fired.Price, "", "")
		return nil
	}
	if action.Type != monitor.ActionSell {
		return fmt.Errorf("unsupported action %q", action.Type)
	}

	s.mu.Lock()
	pos, ok := s.positions[mint]
	if !ok || pos.Closed {
		s.mu.Unlock()
		return nil
	}
	amount := pos.InitialTokens.Mul(decimal.NewFromFloat(action.Fraction))
	if avail := pos.available(); amount.GreaterThan(avail) {
		amount = avail
	}
	if !amount.IsPositive() {
		s.mu.Unlock()
		return nil
	}
	pos.pending = pos.pending.Add(amount)
	curve := pos.BondingCurve
	s.mu.Unlock()

	res, err := s.engine.SellToken(ctx, trading.SellRequest{
		Mint:         mint,
		BondingCurve: curve,
		Wallet:       s.cfg.Wallet,
		TokenAmount:  amount,
		SlippageBps:  s.cfg.SlippageBps,
		PriorityFee:  s.cfg.PriorityFee,
		SkipTax:      s.cfg.SkipTax,
	})

	s.mu.Lock()
	pos.pending = pos.pending.Sub(amount)
	if err != nil {
		s.mu.Unlock()
		s.journalRecord(logger.ActionSellFailed, mint, amount.String(), fired.Price, "", "")
		s.logger.Error("Sell failed",
			zap.String("mint", mint.String()),
			zap.String("label", fired.Alert.Spec.Label),
			zap.Error(err))
		return fmt.Errorf("sell %s: %w", mint, err)
	}

	pos.TokenAmount = pos.TokenAmount.Sub(amount)
	pos.RealizedSOL = pos.RealizedSOL.Add(res.ReceivedSOL)
	if pos.InitialTokens.IsPositive() {
		pos.SoldFraction = pos.InitialTokens.Sub(pos.TokenAmount).Div(pos.InitialTokens).InexactFloat64()
	}
	if res.Price > 0 {
		pos.mark(res.Price, s.cfg)
	}
	var campaignID string
	if pos.SoldFraction >= 1-fractionEpsilon || !pos.TokenAmount.IsPositive() {
		pos.Closed = true
		pos.Profit = pos.RealizedSOL.Sub(pos.CostSOL)
		s.mints[mint] = stateClosed
		campaignID = pos.CampaignID
	}
	snapshot := *pos
	s.mu.Unlock()

	if campaignID != "" && s.monitor != nil {
		s.monitor.StopCampaign(campaignID)
	}

	s.journalRecord(logger.ActionSell, mint, amount.String(), res.Price, snapshot.Profit.String(), res.Signature)
	s.emit(PositionUpdate{At: s.clock.Now(), Position: snapshot})
	s.logger.Info("Position sold",
		zap.String("mint", mint.String()),
		zap.String("label", fired.Alert.Spec.Label),
		zap.String("tokens", amount.String()),
		zap.String("received_sol", res.ReceivedSOL.String()),
		zap.Float64("sold_fraction", snapshot.SoldFraction),
		zap.Bool("closed", snapshot.Closed))
	return nil
}

func (s *Sniper) snipeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snipes
}

func (s *Sniper) emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
	}
}

func (s *Sniper) record(outcome string) {
	if s.recorder != nil {
		s.recorder.SnipeAttempt(outcome)
	}
}

func (s *Sniper) journalRecord(action string, mint solana.PublicKey, amount string, price float64, pnl, signature string) {
	if s.journal == nil {
		return
	}
	err := s.journal.Record(logger.TradeRecord{
		Timestamp: s.clock.Now(),
		Wallet:    s.cfg.Wallet,
		Token:     mint.String(),
		Action:    action,
		Amount:    amount,
		Price:     price,
		PnL:       pnl,
		Signature: signature,
	})
	if err != nil {
		s.logger.Warn("Failed to write trade journal", zap.Error(err))
	}
}
