// internal/app/runner.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/pumpwatch/internal/blockchain/rpc"
	"github.com/rovshanmuradov/pumpwatch/internal/config"
	"github.com/rovshanmuradov/pumpwatch/internal/detector"
	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/events"
	"github.com/rovshanmuradov/pumpwatch/internal/logger"
	"github.com/rovshanmuradov/pumpwatch/internal/metrics"
	"github.com/rovshanmuradov/pumpwatch/internal/monitor"
	"github.com/rovshanmuradov/pumpwatch/internal/publish"
	"github.com/rovshanmuradov/pumpwatch/internal/sniping"
	"github.com/rovshanmuradov/pumpwatch/internal/storage"
	"github.com/rovshanmuradov/pumpwatch/internal/storage/postgres"
	"github.com/rovshanmuradov/pumpwatch/internal/trading/paper"
)

const (
	busBuffer          = 256
	launchBuffer       = 16
	shutdownTimeout    = 5 * time.Second
	journalFlushPeriod = 5 * time.Second
)

// Runner wires the RPC clients, detector, candle pipelines, monitor and sniper.
type Runner struct {
	logger     *zap.Logger
	config     *config.Config
	flags      config.Flags
	shutdownCh chan os.Signal
}

// NewRunner принимает cfg, flags и logger
func NewRunner(cfg *config.Config, flags config.Flags, logger *zap.Logger) *Runner {
	return &Runner{
		logger:     logger,
		config:     cfg,
		flags:      flags,
		shutdownCh: make(chan os.Signal, 1),
	}
}

type components struct {
	collector *metrics.Collector
	rpc       *rpc.Client
	ws        *rpc.WSClient
	bus       *events.Bus
	detector  *detector.Detector
	monitor   *monitor.Service
	pipelines *Pipelines
	closers   []func()
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Run blocks until a signal arrives, ctx ends or the active mode finishes.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(r.shutdownCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case sig := <-r.shutdownCh:
			r.logger.Info("Signal received: " + sig.String())
			cancel()
		case <-runCtx.Done():
		}
	}()

	c, err := r.setup(runCtx)
	if err != nil {
		return err
	}
	defer c.close()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return c.collector.Serve(gctx, r.config.MetricsAddr, r.logger.Named("metrics"))
	})
	g.Go(func() error {
		return r.serveCandles(gctx, c.pipelines)
	})
	g.Go(func() error {
		return c.monitor.Run(gctx)
	})

	switch r.flags.Mode {
	case config.ModeSnipe:
		if err := r.startSniper(gctx, g, c, cancel); err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
	default:
		r.startMonitor(gctx, g, c)
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	r.logger.Info("Shutdown complete",
		zap.Int("pipelines", c.pipelines.Len()))
	return err
}

func (r *Runner) setup(ctx context.Context) (*components, error) {
	cfg := r.config
	c := &components{collector: metrics.NewCollector()}

	rpcClient, err := rpc.NewClient(cfg.RPCList, r.logger,
		rpc.WithRotation(cfg.RotateEndpoints),
		rpc.WithRateLimit(cfg.RateWindow, cfg.RateCeiling),
		rpc.WithRetry(uint(cfg.MaxRetries), rpc.DefaultInitialBackoff, rpc.DefaultMaxBackoff),
		rpc.WithObserver(c.collector),
	)
	if err != nil {
		return nil, fmt.Errorf("create rpc client: %w", err)
	}
	c.rpc = rpcClient

	ws, err := rpc.NewWSClient(cfg.WSList, rpc.WSConfig{
		ReconnectAttempts: uint(cfg.WSReconnectAttempts),
		ReconnectDelay:    cfg.WSReconnectDelay,
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("create websocket client: %w", err)
	}
	c.ws = ws

	c.bus = events.NewBus(r.logger, busBuffer)
	c.closers = append(c.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.bus.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("Event bus shutdown incomplete", zap.Error(err))
		}
	})
	c.collector.Bind(c.bus)

	if cfg.PostgresURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.PostgresURL)
		if err != nil {
			c.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		if err := pool.Migrate(ctx); err != nil {
			c.close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		storage.Bind(c.bus, postgres.NewCandleStore(pool), postgres.NewLaunchStore(pool), r.logger)
		r.logger.Info("Persisting candles and launches to postgres")
	}

	if cfg.Redis.Addr != "" {
		client := publish.NewRedisClient(cfg.Redis.Addr, r.logger)
		c.closers = append(c.closers, func() { _ = client.Close() })
		publish.NewRedisPublisher(client, cfg.Redis.Stream, cfg.Redis.MaxLen, r.logger).Bind(c.bus)
	}

	detCfg := cfg.DetectorSettings()
	if r.flags.Mode == config.ModeSnipe {
		detCfg.FollowLaunches = true
	}
	c.detector = detector.New(detCfg, rpcClient, ws, r.logger, detector.WithPublisher(c.bus))

	decimals := uint8(cfg.TokenDecimals)
	c.monitor = monitor.NewService(rpcClient, monitor.Config{
		Interval: cfg.Monitor.Interval,
		Decimals: decimals,
	}, r.logger)

	c.pipelines = NewPipelines(ws, c.bus, c.monitor, cfg.CandleInterval, cfg.HistoryDepth, decimals, r.logger)
	c.closers = append(c.closers, c.pipelines.Close)

	if err := c.collector.RegisterGauge("ohlc", "pipelines", "Curves with a running candle pipeline.",
		func() float64 { return float64(c.pipelines.Len()) }); err != nil {
		r.logger.Warn("Failed to register gauge", zap.Error(err))
	}
	if err := c.collector.RegisterGauge("ohlc", "listeners", "Connected candle stream listeners.",
		func() float64 { return float64(c.pipelines.Listeners()) }); err != nil {
		r.logger.Warn("Failed to register gauge", zap.Error(err))
	}

	return c, nil
}

func (r *Runner) serveCandles(ctx context.Context, pipelines *Pipelines) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", pipelines)
	mux.Handle("/ws/", pipelines)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              r.config.BroadcastAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("Candle stream listening", zap.String("addr", r.config.BroadcastAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("candle stream server: %w", err)
	}
}

// startMonitor tracks a known mint, or detects launches and tracks each one.
func (r *Runner) startMonitor(ctx context.Context, g *errgroup.Group, c *components) {
	if r.flags.Mint != "" {
		g.Go(func() error {
			return r.trackMint(ctx, c)
		})
		return
	}

	launches := make(chan domain.LaunchEvent, launchBuffer)

	g.Go(func() error {
		if r.flags.Backfill {
			r.backfill(ctx, c, launches)
		}
		err := c.detector.Watch(ctx, launches)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("launch detection: %w", err)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case l := <-launches:
				c.pipelines.Start(ctx, l.Mint, l.BondingCurve, l.Snapshot)
			}
		}
	})
}

func (r *Runner) trackMint(ctx context.Context, c *components) error {
	mint, err := solana.PublicKeyFromBase58(r.flags.Mint)
	if err != nil {
		return fmt.Errorf("invalid mint: %w", err)
	}
	curve, err := pumpfun.DeriveBondingCurveAddress(mint)
	if err != nil {
		return fmt.Errorf("derive bonding curve: %w", err)
	}

	log := logger.WithOperation(r.logger, "track_mint")
	snap, err := detector.AwaitBondingCurve(ctx, c.rpc, curve, r.config.DetectorSettings(), log)
	if err != nil {
		return fmt.Errorf("bonding curve %s: %w", curve, err)
	}
	if snap.Graduated() {
		log.Warn("Curve already complete, candles will not update", zap.String("mint", mint.String()))
	}

	c.pipelines.Start(ctx, mint, curve, snap)
	<-ctx.Done()
	return nil
}

func (r *Runner) backfill(ctx context.Context, c *components, out chan<- domain.LaunchEvent) {
	bf, err := r.config.BackfillSettings()
	if err != nil {
		r.logger.Warn("Backfill skipped", zap.Error(err))
		return
	}

	found, err := c.detector.Backfill(ctx, c.rpc, bf)
	if err != nil {
		r.logger.Warn("Backfill incomplete", zap.Error(err))
	}
	r.logger.Info("Backfill finished", zap.Int("launches", len(found)))

	for _, l := range found {
		select {
		case out <- l:
		case <-ctx.Done():
			return
		}
	}
}

// startSniper runs the paper sniper; the whole run ends when it finishes.
func (r *Runner) startSniper(ctx context.Context, g *errgroup.Group, c *components, cancel context.CancelFunc) error {
	sc, err := r.config.SniperSettings()
	if err != nil {
		return fmt.Errorf("sniper settings: %w", err)
	}

	journal, err := logger.NewTradeJournal(r.config.Sniper.JournalPath, journalFlushPeriod, r.logger)
	if err != nil {
		return fmt.Errorf("open trade journal: %w", err)
	}

	engine := paper.NewEngine(c.rpc, uint8(r.config.TokenDecimals), r.logger)
	sniper := sniping.New(sc, c.detector, engine, c.monitor, r.logger,
		sniping.WithJournal(journal),
		sniping.WithRecorder(c.collector),
	)
	c.monitor.SetActionHandler(sniper)

	g.Go(func() error {
		defer func() {
			if err := journal.Close(); err != nil {
				r.logger.Warn("Failed to close trade journal", zap.Error(err))
			}
		}()
		err := sniper.Run(ctx)
		pnl := engine.PnL(sc.Wallet)
		r.logger.Info("Sniper finished",
			zap.Int("positions", len(sniper.Positions())),
			zap.String("pnl_sol", pnl.String()))
		cancel()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-sniper.Events():
				r.handleSniperEvent(ctx, c, ev)
			}
		}
	})
	return nil
}

func (r *Runner) handleSniperEvent(ctx context.Context, c *components, ev sniping.Event) {
	switch e := ev.(type) {
	case sniping.Started:
		r.logger.Info("Sniper started",
			zap.String("mode", string(e.Mode)),
			zap.String("wallet", e.Wallet))
	case sniping.SnipeSuccess:
		curve, err := pumpfun.DeriveBondingCurveAddress(e.Mint)
		if err != nil {
			r.logger.Warn("Cannot chart sniped mint", zap.String("mint", e.Mint.String()), zap.Error(err))
			return
		}
		c.pipelines.Start(ctx, e.Mint, curve, nil)
	case sniping.PositionUpdate:
		if e.Position.Closed {
			r.logger.Info("Position closed",
				zap.String("mint", e.Position.Mint.String()),
				zap.String("profit_sol", e.Position.Profit.String()))
			return
		}
		r.logger.Debug("Position updated",
			zap.String("mint", e.Position.Mint.String()),
			zap.Float64("profit_percent", e.Position.ProfitPercent))
	case sniping.SnipeFailed:
		r.logger.Debug("Snipe failed", zap.String("mint", e.Mint.String()), zap.Error(e.Err))
	}
}
