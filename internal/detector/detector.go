// Package detector watches the launch program's logs, recognises token
// launches and resolves the mint and bonding curve each one created.
package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpwatch/internal/blockchain/rpc"
	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/events"
	"go.uber.org/zap"
)

var (
	ErrNotLaunch       = errors.New("transaction is not a launch")
	ErrAlreadyTracking = errors.New("detector already tracks a mint")
	ErrDuplicateLaunch = errors.New("launch already reported")
	ErrStreamClosed    = errors.New("log stream closed")
)

// State of the detector.
type State int32

const (
	StateIdle State = iota
	StateLaunchDetected
	StateTracking
	StateIgnored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunchDetected:
		return "launch-detected"
	case StateTracking:
		return "tracking"
	case StateIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// LogSubscriber opens a logs subscription for a mentioned address.
type LogSubscriber interface {
	Logs(ctx context.Context, mention string) (rpc.Stream, error)
}

// Publisher receives detector events. *events.Bus satisfies it.
type Publisher interface {
	Publish(event events.Event) error
}

// Detector runs the launch state machine over one log stream.
type Detector struct {
	cfg        Config
	resolver   *Resolver
	reader     ChainReader
	subscriber LogSubscriber
	publisher  Publisher
	logger     *zap.Logger

	mu      sync.Mutex
	state   State
	tracked solana.PublicKey
	seen    map[string]struct{}
	wg      sync.WaitGroup
}

// Option configures a Detector.
type Option func(*Detector)

// WithPublisher sends LaunchDetected, LaunchFailed and stream events to p.
func WithPublisher(p Publisher) Option {
	return func(d *Detector) { d.publisher = p }
}

// New creates a detector. reader may be nil; then only the log tier resolves
// mints and the initial snapshot comes from the logs alone.
func New(cfg Config, reader ChainReader, subscriber LogSubscriber, logger *zap.Logger, opts ...Option) *Detector {
	cfg = cfg.withDefaults()
	logger = logger.Named("detector")

	d := &Detector{
		cfg:        cfg,
		resolver:   NewResolver(cfg, reader, logger),
		reader:     reader,
		subscriber: subscriber,
		logger:     logger,
		seen:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Tracked returns the mint being tracked, if any.
func (d *Detector) Tracked() (solana.PublicKey, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracked, d.state == StateTracking
}

// Watch subscribes to the program's logs and sends each resolved launch to out.
// In single-target mode it returns nil after the first launch. Otherwise it
// runs until ctx ends or the subscription fails for good.
func (d *Detector) Watch(ctx context.Context, out chan<- domain.LaunchEvent) error {
	stream, err := d.subscriber.Logs(ctx, pumpfun.PumpFunProgramID.String())
	if err != nil {
		return fmt.Errorf("subscribe to program logs: %w", err)
	}
	defer stream.Close()
	defer d.wg.Wait()

	d.publish(events.NewStreamEvent(events.StreamStarted, "logs", "started"))
	d.logger.Info("Watching for launches",
		zap.String("program", pumpfun.PumpFunProgramID.String()),
		zap.Bool("follow", d.cfg.FollowLaunches))

	for {
		select {
		case <-ctx.Done():
			d.publish(events.NewStreamEvent(events.StreamStopped, "logs", "closed"))
			return ctx.Err()

		case raw, ok := <-stream.Notifications():
			if !ok {
				err := stream.Err()
				if err == nil {
					err = ErrStreamClosed
				}
				d.publish(events.NewStreamEvent(events.StreamStopped, "logs", "failed"))
				return err
			}

			var res rpc.LogsResult
			if err := json.Unmarshal(raw, &res); err != nil {
				d.logger.Debug("Skipping malformed logs notification", zap.Error(err))
				continue
			}
			if res.Value.Err != nil || !IsLaunch(res.Value.Logs) {
				continue
			}

			if d.cfg.FollowLaunches {
				d.wg.Add(1)
				go func() {
					defer d.wg.Done()
					d.handleAndSend(ctx, res, out)
				}()
				continue
			}

			if d.handleAndSend(ctx, res, out) {
				return nil
			}
		}
	}
}

func (d *Detector) handleAndSend(ctx context.Context, res rpc.LogsResult, out chan<- domain.LaunchEvent) bool {
	launch, err := d.HandleLogs(ctx, res.Value.Signature, res.Context.Slot, res.Value.Logs)
	if err != nil {
		if !errors.Is(err, ErrNotLaunch) && !errors.Is(err, ErrDuplicateLaunch) && !errors.Is(err, ErrAlreadyTracking) {
			d.logger.Warn("Launch ignored",
				zap.String("signature", res.Value.Signature),
				zap.Error(err))
		}
		return false
	}

	select {
	case out <- launch:
		return true
	case <-ctx.Done():
		return false
	}
}

// HandleLogs runs detection, resolution and curve lookup for one transaction.
func (d *Detector) HandleLogs(ctx context.Context, signature string, slot uint64, logs []string) (domain.LaunchEvent, error) {
	if !IsLaunch(logs) {
		return domain.LaunchEvent{}, ErrNotLaunch
	}

	d.mu.Lock()
	if !d.cfg.FollowLaunches && d.state == StateTracking {
		d.mu.Unlock()
		return domain.LaunchEvent{}, ErrAlreadyTracking
	}
	d.state = StateLaunchDetected
	d.mu.Unlock()

	d.logger.Info("Launch detected", zap.String("signature", signature), zap.Uint64("slot", slot))

	launch, err := d.resolve(ctx, signature, slot, logs)
	if err != nil {
		if !errors.Is(err, ErrDuplicateLaunch) {
			mint := ""
			if !launch.Mint.IsZero() {
				mint = launch.Mint.String()
			}
			d.publish(events.NewLaunchFailed(signature, mint, err))
		}
		d.setState(StateIgnored, solana.PublicKey{})
		return domain.LaunchEvent{}, err
	}

	d.setState(StateTracking, launch.Mint)
	d.publish(events.NewLaunchDetected(launch))

	d.logger.Info("Tracking mint",
		zap.String("mint", launch.Mint.String()),
		zap.String("bonding_curve", launch.BondingCurve.String()),
		zap.String("source", launch.Source))
	return launch, nil
}

func (d *Detector) resolve(ctx context.Context, signature string, slot uint64, logs []string) (domain.LaunchEvent, error) {
	launch := domain.LaunchEvent{
		Signature:  signature,
		Slot:       slot,
		DetectedAt: time.Now(),
	}

	mint, source, err := d.resolver.Resolve(ctx, signature, logs)
	if err != nil {
		return launch, err
	}
	launch.Mint = mint
	launch.Source = source

	if !d.markSeen(launch.Key()) {
		return launch, ErrDuplicateLaunch
	}

	curve, err := pumpfun.DeriveBondingCurveAddress(mint)
	if err != nil {
		return launch, err
	}
	launch.BondingCurve = curve
	launch.Snapshot = pumpfun.FirstLogSnapshot(logs)

	if d.reader == nil {
		return launch, nil
	}

	snap, err := AwaitBondingCurve(ctx, d.reader, curve, d.cfg, d.logger)
	if err != nil {
		return launch, err
	}
	launch.Snapshot = snap
	return launch, nil
}

func (d *Detector) markSeen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

func (d *Detector) setState(s State, mint solana.PublicKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
	d.tracked = mint
}

func (d *Detector) publish(e events.Event) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(e); err != nil {
		d.logger.Debug("Event not delivered", zap.String("type", string(e.Type())), zap.Error(err))
	}
}
