// Package monitor tracks bonding-curve prices per mint and fires one-shot
// alerts with actions when thresholds are crossed.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rovshanmuradov/pumpwatch/internal/blockchain/rpc"
	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"go.uber.org/zap"
)

const (
	DefaultInterval       = 2 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrCampaignStopped  = errors.New("campaign stopped")
)

// AccountReader fetches curve accounts.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.AccountResult, error)
}

// ActionHandler executes the actions of fired alerts.
type ActionHandler interface {
	HandleAction(ctx context.Context, fired Fired, action Action) error
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, fired Fired, action Action) error

// HandleAction calls f.
func (f ActionHandlerFunc) HandleAction(ctx context.Context, fired Fired, action Action) error {
	return f(ctx, fired, action)
}

// CampaignInfo is a snapshot of one monitored mint.
type CampaignInfo struct {
	ID            string           `json:"id"`
	Mint          solana.PublicKey `json:"mint"`
	Pool          solana.PublicKey `json:"pool"`
	InitialPrice  float64          `json:"initial_price"`
	CurrentPrice  float64          `json:"current_price"`
	ChangePercent float64          `json:"change_percent"`
	Graduated     bool             `json:"graduated"`
	StartedAt     time.Time        `json:"started_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Alerts        int              `json:"alerts"`
	Active        bool             `json:"active"`
}

type campaign struct {
	info   CampaignInfo
	alerts []*Alert
}

// Config tunes the monitor.
type Config struct {
	Interval       time.Duration
	Decimals       uint8
	RequestTimeout time.Duration
}

// Service is the price monitor. Prices come from polling each campaign's
// curve account or from Observe.
type Service struct {
	reader  AccountReader
	config  Config
	handler ActionHandler
	clock   clock.Clock
	logger  *zap.Logger

	mu        sync.RWMutex
	campaigns map[string]*campaign
	byMint    map[solana.PublicKey]string
}

// Option configures Service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) { s.clock = clk }
}

// WithActionHandler sets the handler that receives fired actions.
func WithActionHandler(h ActionHandler) Option {
	return func(s *Service) { s.handler = h }
}

// NewService creates a price monitor. reader may be nil when prices are only pushed through Observe.
func NewService(reader AccountReader, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = pumpfun.TokenDecimals
	}

	s := &Service{
		reader:    reader,
		config:    cfg,
		clock:     clock.New(),
		logger:    logger.Named("price_monitor"),
		campaigns: make(map[string]*campaign),
		byMint:    make(map[solana.PublicKey]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetActionHandler replaces the action handler. Used when the handler itself depends on the monitor.
func (s *Service) SetActionHandler(h ActionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// StartCampaign begins monitoring mint through its pool account. Starting an
// already monitored mint returns the existing campaign.
func (s *Service) StartCampaign(ctx context.Context, mint, pool solana.PublicKey) (string, error) {
	s.mu.Lock()
	if id, ok := s.byMint[mint]; ok && s.campaigns[id].info.Active {
		s.mu.Unlock()
		return id, nil
	}

	id := uuid.New().String()
	s.campaigns[id] = &campaign{info: CampaignInfo{
		ID:        id,
		Mint:      mint,
		Pool:      pool,
		StartedAt: s.clock.Now(),
		Active:    true,
	}}
	s.byMint[mint] = id
	s.mu.Unlock()

	s.logger.Info("Campaign started",
		zap.String("campaign_id", id),
		zap.String("mint", mint.String()),
		zap.String("pool", pool.String()))

	if s.reader != nil {
		if err := s.poll(ctx, id, pool); err != nil {
			s.logger.Debug("Initial price unavailable", zap.String("campaign_id", id), zap.Error(err))
		}
	}
	return id, nil
}

// AddAlert arms an alert on a campaign and returns its id.
func (s *Service) AddAlert(campaignID string, spec AlertSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[campaignID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrCampaignNotFound, campaignID)
	}
	if !c.info.Active {
		return "", fmt.Errorf("%w: %s", ErrCampaignStopped, campaignID)
	}

	a := &Alert{ID: uuid.New().String(), CampaignID: campaignID, Spec: spec}
	c.alerts = append(c.alerts, a)
	c.info.Alerts = len(c.alerts)

	s.logger.Debug("Alert armed",
		zap.String("campaign_id", campaignID),
		zap.String("alert_id", a.ID),
		zap.String("label", spec.Label),
		zap.Float64("threshold", spec.Threshold),
		zap.String("direction", string(spec.Direction)))
	return a.ID, nil
}

// GetCampaign returns the active or stopped campaign for mint.
func (s *Service) GetCampaign(mint solana.PublicKey) (CampaignInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byMint[mint]
	if !ok {
		return CampaignInfo{}, false
	}
	return s.campaigns[id].info, true
}

// Alerts returns copies of a campaign's alerts.
func (s *Service) Alerts(campaignID string) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return nil
	}
	out := make([]Alert, 0, len(c.alerts))
	for _, a := range c.alerts {
		out = append(out, *a)
	}
	return out
}

// StopCampaign stops polling a campaign. Its last state stays readable.
func (s *Service) StopCampaign(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[campaignID]; ok && c.info.Active {
		c.info.Active = false
		s.logger.Info("Campaign stopped", zap.String("campaign_id", campaignID))
	}
}

// Observe records a price for mint, evaluates its alerts and dispatches the actions of those that fire.
func (s *Service) Observe(ctx context.Context, mint solana.PublicKey, price float64) error {
	now := s.clock.Now()

	s.mu.Lock()
	id, ok := s.byMint[mint]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: mint %s", ErrCampaignNotFound, mint)
	}
	c := s.campaigns[id]
	if !c.info.Active {
		s.mu.Unlock()
		return nil
	}

	if c.info.InitialPrice == 0 {
		c.info.InitialPrice = price
	}
	c.info.CurrentPrice = price
	c.info.ChangePercent = (price - c.info.InitialPrice) / c.info.InitialPrice * 100
	c.info.UpdatedAt = now

	var fired []Fired
	for _, a := range c.alerts {
		if a.check(price, c.info.InitialPrice) {
			a.Fired = true
			a.FiredAt = now
			a.FiredPrice = price
			fired = append(fired, Fired{Alert: *a, Price: price})
		}
	}
	info := c.info
	handler := s.handler
	s.mu.Unlock()

	for _, f := range fired {
		f.Campaign = info
		s.logger.Info("Alert fired",
			zap.String("campaign_id", info.ID),
			zap.String("alert_id", f.Alert.ID),
			zap.String("label", f.Alert.Spec.Label),
			zap.Float64("price", price),
			zap.Float64("change_percent", info.ChangePercent))
		s.dispatch(ctx, handler, f)
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, handler ActionHandler, f Fired) {
	if handler == nil {
		return
	}
	for _, action := range f.Alert.Spec.Actions {
		if err := handler.HandleAction(ctx, f, action); err != nil {
			s.logger.Error("Alert action failed",
				zap.String("alert_id", f.Alert.ID),
				zap.String("action", string(action.Type)),
				zap.Error(err))
		}
	}
}

// PollOnce refreshes every active campaign from chain.
func (s *Service) PollOnce(ctx context.Context) {
	s.mu.RLock()
	targets := make(map[string]solana.PublicKey, len(s.campaigns))
	for id, c := range s.campaigns {
		if c.info.Active {
			targets[id] = c.info.Pool
		}
	}
	s.mu.RUnlock()

	for id, pool := range targets {
		if err := s.poll(ctx, id, pool); err != nil {
			s.logger.Warn("Price poll failed",
				zap.String("campaign_id", id),
				zap.Error(err))
		}
	}
}

func (s *Service) poll(ctx context.Context, id string, pool solana.PublicKey) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	acc, err := s.reader.GetAccountInfo(ctx, pool)
	if err != nil {
		return err
	}
	if acc == nil || acc.Value == nil {
		return fmt.Errorf("pool account %s not found", pool)
	}
	data, err := acc.Value.Bytes()
	if err != nil {
		return err
	}
	bc, err := pumpfun.DecodeAccountLayout(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	c, ok := s.campaigns[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	c.info.Graduated = bc.Complete
	mint := c.info.Mint
	s.mu.Unlock()

	price, ok := pumpfun.ComputePrice(bc, s.config.Decimals)
	if !ok {
		return fmt.Errorf("no price for pool %s", pool)
	}
	return s.Observe(ctx, mint, price)
}

// Run polls all campaigns every interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if s.reader == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	s.logger.Info("Price monitor started", zap.Duration("interval", s.config.Interval))
	ticker := s.clock.Ticker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Price monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}
