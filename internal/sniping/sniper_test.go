package sniping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/monitor"
	"github.com/rovshanmuradov/pumpwatch/internal/trading"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("One-At-A-Time")
	require.NoError(t, err)
	assert.Equal(t, ModeOneAtATime, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, m)

	_, err = ParseMode("yolo")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no wallet", func(c *Config) { c.Wallet = "" }, true},
		{"zero amount", func(c *Config) { c.BuyAmountSOL = decimal.Zero }, true},
		{"slippage too high", func(c *Config) { c.SlippageBps = 10001 }, true},
		{"bad mode", func(c *Config) { c.Mode = "yolo" }, true},
		{"stop loss 100", func(c *Config) { c.StopLossPercent = 100 }, true},
		{"descending targets", func(c *Config) {
			c.TakeProfits = []TakeProfit{{Percent: 100, SellFraction: 0.5}, {Percent: 50, SellFraction: 0.5}}
		}, true},
		{"fractions over one", func(c *Config) {
			c.TakeProfits = []TakeProfit{{Percent: 50, SellFraction: 0.7}, {Percent: 100, SellFraction: 0.7}}
		}, true},
		{"min above max", func(c *Config) {
			c.MinLiquiditySOL = decimal.NewFromInt(10)
			c.MaxLiquiditySOL = decimal.NewFromInt(5)
		}, true},
		{"min only", func(c *Config) { c.MinLiquiditySOL = decimal.NewFromInt(10) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(ModeSingle)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSingleModeStopsAfterBuy(t *testing.T) {
	engine := new(MockEngine)
	engine.On("BuyToken", mock.Anything, mock.MatchedBy(func(r trading.BuyRequest) bool {
		return r.Wallet == "wallet-1" && r.SlippageBps == 500 && r.AmountSOL.Equal(decimal.RequireFromString("0.1")) && !r.SkipTax
	})).Return(fill("buy-1"), nil).Once()
	pm := permissiveMonitor()
	journal := &memJournal{}
	rec := &countRecorder{}

	s := New(baseConfig(ModeSingle), nil, engine, pm, zaptest.NewLogger(t),
		WithJournal(journal), WithRecorder(rec))

	require.NoError(t, s.HandleLaunch(context.Background(), launchN(1, 0)))
	assert.False(t, s.Active())
	assert.ErrorIs(t, s.HandleLaunch(context.Background(), launchN(2, 0)), ErrInactive)

	engine.AssertNumberOfCalls(t, "BuyToken", 1)
	pm.AssertCalled(t, "StartCampaign", mock.Anything, mintN(1), curveN(1))
	pm.AssertNumberOfCalls(t, "AddAlert", 3)
	pm.AssertCalled(t, "AddAlert", "campaign", mock.MatchedBy(func(spec monitor.AlertSpec) bool {
		return spec.Label == "stop-loss" &&
			spec.Direction == monitor.Below &&
			spec.Threshold == -20 &&
			spec.Reference == 1e-7 &&
			spec.Actions[0].Type == monitor.ActionSell &&
			spec.Actions[0].Fraction == 1
	}))
	pm.AssertCalled(t, "AddAlert", "campaign", mock.MatchedBy(func(spec monitor.AlertSpec) bool {
		return spec.Label == "take-profit-2" && spec.Threshold == 100 && spec.Actions[0].Fraction == 0.5
	}))

	positions := s.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, "campaign", positions[0].CampaignID)
	assert.Equal(t, "buy-1", positions[0].EntrySignature)
	assert.Equal(t, []string{"buy"}, journal.actions())
	assert.Equal(t, 1, rec.get(OutcomeSuccess))
}

func TestOneAtATimeDeclinesWhileOpen(t *testing.T) {
	engine := new(MockEngine)
	engine.On("BuyToken", mock.Anything, mock.Anything).Return(fill("buy"), nil)
	engine.On("SellToken", mock.Anything, mock.Anything).Return(trading.SellResult{
		Signature:   "sell",
		ReceivedSOL: decimal.RequireFromString("0.15"),
		Price:       1.5e-7,
	}, nil)
	pm := permissiveMonitor()

	s := New(baseConfig(ModeOneAtATime), nil, engine, pm, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, s.HandleLaunch(ctx, launchN(1, 0)))
	assert.ErrorIs(t, s.HandleLaunch(ctx, launchN(2, 0)), ErrPositionOpen)
	engine.AssertNumberOfCalls(t, "BuyToken", 1)
	assert.True(t, s.Active())

	fired := monitor.Fired{Campaign: monitor.CampaignInfo{ID: "campaign", Mint: mintN(1)}, Price: 1.5e-7}
	require.NoError(t, s.HandleAction(ctx, fired, monitor.Action{Type: monitor.ActionSell, Fraction: 1}))
	assert.Equal(t, 0, s.OpenPositions())
	pm.AssertCalled(t, "StopCampaign", "campaign")

	require.NoError(t, s.HandleLaunch(ctx, launchN(2, 0)))
	engine.AssertNumberOfCalls(t, "BuyToken", 2)
}

func TestAllModeMaxSnipes(t *testing.T) {
	engine := new(MockEngine)
	engine.On("BuyToken", mock.Anything, mock.Anything).Return(fill("buy"), nil)

	cfg := baseConfig(ModeAll)
	cfg.MaxSnipes = 2
	s := New(cfg, nil, engine, permissiveMonitor(), zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, s.HandleLaunch(ctx, launchN(1, 0)))
	require.NoError(t, s.HandleLaunch(ctx, launchN(2, 0)))
	assert.True(t, s.Active())

	assert.ErrorIs(t, s.HandleLaunch(ctx, launchN(3, 0)), ErrMaxSnipesReached)
	assert.False(t, s.Active())
	engine.AssertNumberOfCalls(t, "BuyToken", 2)
	assert.Equal(t, 2, s.OpenPositions())
}

func TestFailedBuyUnmarksMint(t *testing.T) {
	engine := new(MockEngine)
	engine.On("BuyToken", mock.Anything, mock.Anything).Return(trading.BuyResult{}, errors.New("blockhash expired")).Once()
	engine.On("BuyToken", mock.Anything, mock.Anything).Return(fill("buy"), nil).Once()
	journal := &memJournal{}
	rec := &countRecorder{}

	s := New(baseConfig(ModeAll), nil, engine, permissiveMonitor(), zaptest.NewLogger(t),
		WithJournal(journal), WithRecorder(rec))
	ctx := context.Background()

	err := s.HandleLaunch(ctx, launchN(1, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blockhash expired")
	assert.Equal(t, 0, s.OpenPositions())

	require.NoError(t, s.HandleLaunch(ctx, launchN(1, 0)))
	assert.ErrorIs(t, s.HandleLaunch(ctx, launchN(1, 0)), ErrAlreadySeen)

	first := <-s.Events()
	failed, ok := first.(SnipeFailed)
	require.True(t, ok)
	assert.Equal(t, mintN(1), failed.Mint)
	second := <-s.Events()
	_, ok = second.(SnipeSuccess)
	assert.True(t, ok)

	assert.Equal(t, []string{"buy_failed", "buy"}, journal.actions())
	assert.Equal(t, 1, rec.get(OutcomeFailed))
	assert.Equal(t, 1, rec.get(OutcomeSuccess))
}

func TestFilters(t *testing.T) {
	sol := func(n float64) decimal.Decimal { return decimal.NewFromFloat(n) }

	tests := []struct {
		name   string
		cfg    func(*Config)
		launch func() domain.LaunchEvent
		want   error
	}{
		{
			name:   "graduated excluded",
			cfg:    func(c *Config) { c.ExcludeGraduated = true },
			launch: func() domain.LaunchEvent { l := launchN(1, 2e9); l.Snapshot.Complete = true; return l },
			want:   ErrFiltered,
		},
		{
			name:   "graduated allowed",
			cfg:    func(c *Config) {},
			launch: func() domain.LaunchEvent { l := launchN(1, 2e9); l.Snapshot.Complete = true; return l },
		},
		{
			name:   "liquidity below min",
			cfg:    func(c *Config) { c.MinLiquiditySOL = sol(1); c.MaxLiquiditySOL = sol(5) },
			launch: func() domain.LaunchEvent { return launchN(1, 5e8) },
			want:   ErrFiltered,
		},
		{
			name:   "liquidity above max",
			cfg:    func(c *Config) { c.MinLiquiditySOL = sol(1); c.MaxLiquiditySOL = sol(5) },
			launch: func() domain.LaunchEvent { return launchN(1, 1e10) },
			want:   ErrFiltered,
		},
		{
			name:   "liquidity inside bounds",
			cfg:    func(c *Config) { c.MinLiquiditySOL = sol(1); c.MaxLiquiditySOL = sol(5) },
			launch: func() domain.LaunchEvent { return launchN(1, 2e9) },
		},
		{
			name: "no snapshot with bounds",
			cfg:  func(c *Config) { c.MinLiquiditySOL = sol(1) },
			launch: func() domain.LaunchEvent {
				l := launchN(1, 2e9)
				l.Snapshot = nil
				return l
			},
			want: ErrFiltered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := new(MockEngine)
			engine.On("BuyToken", mock.Anything, mock.Anything).Return(fill("buy"), nil)

			cfg := baseConfig(ModeAll)
			tt.cfg(&cfg)
			s := New(cfg, nil, engine, permissiveMonitor(), zaptest.NewLogger(t))

			err := s.HandleLaunch(context.Background(), tt.launch())
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				engine.AssertNotCalled(t, "BuyToken", mock.Anything, mock.Anything)
				return
			}
			assert.NoError(t, err)
			engine.AssertNumberOfCalls(t, "BuyToken", 1)
		})
	}
}

func TestEvaluateFlagsStick(t *testing.T) {
	engine := new(MockEngine)
	engine.On("BuyToken", mock.Anything, mock.Anything).Return(fill("buy"), nil)
	pm := permissiveMonitor()
	pm.On("GetCampaign", mintN(1)).Return(monitor.CampaignInfo{CurrentPrice: 0.7e-7}, true).Once()
	pm.On("GetCampaign", mintN(1)).Return(monitor.CampaignInfo{CurrentPrice: 1.6e-7}, true).Once()

	s := New(baseConfig(ModeAll), nil, engine, pm, zaptest.NewLogger(t))
	ctx := context.Background()
	require.NoError(t, s.HandleLaunch(ctx, launchN(1, 0)))
	<-s.Events()

	s.Evaluate(ctx)
	p := s.Positions()[0]
	assert.True(t, p.StopLossHit)
	assert.False(t, p.TakeProfitHit)
	assert.InDelta(t, -30, p.ProfitPercent, 1e-6)
	assert.InDelta(t, -0.03, p.Profit.InexactFloat64(), 1e-9)

	s.Evaluate(ctx)
	p = s.Positions()[0]
	assert.True(t, p.StopLossHit, "flags are never reset")
	assert.True(t, p.TakeProfitHit)
	assert.InDelta(t, 60, p.ProfitPercent, 1e-6)

	update, ok := (<-s.Events()).(PositionUpdate)
	require.True(t, ok)
	assert.Equal(t, mintN(1), update.Position.Mint)
}

func TestHandleActionPartialSells(t *testing.T) {
	engine := new(MockEngine)
	engine.On("BuyToken", mock.Anything, mock.Anything).Return(fill("buy"), nil)
	engine.On("SellToken", mock.Anything, mock.MatchedBy(func(r trading.SellRequest) bool {
		return r.TokenAmount.Equal(decimal.NewFromInt(500_000)) && r.BondingCurve == curveN(1)
	})).Return(trading.SellResult{Signature: "sell", ReceivedSOL: decimal.RequireFromString("0.1"), Price: 2e-7}, nil)
	pm := permissiveMonitor()
	journal := &memJournal{}

	s := New(baseConfig(ModeAll), nil, engine, pm, zaptest.NewLogger(t), WithJournal(journal))
	ctx := context.Background()
	require.NoError(t, s.HandleLaunch(ctx, launchN(1, 0)))

	fired := monitor.Fired{Campaign: monitor.CampaignInfo{Mint: mintN(1)}, Price: 2e-7}
	half := monitor.Action{Type: monitor.ActionSell, Fraction: 0.5}

	require.NoError(t, s.HandleAction(ctx, fired, half))
	p := s.Positions()[0]
	assert.InDelta(t, 0.5, p.SoldFraction, 1e-9)
	assert.False(t, p.Closed)
	pm.AssertNotCalled(t, "StopCampaign", mock.Anything)

	require.NoError(t, s.HandleAction(ctx, fired, half))
	p = s.Positions()[0]
	assert.True(t, p.Closed)
	assert.True(t, p.TokenAmount.IsZero())
	assert.True(t, decimal.RequireFromString("0.1").Equal(p.Profit), "profit %s", p.Profit)
	pm.AssertCalled(t, "StopCampaign", "campaign")

	// Closed positions ignore further actions.
	require.NoError(t, s.HandleAction(ctx, fired, half))
	engine.AssertNumberOfCalls(t, "SellToken", 2)
	assert.Equal(t, []string{"buy", "sell", "sell"}, journal.actions())
}

func TestSkipTaxPassedToTrades(t *testing.T) {
	engine := new(MockEngine)
	engine.On("BuyToken", mock.Anything, mock.MatchedBy(func(r trading.BuyRequest) bool {
		return r.SkipTax
	})).Return(fill("buy"), nil).Once()
	engine.On("SellToken", mock.Anything, mock.MatchedBy(func(r trading.SellRequest) bool {
		return r.SkipTax
	})).Return(trading.SellResult{Signature: "sell", ReceivedSOL: decimal.RequireFromString("0.2"), Price: 2e-7}, nil).Once()

	cfg := baseConfig(ModeSingle)
	cfg.SkipTax = true
	s := New(cfg, nil, engine, permissiveMonitor(), zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, s.HandleLaunch(ctx, launchN(1, 0)))
	fired := monitor.Fired{Campaign: monitor.CampaignInfo{Mint: mintN(1)}, Price: 2e-7}
	require.NoError(t, s.HandleAction(ctx, fired, monitor.Action{Type: monitor.ActionSell, Fraction: 1}))

	engine.AssertExpectations(t)
	assert.True(t, s.Positions()[0].Closed)
}

func TestHandleActionNotify(t *testing.T) {
	journal := &memJournal{}
	s := New(baseConfig(ModeAll), nil, new(MockEngine), permissiveMonitor(), zaptest.NewLogger(t), WithJournal(journal))

	fired := monitor.Fired{
		Campaign: monitor.CampaignInfo{Mint: mintN(9)},
		Alert:    monitor.Alert{Spec: monitor.AlertSpec{Label: "watch"}},
		Price:    1e-7,
	}
	require.NoError(t, s.HandleAction(context.Background(), fired, monitor.Action{Type: monitor.ActionNotify}))
	assert.Equal(t, []string{"alert"}, journal.actions())
}

func TestRunSingleModeFinishesWhenPositionCloses(t *testing.T) {
	engine := new(MockEngine)
	engine.On("BuyToken", mock.Anything, mock.Anything).Return(fill("buy"), nil)
	engine.On("SellToken", mock.Anything, mock.Anything).Return(trading.SellResult{
		Signature:   "sell",
		ReceivedSOL: decimal.RequireFromString("0.2"),
		Price:       2e-7,
	}, nil)
	pm := permissiveMonitor()
	pm.On("GetCampaign", mock.Anything).Return(monitor.CampaignInfo{}, false)

	source := &fakeSource{launches: []domain.LaunchEvent{launchN(1, 0), launchN(2, 0)}}
	s := New(baseConfig(ModeSingle), source, engine, pm, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	_, ok := (<-s.Events()).(Started)
	require.True(t, ok)
	success, ok := (<-s.Events()).(SnipeSuccess)
	require.True(t, ok)
	assert.Equal(t, mintN(1), success.Mint)

	fired := monitor.Fired{Campaign: monitor.CampaignInfo{Mint: mintN(1)}}
	require.NoError(t, s.HandleAction(ctx, fired, monitor.Action{Type: monitor.ActionSell, Fraction: 1}))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Run did not finish after the position closed")
	}
	engine.AssertNumberOfCalls(t, "BuyToken", 1)
}

func TestRunReconnectExhausted(t *testing.T) {
	source := &failingSource{err: errors.New("ws closed")}
	cfg := baseConfig(ModeAll)
	cfg.ReconnectAttempts = 2
	s := New(cfg, source, new(MockEngine), permissiveMonitor(), zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Run(ctx)
	require.ErrorIs(t, err, ErrReconnectExhausted)
	assert.Contains(t, err.Error(), "ws closed")
	assert.Equal(t, int32(3), source.calls.Load())
	assert.False(t, s.Active())
}
