package sniping

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/logger"
	"github.com/rovshanmuradov/pumpwatch/internal/monitor"
	"github.com/rovshanmuradov/pumpwatch/internal/trading"
)

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) BuyToken(ctx context.Context, req trading.BuyRequest) (trading.BuyResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(trading.BuyResult), args.Error(1)
}

func (m *MockEngine) SellToken(ctx context.Context, req trading.SellRequest) (trading.SellResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(trading.SellResult), args.Error(1)
}

type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) StartCampaign(ctx context.Context, mint, pool solana.PublicKey) (string, error) {
	args := m.Called(ctx, mint, pool)
	return args.String(0), args.Error(1)
}

func (m *MockMonitor) AddAlert(campaignID string, spec monitor.AlertSpec) (string, error) {
	args := m.Called(campaignID, spec)
	return args.String(0), args.Error(1)
}

func (m *MockMonitor) GetCampaign(mint solana.PublicKey) (monitor.CampaignInfo, bool) {
	args := m.Called(mint)
	return args.Get(0).(monitor.CampaignInfo), args.Bool(1)
}

func (m *MockMonitor) StopCampaign(campaignID string) {
	m.Called(campaignID)
}

type memJournal struct {
	mu      sync.Mutex
	records []logger.TradeRecord
}

func (j *memJournal) Record(r logger.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, r)
	return nil
}

func (j *memJournal) actions() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.records))
	for i, r := range j.records {
		out[i] = r.Action
	}
	return out
}

type countRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countRecorder) SnipeAttempt(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[outcome]++
}

func (r *countRecorder) get(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[outcome]
}

// fakeSource sends its launches, then blocks until ctx ends.
type fakeSource struct {
	launches []domain.LaunchEvent
	calls    atomic.Int32
}

func (f *fakeSource) Watch(ctx context.Context, out chan<- domain.LaunchEvent) error {
	if f.calls.Add(1) == 1 {
		for _, l := range f.launches {
			select {
			case out <- l:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

// failingSource fails every Watch call.
type failingSource struct {
	err   error
	calls atomic.Int32
}

func (f *failingSource) Watch(context.Context, chan<- domain.LaunchEvent) error {
	f.calls.Add(1)
	return f.err
}

func mintN(n byte) solana.PublicKey {
	var b [32]byte
	b[0] = n
	b[31] = 0xAA
	return solana.PublicKeyFromBytes(b[:])
}

func curveN(n byte) solana.PublicKey {
	var b [32]byte
	b[0] = n
	b[31] = 0xCC
	return solana.PublicKeyFromBytes(b[:])
}

// launchN has a fresh curve holding realSOL lamports of real reserves.
func launchN(n byte, realSOL uint64) domain.LaunchEvent {
	return domain.LaunchEvent{
		Signature:    "sig",
		Mint:         mintN(n),
		BondingCurve: curveN(n),
		Slot:         uint64(n),
		DetectedAt:   time.Unix(1_700_000_000, 0),
		Snapshot: &pumpfun.BondingCurve{
			VirtualTokenReserves: 1_073_000_000_000_000,
			VirtualSolReserves:   30_000_000_000 + realSOL,
			RealTokenReserves:    793_100_000_000_000,
			RealSolReserves:      realSOL,
			TokenTotalSupply:     1_000_000_000_000_000,
		},
		Source: "logs",
	}
}

// fill buys 1_000_000 tokens for 0.1 SOL.
func fill(sig string) trading.BuyResult {
	return trading.BuyResult{
		Signature:   sig,
		TokenAmount: decimal.NewFromInt(1_000_000),
		SpentSOL:    decimal.RequireFromString("0.1"),
		Price:       1e-7,
	}
}

func baseConfig(mode Mode) Config {
	return Config{
		UserID:           "user-1",
		Wallet:           "wallet-1",
		BuyAmountSOL:     decimal.RequireFromString("0.1"),
		SlippageBps:      500,
		Mode:             mode,
		StopLossPercent:  20,
		TakeProfits:      []TakeProfit{{Percent: 50, SellFraction: 0.5}, {Percent: 100, SellFraction: 0.5}},
		EvaluateInterval: 5 * time.Millisecond,
		ReconnectDelay:   time.Millisecond,
	}
}

// permissiveMonitor accepts campaigns and alerts for any mint.
func permissiveMonitor() *MockMonitor {
	m := new(MockMonitor)
	m.On("StartCampaign", mock.Anything, mock.Anything, mock.Anything).Return("campaign", nil)
	m.On("AddAlert", mock.Anything, mock.Anything).Return("alert", nil)
	m.On("StopCampaign", mock.Anything).Return()
	return m
}
