// Package paper simulates trades against live bonding-curve reserves without
// signing or sending anything.
package paper

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rovshanmuradov/pumpwatch/internal/blockchain/rpc"
	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/pumpwatch/internal/trading"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CurveReader fetches bonding-curve accounts.
type CurveReader interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.AccountResult, error)
}

type holding struct {
	wallet string
	mint   solana.PublicKey
}

// Engine fills buys and sells at the constant-product quote of the current
// curve, protocol fee included, and keeps simulated holdings per wallet.
type Engine struct {
	reader   CurveReader
	decimals int32
	logger   *zap.Logger

	mu       sync.Mutex
	holdings map[holding]uint64
	spent    map[string]decimal.Decimal
	received map[string]decimal.Decimal
}

// NewEngine creates a paper engine for tokens with the given decimals.
func NewEngine(reader CurveReader, decimals uint8, logger *zap.Logger) *Engine {
	return &Engine{
		reader:   reader,
		decimals: int32(decimals),
		logger:   logger.Named("paper"),
		holdings: make(map[holding]uint64),
		spent:    make(map[string]decimal.Decimal),
		received: make(map[string]decimal.Decimal),
	}
}

func (e *Engine) curve(ctx context.Context, account solana.PublicKey) (pumpfun.BondingCurve, error) {
	acc, err := e.reader.GetAccountInfo(ctx, account)
	if err != nil {
		return pumpfun.BondingCurve{}, err
	}
	if acc == nil || acc.Value == nil {
		return pumpfun.BondingCurve{}, fmt.Errorf("bonding curve %s not found", account)
	}
	data, err := acc.Value.Bytes()
	if err != nil {
		return pumpfun.BondingCurve{}, err
	}
	bc, err := pumpfun.DecodeAccountLayout(data)
	if err != nil {
		return pumpfun.BondingCurve{}, err
	}
	if bc.Complete {
		return bc, trading.ErrCurveComplete
	}
	return bc, nil
}

// BuyToken simulates a buy.
func (e *Engine) BuyToken(ctx context.Context, req trading.BuyRequest) (trading.BuyResult, error) {
	lamports := pumpfun.SOLToLamports(req.AmountSOL)
	if lamports == 0 {
		return trading.BuyResult{}, trading.ErrZeroAmount
	}

	bc, err := e.curve(ctx, req.BondingCurve)
	if err != nil {
		return trading.BuyResult{}, err
	}

	out := pumpfun.BuyQuote(bc, lamports)
	// Spot fill of the post-fee input, before price impact.
	net := lamports - lamports*pumpfun.FeeBasisPoints/10_000
	ideal := mulDiv(net, bc.VirtualTokenReserves, bc.VirtualSolReserves)
	if out == 0 || out < minOut(ideal, req.SlippageBps) {
		return trading.BuyResult{}, fmt.Errorf("%w: quote %d below minimum %d", trading.ErrSlippageExceeded, out, minOut(ideal, req.SlippageBps))
	}

	e.mu.Lock()
	e.holdings[holding{req.Wallet, req.Mint}] += out
	e.spent[req.Wallet] = e.spent[req.Wallet].Add(req.AmountSOL)
	e.mu.Unlock()

	tokens := decimal.NewFromBigInt(new(big.Int).SetUint64(out), -e.decimals)
	price, _ := req.AmountSOL.Div(tokens).Float64()

	res := trading.BuyResult{
		Signature:   "paper-" + uuid.New().String(),
		TokenAmount: tokens,
		SpentSOL:    req.AmountSOL,
		Price:       price,
	}
	e.logger.Info("Paper buy filled",
		zap.String("mint", req.Mint.String()),
		zap.String("wallet", req.Wallet),
		zap.String("sol", req.AmountSOL.String()),
		zap.String("tokens", tokens.String()),
		zap.Float64("price", price))
	return res, nil
}

// SellToken simulates a sell of whole tokens held by the wallet.
func (e *Engine) SellToken(ctx context.Context, req trading.SellRequest) (trading.SellResult, error) {
	units := req.TokenAmount.Shift(e.decimals).BigInt().Uint64()
	if !req.TokenAmount.IsPositive() || units == 0 {
		return trading.SellResult{}, trading.ErrZeroAmount
	}

	// Units are reserved up front and returned if the fill fails.
	key := holding{req.Wallet, req.Mint}
	e.mu.Lock()
	held := e.holdings[key]
	if held < units {
		e.mu.Unlock()
		return trading.SellResult{}, fmt.Errorf("%w: hold %d, selling %d", trading.ErrInsufficientBalance, held, units)
	}
	e.holdings[key] = held - units
	e.mu.Unlock()

	release := func() {
		e.mu.Lock()
		e.holdings[key] += units
		e.mu.Unlock()
	}

	bc, err := e.curve(ctx, req.BondingCurve)
	if err != nil {
		release()
		return trading.SellResult{}, err
	}

	lamports := pumpfun.SellQuote(bc, units)
	ideal := mulDiv(units, bc.VirtualSolReserves, bc.VirtualTokenReserves)
	ideal -= ideal * pumpfun.FeeBasisPoints / 10_000
	if lamports == 0 || lamports < minOut(ideal, req.SlippageBps) {
		release()
		return trading.SellResult{}, fmt.Errorf("%w: quote %d below minimum %d", trading.ErrSlippageExceeded, lamports, minOut(ideal, req.SlippageBps))
	}

	received := pumpfun.LamportsToSOL(lamports)
	e.mu.Lock()
	e.received[req.Wallet] = e.received[req.Wallet].Add(received)
	e.mu.Unlock()

	price, _ := received.Div(req.TokenAmount).Float64()
	e.logger.Info("Paper sell filled",
		zap.String("mint", req.Mint.String()),
		zap.String("wallet", req.Wallet),
		zap.String("tokens", req.TokenAmount.String()),
		zap.String("sol", received.String()),
		zap.Float64("price", price))

	return trading.SellResult{
		Signature:   "paper-" + uuid.New().String(),
		ReceivedSOL: received,
		Price:       price,
	}, nil
}

// Holding returns the simulated balance of mint in whole tokens.
func (e *Engine) Holding(wallet string, mint solana.PublicKey) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return decimal.NewFromBigInt(new(big.Int).SetUint64(e.holdings[holding{wallet, mint}]), -e.decimals)
}

// PnL returns SOL received minus SOL spent for wallet.
func (e *Engine) PnL(wallet string) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.received[wallet].Sub(e.spent[wallet])
}

func mulDiv(a, b, c uint64) uint64 {
	if c == 0 {
		return 0
	}
	n := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	return n.Div(n, new(big.Int).SetUint64(c)).Uint64()
}

func minOut(ideal uint64, slippageBps uint16) uint64 {
	if slippageBps >= 10_000 {
		return 0
	}
	return mulDiv(ideal, uint64(10_000-slippageBps), 10_000)
}
