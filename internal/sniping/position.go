// internal/sniping/position.go
package sniping

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const fractionEpsilon = 1e-9

// Position is one bought mint. Prices are SOL per whole token.
type Position struct {
	Mint         solana.PublicKey `json:"mint"`
	BondingCurve solana.PublicKey `json:"bonding_curve"`
	CampaignID   string           `json:"campaign_id,omitempty"`

	BuyPrice     float64 `json:"buy_price"`
	CurrentPrice float64 `json:"current_price"`

	// InitialTokens is the bought amount; TokenAmount is what is still held.
	InitialTokens decimal.Decimal `json:"initial_tokens"`
	TokenAmount   decimal.Decimal `json:"token_amount"`
	CostSOL       decimal.Decimal `json:"cost_sol"`
	RealizedSOL   decimal.Decimal `json:"realized_sol"`

	Profit        decimal.Decimal `json:"profit"`
	ProfitPercent float64         `json:"profit_percent"`

	StopLossHit   bool    `json:"stop_loss_hit"`
	TakeProfitHit bool    `json:"take_profit_hit"`
	SoldFraction  float64 `json:"sold_fraction"`
	Closed        bool    `json:"closed"`

	EntryTime      time.Time `json:"entry_time"`
	EntrySignature string    `json:"entry_signature"`

	pending decimal.Decimal
}

// available is the amount not held back by an in-flight sell.
func (p *Position) available() decimal.Decimal {
	return p.TokenAmount.Sub(p.pending)
}

// mark reprices the position. Flags only ever go from false to true.
func (p *Position) mark(price float64, cfg Config) {
	if price <= 0 || p.BuyPrice <= 0 {
		return
	}
	p.CurrentPrice = price
	p.ProfitPercent = (price - p.BuyPrice) / p.BuyPrice * 100
	p.Profit = p.RealizedSOL.
		Add(p.TokenAmount.Mul(decimal.NewFromFloat(price))).
		Sub(p.CostSOL)

	if cfg.StopLossPercent > 0 && p.ProfitPercent <= -cfg.StopLossPercent {
		p.StopLossHit = true
	}
	if len(cfg.TakeProfits) > 0 && p.ProfitPercent >= cfg.TakeProfits[0].Percent {
		p.TakeProfitHit = true
	}
}
