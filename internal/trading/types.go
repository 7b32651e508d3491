// Package trading holds the request and result types exchanged with trade executors.
package trading

import (
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

var (
	ErrSlippageExceeded    = errors.New("slippage tolerance exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCurveComplete       = errors.New("bonding curve complete, trading moved off-curve")
	ErrZeroAmount          = errors.New("amount must be positive")
)

// BuyRequest spends AmountSOL on Mint.
type BuyRequest struct {
	Mint         solana.PublicKey
	BondingCurve solana.PublicKey
	Wallet       string
	AmountSOL    decimal.Decimal
	SlippageBps  uint16
	PriorityFee  decimal.Decimal
	// SkipTax asks the executor to bypass its own service fee.
	SkipTax bool
}

// BuyResult reports a filled buy. TokenAmount is in whole tokens.
type BuyResult struct {
	Signature   string
	TokenAmount decimal.Decimal
	SpentSOL    decimal.Decimal
	// Price is the average fill in SOL per token.
	Price float64
}

// SellRequest sells TokenAmount whole tokens of Mint.
type SellRequest struct {
	Mint         solana.PublicKey
	BondingCurve solana.PublicKey
	Wallet       string
	TokenAmount  decimal.Decimal
	SlippageBps  uint16
	PriorityFee  decimal.Decimal
	SkipTax      bool
}

// SellResult reports a filled sell.
type SellResult struct {
	Signature   string
	ReceivedSOL decimal.Decimal
	Price       float64
}
