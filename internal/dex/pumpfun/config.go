// =============================
// File: internal/dex/pumpfun/config.go
// =============================
package pumpfun

import (
	"github.com/gagliardetto/solana-go"
)

// Known PumpFun protocol addresses
var (
	// Program ID for Pump.fun protocol
	PumpFunProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

	// Event authority for the Pump.fun protocol
	PumpFunEventAuth = solana.MustPublicKeyFromBase58("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1")
)

const (
	// BondingCurveSeed is the PDA seed of the per-mint curve account.
	BondingCurveSeed = "bonding-curve"

	// DiscriminatorSize is the Anchor account discriminator prefix.
	DiscriminatorSize = 8

	// MinAccountSize covers the discriminator, five u64 reserves and the completion flag,
	// padded to the account's allocation boundary.
	MinAccountSize = 56

	SolDecimals   = 9
	TokenDecimals = 6

	// FeeBasisPoints is the protocol fee charged on both sides of a trade.
	FeeBasisPoints = 100
)
