package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
)

// LaunchEvent is one detected token launch. Signature+Mint identify it.
type LaunchEvent struct {
	Signature    string                `json:"signature"`
	Mint         solana.PublicKey      `json:"mint"`
	BondingCurve solana.PublicKey      `json:"bonding_curve"`
	Snapshot     *pumpfun.BondingCurve `json:"snapshot,omitempty"`
	Slot         uint64                `json:"slot"`
	DetectedAt   time.Time             `json:"detected_at"`
	// Source names the resolution tier that produced the mint.
	Source string `json:"source"`
}

// Key is the unique identity of a launch.
func (e LaunchEvent) Key() string {
	return e.Signature + ":" + e.Mint.String()
}
