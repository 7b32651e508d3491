// =============================
// File: internal/dex/pumpfun/types.go
// =============================
package pumpfun

// BondingCurve is one decoded snapshot of a Pump.fun curve account.
// Reserve values stay in base units; use ComputePrice for float conversion.
type BondingCurve struct {
	VirtualTokenReserves uint64 `json:"virtual_token_reserves"`
	VirtualSolReserves   uint64 `json:"virtual_sol_reserves"`
	RealTokenReserves    uint64 `json:"real_token_reserves"`
	RealSolReserves      uint64 `json:"real_sol_reserves"`
	TokenTotalSupply     uint64 `json:"token_total_supply"`
	Complete             bool   `json:"complete"`
}

// Graduated reports whether trading has migrated off the curve.
func (bc BondingCurve) Graduated() bool {
	return bc.Complete
}
