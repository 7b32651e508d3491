// internal/dex/pumpfun/token_calc.go
package pumpfun

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// ComputePrice returns the spot price in SOL per whole token:
// (VirtualSolReserves / 10^9) / (VirtualTokenReserves / 10^decimals).
// ok is false when token reserves are zero or the result is not finite.
func ComputePrice(bc BondingCurve, decimals uint8) (price float64, ok bool) {
	if bc.VirtualTokenReserves == 0 {
		return 0, false
	}

	virtualSol := float64(bc.VirtualSolReserves) / math.Pow10(SolDecimals)
	virtualToken := float64(bc.VirtualTokenReserves) / math.Pow10(int(decimals))

	price = virtualSol / virtualToken
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, false
	}
	return price, true
}

// LamportsToSOL converts base units to SOL without float rounding.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -SolDecimals)
}

// SOLToLamports converts a SOL amount to lamports, truncating sub-lamport dust.
func SOLToLamports(sol decimal.Decimal) uint64 {
	if sol.IsNegative() {
		return 0
	}
	return sol.Shift(SolDecimals).BigInt().Uint64()
}

// Liquidity is the SOL actually deposited into the curve.
func Liquidity(bc BondingCurve) decimal.Decimal {
	return LamportsToSOL(bc.RealSolReserves)
}

// BuyQuote returns the token base units received for solIn lamports after the protocol fee.
// The result never exceeds the real token reserves.
func BuyQuote(bc BondingCurve, solIn uint64) uint64 {
	if solIn == 0 || bc.VirtualTokenReserves == 0 {
		return 0
	}

	net := new(big.Int).SetUint64(solIn - feeOf(solIn))
	vSol := new(big.Int).SetUint64(bc.VirtualSolReserves)
	vTok := new(big.Int).SetUint64(bc.VirtualTokenReserves)

	// out = vTok * net / (vSol + net)
	num := new(big.Int).Mul(vTok, net)
	den := new(big.Int).Add(vSol, net)
	out := num.Div(num, den).Uint64()

	if out > bc.RealTokenReserves {
		out = bc.RealTokenReserves
	}
	return out
}

// SellQuote returns the lamports received for tokensIn base units after the protocol fee.
func SellQuote(bc BondingCurve, tokensIn uint64) uint64 {
	if tokensIn == 0 || bc.VirtualSolReserves == 0 {
		return 0
	}

	in := new(big.Int).SetUint64(tokensIn)
	vSol := new(big.Int).SetUint64(bc.VirtualSolReserves)
	vTok := new(big.Int).SetUint64(bc.VirtualTokenReserves)

	// gross = vSol * in / (vTok + in)
	num := new(big.Int).Mul(vSol, in)
	den := new(big.Int).Add(vTok, in)
	gross := num.Div(num, den).Uint64()

	if gross > bc.RealSolReserves {
		gross = bc.RealSolReserves
	}
	return gross - feeOf(gross)
}

func feeOf(amount uint64) uint64 {
	fee := new(big.Int).SetUint64(amount)
	fee.Mul(fee, big.NewInt(FeeBasisPoints))
	fee.Div(fee, big.NewInt(10_000))
	return fee.Uint64()
}
