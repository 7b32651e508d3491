package pumpfun

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputePrice(t *testing.T) {
	bc := BondingCurve{
		VirtualTokenReserves: 1_073_000_000_000_000,
		VirtualSolReserves:   30_000_000_000,
	}

	price, ok := ComputePrice(bc, TokenDecimals)
	assert.True(t, ok)
	assert.InDelta(t, 30.0/1_073_000_000.0, price, 1e-15)

	_, ok = ComputePrice(BondingCurve{VirtualSolReserves: 1}, TokenDecimals)
	assert.False(t, ok, "zero token reserves has no price")
}

func TestComputePriceMonotonic(t *testing.T) {
	base := BondingCurve{
		VirtualTokenReserves: 1_000_000_000_000,
		VirtualSolReserves:   30_000_000_000,
	}

	prev, _ := ComputePrice(base, TokenDecimals)
	for i := 1; i <= 50; i++ {
		bc := base
		bc.VirtualSolReserves += uint64(i) * 1_000_000_000
		p, ok := ComputePrice(bc, TokenDecimals)
		assert.True(t, ok)
		assert.Greater(t, p, prev)
		prev = p
	}

	prev, _ = ComputePrice(base, TokenDecimals)
	for i := 1; i <= 50; i++ {
		bc := base
		bc.VirtualTokenReserves += uint64(i) * 10_000_000_000
		p, ok := ComputePrice(bc, TokenDecimals)
		assert.True(t, ok)
		assert.Less(t, p, prev)
		prev = p
	}
}

func TestComputePriceNear2Pow53(t *testing.T) {
	bc := BondingCurve{
		VirtualTokenReserves: 1 << 53,
		VirtualSolReserves:   (1 << 53) + 2,
	}
	price, ok := ComputePrice(bc, SolDecimals)
	assert.True(t, ok)
	assert.InEpsilon(t, 1.0, price, 1e-12)
}

func TestQuotes(t *testing.T) {
	bc := BondingCurve{
		VirtualTokenReserves: 1_073_000_000_000_000,
		VirtualSolReserves:   30_000_000_000,
		RealTokenReserves:    793_100_000_000_000,
		RealSolReserves:      5_000_000_000,
	}

	out := BuyQuote(bc, 1_000_000_000)
	assert.Greater(t, out, uint64(0))
	assert.LessOrEqual(t, out, bc.RealTokenReserves)
	assert.Zero(t, BuyQuote(bc, 0))

	back := SellQuote(bc, out)
	assert.Less(t, back, uint64(1_000_000_000), "round trip pays fees")

	drained := bc
	drained.RealTokenReserves = 10
	assert.Equal(t, uint64(10), BuyQuote(drained, 1_000_000_000))
}

func TestLamportConversion(t *testing.T) {
	assert.True(t, LamportsToSOL(1_500_000_000).Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, uint64(2_000_000_001), SOLToLamports(decimal.RequireFromString("2.0000000015")))
	assert.Zero(t, SOLToLamports(decimal.NewFromInt(-1)))
	assert.True(t, Liquidity(BondingCurve{RealSolReserves: 85_000_000_000}).Equal(decimal.NewFromInt(85)))
}
