// internal/sniping/config.go
package sniping

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Mode decides how many launches the sniper buys.
type Mode string

const (
	// ModeSingle buys the first accepted launch and stops.
	ModeSingle Mode = "single"
	// ModeAll buys every accepted launch until MaxSnipes.
	ModeAll Mode = "all"
	// ModeOneAtATime declines launches while a position is open.
	ModeOneAtATime Mode = "one-at-a-time"
)

const (
	DefaultEvaluateInterval  = 5 * time.Second
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = 2 * time.Second
	DefaultSlippageBps       = 500
)

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSingle, ModeAll, ModeOneAtATime:
		return m, nil
	case "":
		return ModeSingle, nil
	default:
		return "", fmt.Errorf("unknown snipe mode %q", s)
	}
}

// TakeProfit sells SellFraction of the original position once the price is Percent above the buy price.
type TakeProfit struct {
	Percent      float64 `mapstructure:"percent" json:"percent"`
	SellFraction float64 `mapstructure:"sell_fraction" json:"sell_fraction"`
}

// Config is fixed for one run of the sniper.
type Config struct {
	UserID       string
	Wallet       string
	BuyAmountSOL decimal.Decimal
	SlippageBps  uint16
	PriorityFee  decimal.Decimal
	// SkipTax is passed through to every trade request.
	SkipTax bool
	Mode    Mode
	// MaxSnipes caps successful buys in ModeAll. Zero means no cap.
	MaxSnipes int
	// StopLossPercent is the drawdown from the buy price that sells everything. Zero disables it.
	StopLossPercent float64
	// TakeProfits are ordered by ascending Percent.
	TakeProfits []TakeProfit
	// Liquidity bounds on real SOL reserves. A zero MaxLiquiditySOL means unbounded.
	MinLiquiditySOL  decimal.Decimal
	MaxLiquiditySOL  decimal.Decimal
	ExcludeGraduated bool

	EvaluateInterval  time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeSingle
	}
	if c.EvaluateInterval <= 0 {
		c.EvaluateInterval = DefaultEvaluateInterval
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	return c
}

// liquidityBounded reports whether any liquidity bound is set.
func (c Config) liquidityBounded() bool {
	return c.MinLiquiditySOL.IsPositive() || c.MaxLiquiditySOL.IsPositive()
}

// Validate checks the sniper block.
func (c Config) Validate() error {
	if c.Wallet == "" {
		return errors.New("sniper wallet is required")
	}
	if !c.BuyAmountSOL.IsPositive() {
		return errors.New("sniper buy amount must be positive")
	}
	if c.SlippageBps > 10000 {
		return fmt.Errorf("slippage %d bps exceeds 10000", c.SlippageBps)
	}
	if c.PriorityFee.IsNegative() {
		return errors.New("priority fee cannot be negative")
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.MaxSnipes < 0 {
		return errors.New("max snipes cannot be negative")
	}
	if c.StopLossPercent < 0 || c.StopLossPercent >= 100 {
		return fmt.Errorf("stop loss %v%% must be in [0,100)", c.StopLossPercent)
	}
	if c.MinLiquiditySOL.IsNegative() || c.MaxLiquiditySOL.IsNegative() {
		return errors.New("liquidity bounds cannot be negative")
	}
	if c.MaxLiquiditySOL.IsPositive() && c.MinLiquiditySOL.GreaterThan(c.MaxLiquiditySOL) {
		return errors.New("min liquidity exceeds max liquidity")
	}

	var total, last float64
	for i, tp := range c.TakeProfits {
		if tp.Percent <= 0 {
			return fmt.Errorf("take profit %d: percent must be positive", i)
		}
		if tp.Percent <= last {
			return fmt.Errorf("take profit %d: targets must be ascending", i)
		}
		if tp.SellFraction <= 0 || tp.SellFraction > 1 {
			return fmt.Errorf("take profit %d: sell fraction must be in (0,1]", i)
		}
		last = tp.Percent
		total += tp.SellFraction
	}
	if total > 1+fractionEpsilon {
		return fmt.Errorf("take profit fractions sum to %v, more than the whole position", total)
	}
	return nil
}
