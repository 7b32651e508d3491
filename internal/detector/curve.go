package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"go.uber.org/zap"
)

// ErrBondingCurveNotFound means the curve account did not appear within the poll budget.
var ErrBondingCurveNotFound = errors.New("bonding curve account not found")

var errCurvePending = errors.New("bonding curve not yet visible")

// AwaitBondingCurve polls the curve account until it exists and decodes.
// The delay starts at cfg.CurvePollDelay and grows by half per attempt.
func AwaitBondingCurve(ctx context.Context, reader ChainReader, curve solana.PublicKey, cfg Config, logger *zap.Logger) (*pumpfun.BondingCurve, error) {
	cfg = cfg.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.CurvePollDelay
	bo.Multiplier = 1.5
	bo.RandomizationFactor = 0
	bo.MaxInterval = cfg.CurvePollDelay * 10

	attempt := 0
	snap, err := backoff.Retry(ctx, func() (*pumpfun.BondingCurve, error) {
		attempt++
		acc, err := reader.GetAccountInfo(ctx, curve)
		if err != nil {
			return nil, err
		}
		if acc == nil || acc.Value == nil {
			return nil, errCurvePending
		}
		if owner, err := acc.Value.OwnerKey(); err != nil || !owner.Equals(pumpfun.PumpFunProgramID) {
			return nil, backoff.Permanent(fmt.Errorf("curve %s owned by %s", curve, acc.Value.Owner))
		}

		data, err := acc.Value.Bytes()
		if err != nil {
			return nil, err
		}
		bc, err := pumpfun.DecodeAccountLayout(data)
		if err != nil {
			return nil, err
		}
		return &bc, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(cfg.CurvePollAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("Bonding curve not ready",
				zap.String("curve", curve.String()),
				zap.Int("attempt", attempt),
				zap.Duration("next_poll", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrBondingCurveNotFound, curve, attempt, err)
	}
	return snap, nil
}
