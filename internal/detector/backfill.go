package detector

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpwatch/internal/blockchain/rpc"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/ratelimit"
	"go.uber.org/zap"
)

const defaultBackfillPage = 100

// HistoryReader pages through an address's transaction history.
type HistoryReader interface {
	ChainReader
	GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, before string, limit int) ([]rpc.SignatureInfo, error)
}

// BackfillConfig bounds a historical scan.
type BackfillConfig struct {
	// Addresses are scanned one after another, each with its own limiter.
	Addresses []solana.PublicKey
	// MaxPages caps pages per address; zero scans until history ends.
	MaxPages int
	PageSize int
	// RPS spaces transaction fetches per address.
	RPS float64
}

// Backfill replays detection over past transactions of each address and
// returns the launches found, newest first per address.
func (d *Detector) Backfill(ctx context.Context, reader HistoryReader, cfg BackfillConfig) ([]domain.LaunchEvent, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultBackfillPage
	}

	var found []domain.LaunchEvent
	for _, addr := range cfg.Addresses {
		limiter := ratelimit.New(cfg.RPS, true)
		launches, err := d.backfillAddress(ctx, reader, limiter, addr, cfg)
		found = append(found, launches...)
		if err != nil {
			return found, err
		}
	}
	return found, nil
}

func (d *Detector) backfillAddress(ctx context.Context, reader HistoryReader, limiter *ratelimit.Limiter, addr solana.PublicKey, cfg BackfillConfig) ([]domain.LaunchEvent, error) {
	logger := d.logger.With(zap.String("address", addr.String()))
	var (
		found  []domain.LaunchEvent
		before string
	)

	for page := 0; cfg.MaxPages == 0 || page < cfg.MaxPages; page++ {
		sigs, err := ratelimit.Do(ctx, limiter, func(ctx context.Context) ([]rpc.SignatureInfo, error) {
			return reader.GetSignaturesForAddress(ctx, addr, before, cfg.PageSize)
		})
		if err != nil {
			return found, err
		}
		if len(sigs) == 0 {
			break
		}

		for _, sig := range sigs {
			if sig.Err != nil {
				continue
			}
			tx, err := ratelimit.Do(ctx, limiter, func(ctx context.Context) (*rpc.Transaction, error) {
				return reader.GetTransaction(ctx, sig.Signature)
			})
			if err != nil {
				if ctx.Err() != nil {
					return found, ctx.Err()
				}
				logger.Warn("Skipping transaction", zap.String("signature", sig.Signature), zap.Error(err))
				continue
			}
			if tx == nil || tx.Meta == nil || !IsLaunch(tx.Meta.LogMessages) {
				continue
			}

			launch, err := d.resolve(ctx, sig.Signature, sig.Slot, tx.Meta.LogMessages)
			if err != nil {
				if !errors.Is(err, ErrDuplicateLaunch) {
					logger.Debug("Historical launch unresolved", zap.String("signature", sig.Signature), zap.Error(err))
				}
				continue
			}
			found = append(found, launch)
		}

		before = sigs[len(sigs)-1].Signature
		logger.Debug("Backfill page scanned", zap.Int("page", page), zap.Int("launches", len(found)))
	}

	logger.Info("Backfill complete", zap.Int("launches", len(found)))
	return found, nil
}
