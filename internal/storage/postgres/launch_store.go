// internal/storage/postgres/launch_store.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/storage"
)

// LaunchStore implements storage.LaunchStore using PostgreSQL.
type LaunchStore struct {
	pool *Pool
}

// NewLaunchStore creates a new LaunchStore.
func NewLaunchStore(pool *Pool) *LaunchStore {
	return &LaunchStore{pool: pool}
}

var _ storage.LaunchStore = (*LaunchStore)(nil)

// Insert stores a launch; the snapshot goes into a JSONB column.
func (s *LaunchStore) Insert(ctx context.Context, l domain.LaunchEvent) error {
	var snapshot []byte
	if l.Snapshot != nil {
		var err error
		if snapshot, err = json.Marshal(l.Snapshot); err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
	}

	query := `
		INSERT INTO launches (
			signature, mint, bonding_curve, slot, source, snapshot, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		l.Signature,
		l.Mint.String(),
		l.BondingCurve.String(),
		int64(l.Slot),
		l.Source,
		snapshot,
		l.DetectedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert launch: %w", err)
	}
	return nil
}

// Recent returns up to limit launches, newest first.
func (s *LaunchStore) Recent(ctx context.Context, limit int) ([]domain.LaunchEvent, error) {
	query := `
		SELECT signature, mint, bonding_curve, slot, source, snapshot, detected_at
		FROM launches
		ORDER BY detected_at DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query launches: %w", err)
	}
	defer rows.Close()

	var out []domain.LaunchEvent
	for rows.Next() {
		var (
			l           domain.LaunchEvent
			mint, curve string
			slot        int64
			snapshot    []byte
		)
		if err := rows.Scan(&l.Signature, &mint, &curve, &slot, &l.Source, &snapshot, &l.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan launch: %w", err)
		}
		if l.Mint, err = solana.PublicKeyFromBase58(mint); err != nil {
			return nil, fmt.Errorf("decode mint %q: %w", mint, err)
		}
		if l.BondingCurve, err = solana.PublicKeyFromBase58(curve); err != nil {
			return nil, fmt.Errorf("decode bonding curve %q: %w", curve, err)
		}
		l.Slot = uint64(slot)
		if len(snapshot) > 0 {
			var bc pumpfun.BondingCurve
			if err := json.Unmarshal(snapshot, &bc); err != nil {
				return nil, fmt.Errorf("decode snapshot: %w", err)
			}
			l.Snapshot = &bc
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate launches: %w", err)
	}
	return out, nil
}
