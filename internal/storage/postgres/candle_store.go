// internal/storage/postgres/candle_store.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/storage"
)

// CandleStore implements storage.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *Pool
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

var _ storage.CandleStore = (*CandleStore)(nil)

// Insert stores a closed candle.
func (s *CandleStore) Insert(ctx context.Context, c domain.Candle) error {
	query := `
		INSERT INTO candles (
			pool, interval_ms, open_time, close_time, open, high, low, close, ticks
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		c.Pool,
		c.Interval.Milliseconds(),
		c.OpenTime,
		c.CloseTime,
		c.Open,
		c.High,
		c.Low,
		c.Close,
		c.Ticks,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert candle: %w", err)
	}
	return nil
}

// Range returns candles with open_time in [from, to), oldest first.
func (s *CandleStore) Range(ctx context.Context, pool string, interval time.Duration, from, to time.Time) ([]domain.Candle, error) {
	query := `
		SELECT pool, interval_ms, open_time, close_time, open, high, low, close, ticks
		FROM candles
		WHERE pool = $1 AND interval_ms = $2 AND open_time >= $3 AND open_time < $4
		ORDER BY open_time ASC
	`

	rows, err := s.pool.Query(ctx, query, pool, interval.Milliseconds(), from, to)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []domain.Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}
	return out, nil
}

// Latest returns the newest candle of pool.
func (s *CandleStore) Latest(ctx context.Context, pool string, interval time.Duration) (domain.Candle, error) {
	query := `
		SELECT pool, interval_ms, open_time, close_time, open, high, low, close, ticks
		FROM candles
		WHERE pool = $1 AND interval_ms = $2
		ORDER BY open_time DESC
		LIMIT 1
	`

	c, err := scanCandle(s.pool.QueryRow(ctx, query, pool, interval.Milliseconds()))
	if err != nil {
		if isNotFoundError(err) {
			return domain.Candle{}, storage.ErrNotFound
		}
		return domain.Candle{}, err
	}
	return c, nil
}

func scanCandle(row pgx.Row) (domain.Candle, error) {
	var (
		c          domain.Candle
		intervalMs int64
	)
	err := row.Scan(
		&c.Pool,
		&intervalMs,
		&c.OpenTime,
		&c.CloseTime,
		&c.Open,
		&c.High,
		&c.Low,
		&c.Close,
		&c.Ticks,
	)
	if err != nil {
		if isNotFoundError(err) {
			return domain.Candle{}, err
		}
		return domain.Candle{}, fmt.Errorf("scan candle: %w", err)
	}
	c.Interval = time.Duration(intervalMs) * time.Millisecond
	c.Tag = domain.CandleClose
	return c, nil
}
