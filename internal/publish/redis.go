// Package publish pushes detected launches to a Redis stream for downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/events"
)

const (
	SchemaVersion   = 1
	DefaultStream   = "pumpwatch:launches"
	DefaultMaxLen   = 100_000
	defaultDeadline = 3 * time.Second
)

// StreamAdder is the subset of the Redis client used here.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Launch is the payload stored in the "data" field of each stream entry.
type Launch struct {
	SchemaVersion int    `json:"schema_version"`
	Signature     string `json:"signature"`
	Mint          string `json:"mint"`
	BondingCurve  string `json:"bonding_curve"`
	Slot          uint64 `json:"slot"`
	Source        string `json:"source"`
	DetectedAt    int64  `json:"detected_at"`
	PublishedAt   int64  `json:"published_at"`
	// VirtualSOL and VirtualTokens come from the first curve snapshot, when known.
	VirtualSOL    uint64 `json:"virtual_sol_reserves,omitempty"`
	VirtualTokens uint64 `json:"virtual_token_reserves,omitempty"`
}

// NewRedisClient creates a client with the connection settings used for stream writes.
func NewRedisClient(addr string, logger *zap.Logger) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			logger.Debug("Redis connected", zap.String("addr", addr))
			return nil
		},
	})
}

// RedisPublisher appends launches to a capped stream.
type RedisPublisher struct {
	client StreamAdder
	stream string
	maxLen int64
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisPublisher creates a publisher. An empty stream uses DefaultStream.
func NewRedisPublisher(client StreamAdder, stream string, maxLen int64, logger *zap.Logger) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &RedisPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.Named("publisher"),
		now:    time.Now,
	}
}

// PublishLaunch writes one entry and returns its stream id.
func (p *RedisPublisher) PublishLaunch(ctx context.Context, l domain.LaunchEvent) (string, error) {
	msg := Launch{
		SchemaVersion: SchemaVersion,
		Signature:     l.Signature,
		Mint:          l.Mint.String(),
		BondingCurve:  l.BondingCurve.String(),
		Slot:          l.Slot,
		Source:        l.Source,
		DetectedAt:    l.DetectedAt.UnixMilli(),
		PublishedAt:   p.now().UnixMilli(),
	}
	if l.Snapshot != nil {
		msg.VirtualSOL = l.Snapshot.VirtualSolReserves
		msg.VirtualTokens = l.Snapshot.VirtualTokenReserves
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal launch: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultDeadline)
	defer cancel()

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"mint": msg.Mint,
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}

	p.logger.Debug("Launch published",
		zap.String("stream", p.stream),
		zap.String("id", id),
		zap.String("mint", msg.Mint))
	return id, nil
}

// Bind publishes every LaunchDetected event from the bus.
func (p *RedisPublisher) Bind(bus *events.Bus) events.Subscription {
	return bus.Subscribe(events.LaunchDetected, events.LaunchHandler(func(ctx context.Context, e events.LaunchDetectedEvent) error {
		if _, err := p.PublishLaunch(ctx, e.Launch); err != nil {
			p.logger.Error("Failed to publish launch",
				zap.String("signature", e.Launch.Signature),
				zap.Error(err))
			return err
		}
		return nil
	}))
}
