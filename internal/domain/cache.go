package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache provides fast access to the latest reference prices.
type PriceCache interface {
	SetPrice(ctx context.Context, asset string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, asset string) (decimal.Decimal, time.Time, error)
}

// MarketKeyCache keeps the market-key directory close at hand.
type MarketKeyCache interface {
	SetAll(ctx context.Context, keys []MarketKey) error
	All(ctx context.Context) ([]MarketKey, error)
	GetByAddress(ctx context.Context, address string) (MarketKey, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter bounds how often a key may act within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
