package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest per-pool prices.
type PriceCache interface {
	SetPrice(ctx context.Context, poolID string, price, liquidity float64, ts time.Time) error
	GetPrice(ctx context.Context, poolID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, poolIDs []string) (map[string]float64, error)
}

// QuoteCache holds loan quotes under a short TTL. Capacity figures race other
// consumers of the same protocols, so entries are revalidated before use and
// never trusted past their TTL.
type QuoteCache interface {
	SetLoanQuote(ctx context.Context, q LoanQuote) error
	GetLoanQuote(ctx context.Context, providerID, asset string) (LoanQuote, error)
	Invalidate(ctx context.Context, providerID, asset string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
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

// EventBus provides pub/sub fan-out plus durable streams for the settlement,
// risk, and parameter events consumed by dashboards.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
