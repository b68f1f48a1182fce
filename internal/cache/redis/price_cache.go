package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// PriceCache holds the latest observed state per pool in a hash at
// "price:{poolID}": fields "price", "liq", and "ts" (Unix nanoseconds).
// The feed writes it on every tick; the dashboard and a restarting scanner
// read it back.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(poolID string) string {
	return "price:" + poolID
}

// SetPrice stores the latest price, liquidity, and observation time for a
// pool, overwriting the previous tick.
func (pc *PriceCache) SetPrice(ctx context.Context, poolID string, price, liquidity float64, ts time.Time) error {
	err := pc.rdb.HSet(ctx, priceKey(poolID), map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"liq":   strconv.FormatFloat(liquidity, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: set price %s: %w", poolID, err)
	}
	return nil
}

// GetPrice returns the latest price and observation time for a pool, or
// domain.ErrNotFound when no tick has been stored.
func (pc *PriceCache) GetPrice(ctx context.Context, poolID string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(poolID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", poolID, err)
	}

	price, ts, err := decodePriceHash(vals)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, time.Time{}, domain.ErrNotFound
		}
		return 0, time.Time{}, fmt.Errorf("redis: price %s: %w", poolID, err)
	}
	return price, ts, nil
}

// GetPrices fetches prices for several pools in one pipeline round trip.
// Pools without a stored tick are omitted from the result.
func (pc *PriceCache) GetPrices(ctx context.Context, poolIDs []string) (map[string]float64, error) {
	if len(poolIDs) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(poolIDs))
	for _, id := range poolIDs {
		cmds[id] = pipe.HGetAll(ctx, priceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(poolIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		price, _, err := decodePriceHash(vals)
		if err != nil {
			continue
		}
		result[id] = price
	}
	return result, nil
}

// decodePriceHash pulls price and timestamp out of a stored hash. An empty or
// partial hash maps to domain.ErrNotFound.
func decodePriceHash(vals map[string]string) (float64, time.Time, error) {
	priceStr, okPrice := vals["price"]
	tsStr, okTS := vals["ts"]
	if !okPrice || !okTS {
		return 0, time.Time{}, domain.ErrNotFound
	}

	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse price: %w", err)
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse ts: %w", err)
	}
	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
