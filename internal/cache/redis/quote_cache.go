package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// minQuoteTTL bounds how short a cache entry can live. Quotes with a zero or
// negative TTL are still cached briefly so concurrent planners coalesce.
const minQuoteTTL = time.Second

// QuoteCache implements domain.QuoteCache using JSON-serialized loan quotes
// under per-provider keys.
//
// Key schema:
//
//	quote:loan:{providerID}:{asset} - JSON-encoded LoanQuote
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func loanQuoteKey(providerID, asset string) string {
	return "quote:loan:" + providerID + ":" + asset
}

// SetLoanQuote stores a loan quote under its provider and asset, expiring at
// the quote's own TTL.
func (qc *QuoteCache) SetLoanQuote(ctx context.Context, q domain.LoanQuote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: marshal loan quote %s/%s: %w", q.ProviderID, q.Asset, err)
	}

	ttl := q.TTL
	if ttl < minQuoteTTL {
		ttl = minQuoteTTL
	}

	key := loanQuoteKey(q.ProviderID, q.Asset)
	if err := qc.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set loan quote %s/%s: %w", q.ProviderID, q.Asset, err)
	}
	return nil
}

// GetLoanQuote retrieves a cached loan quote.
// It returns domain.ErrNotFound when no quote is cached, and ErrQuoteStale
// when a cached quote has outlived its TTL but not yet been evicted.
func (qc *QuoteCache) GetLoanQuote(ctx context.Context, providerID, asset string) (domain.LoanQuote, error) {
	data, err := qc.rdb.Get(ctx, loanQuoteKey(providerID, asset)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.LoanQuote{}, domain.ErrNotFound
		}
		return domain.LoanQuote{}, fmt.Errorf("redis: get loan quote %s/%s: %w", providerID, asset, err)
	}

	var q domain.LoanQuote
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.LoanQuote{}, fmt.Errorf("redis: unmarshal loan quote %s/%s: %w", providerID, asset, err)
	}

	if q.Stale(time.Now()) {
		return domain.LoanQuote{}, domain.ErrQuoteStale
	}
	return q, nil
}

// Invalidate removes a cached loan quote.
func (qc *QuoteCache) Invalidate(ctx context.Context, providerID, asset string) error {
	if err := qc.rdb.Del(ctx, loanQuoteKey(providerID, asset)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate loan quote %s/%s: %w", providerID, asset, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
