package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

func TestQuoteCache_RoundTrip(t *testing.T) {
	client := setupCache(t)
	qc := NewQuoteCache(client)
	ctx := context.Background()

	q := domain.LoanQuote{
		ProviderID:  "aave",
		Asset:       "WETH",
		MaxCapacity: 180_000,
		FeeBps:      9,
		QuotedAt:    time.Now().UTC(),
		TTL:         30 * time.Second,
	}
	require.NoError(t, qc.SetLoanQuote(ctx, q))

	got, err := qc.GetLoanQuote(ctx, "aave", "WETH")
	require.NoError(t, err)
	assert.Equal(t, "aave", got.ProviderID)
	assert.Equal(t, "WETH", got.Asset)
	assert.Equal(t, 180_000.0, got.MaxCapacity)
	assert.Equal(t, 9.0, got.FeeBps)
	assert.Equal(t, 30*time.Second, got.TTL)
	assert.True(t, got.QuotedAt.Equal(q.QuotedAt))
}

func TestQuoteCache_MissingAndInvalidate(t *testing.T) {
	client := setupCache(t)
	qc := NewQuoteCache(client)
	ctx := context.Background()

	_, err := qc.GetLoanQuote(ctx, "balancer", "USDC")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	q := domain.LoanQuote{
		ProviderID: "balancer",
		Asset:      "USDC",
		QuotedAt:   time.Now().UTC(),
		TTL:        30 * time.Second,
	}
	require.NoError(t, qc.SetLoanQuote(ctx, q))
	require.NoError(t, qc.Invalidate(ctx, "balancer", "USDC"))

	_, err = qc.GetLoanQuote(ctx, "balancer", "USDC")
	assert.ErrorIs(t, err, domain.ErrNotFound, "invalidated quotes are gone")
}

func TestQuoteCache_StaleQuote(t *testing.T) {
	client := setupCache(t)
	qc := NewQuoteCache(client)
	ctx := context.Background()

	// Already past its TTL when cached; the minimum redis expiry keeps the
	// key alive long enough for the staleness check to see it.
	q := domain.LoanQuote{
		ProviderID: "aave",
		Asset:      "DAI",
		QuotedAt:   time.Now().UTC().Add(-2 * time.Second),
		TTL:        time.Second,
	}
	require.NoError(t, qc.SetLoanQuote(ctx, q))

	_, err := qc.GetLoanQuote(ctx, "aave", "DAI")
	assert.ErrorIs(t, err, domain.ErrQuoteStale)
}
