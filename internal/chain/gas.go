package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// GasQuote is a snapshot of current network fee conditions.
type GasQuote struct {
	BaseFee   *big.Int // per-gas base fee from the latest header
	TipCap    *big.Int // suggested priority fee per gas
	FeeCap    *big.Int // 2*BaseFee + TipCap, survives one base fee doubling
	FetchedAt time.Time
}

// GasPriceGwei returns the effective per-gas price (base fee + tip) in gwei.
func (q GasQuote) GasPriceGwei() float64 {
	if q.BaseFee == nil || q.TipCap == nil {
		return 0
	}
	total := new(big.Int).Add(q.BaseFee, q.TipCap)
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(total), big.NewFloat(1e9)).Float64()
	return gwei
}

// CostETH returns the estimated cost in ETH of spending gasUnits at this
// quote's effective price.
func (q GasQuote) CostETH(gasUnits uint64) float64 {
	if q.BaseFee == nil || q.TipCap == nil {
		return 0
	}
	perGas := new(big.Int).Add(q.BaseFee, q.TipCap)
	total := new(big.Int).Mul(perGas, new(big.Int).SetUint64(gasUnits))
	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(total), big.NewFloat(1e18)).Float64()
	return eth
}

// GasOracle serves gas quotes from the node, caching them for a short TTL so
// the scanner and strategy workers do not hammer the RPC endpoint on every
// evaluation.
type GasOracle struct {
	client *Client
	ttl    time.Duration

	mu        sync.Mutex
	cached    GasQuote
	fetchedAt time.Time
}

// NewGasOracle creates a GasOracle with the given cache TTL. A TTL of zero
// disables caching.
func NewGasOracle(client *Client, ttl time.Duration) *GasOracle {
	return &GasOracle{client: client, ttl: ttl}
}

// Quote returns the current gas quote, fetching from the node when the cached
// quote is older than the TTL.
func (o *GasOracle) Quote(ctx context.Context) (GasQuote, error) {
	o.mu.Lock()
	if o.ttl > 0 && time.Since(o.fetchedAt) < o.ttl && o.cached.BaseFee != nil {
		q := o.cached
		o.mu.Unlock()
		return q, nil
	}
	o.mu.Unlock()

	header, err := o.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return GasQuote{}, fmt.Errorf("chain: gas oracle header: %w", err)
	}
	tip, err := o.client.SuggestGasTipCap(ctx)
	if err != nil {
		return GasQuote{}, fmt.Errorf("chain: gas oracle tip cap: %w", err)
	}

	baseFee := header.BaseFee
	if baseFee == nil {
		// Pre-London chain; fall back to the legacy gas price.
		gp, err := o.client.SuggestGasPrice(ctx)
		if err != nil {
			return GasQuote{}, fmt.Errorf("chain: gas oracle gas price: %w", err)
		}
		baseFee = gp
	}

	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)
	q := GasQuote{
		BaseFee:   baseFee,
		TipCap:    tip,
		FeeCap:    feeCap,
		FetchedAt: time.Now().UTC(),
	}

	o.mu.Lock()
	o.cached = q
	o.fetchedAt = q.FetchedAt
	o.mu.Unlock()

	return q, nil
}
