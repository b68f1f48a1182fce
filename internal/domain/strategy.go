package domain

import "context"

// MarketState is the read-only market view handed to strategies during
// evaluation: the freshest snapshot per tracked pool, the static pool
// registry, the venue adapters for requoting, the current gas price, and the
// live parameter snapshot.
type MarketState struct {
	Snapshots    map[string]PriceUpdate // keyed by pool ID
	Pools        map[string]Pool        // keyed by pool ID
	Venues       map[Venue]SwapVenue
	GasPriceGwei float64
	Params       ParamSnapshot
}

// Snapshot returns the latest price update for a pool.
func (m MarketState) Snapshot(poolID string) (PriceUpdate, bool) {
	u, ok := m.Snapshots[poolID]
	return u, ok
}

// PoolFeeBps returns the venue swap fee for a pool, zero when unknown.
func (m MarketState) PoolFeeBps(poolID string) float64 {
	return m.Pools[poolID].FeeBps
}

// GasCostETH converts a gas-unit estimate to ETH at the current gas price.
func (m MarketState) GasCostETH(units uint64) float64 {
	return float64(units) * m.GasPriceGwei * 1e-9
}

// Strategy turns an opportunity into a draft execution plan: the swap legs
// plus a funding request (BorrowAsset, BorrowAmount). The orchestrator binds
// the loan provider and completes the plan. A nil plan with a nil error means
// the strategy declines the opportunity; errors are reserved for faults.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, opp Opportunity, market MarketState) (*ExecutionPlan, error)
}
