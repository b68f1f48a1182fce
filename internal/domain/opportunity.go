package domain

import "time"

// Opportunity is one detected cross-venue price discrepancy. It is immutable
// once created and is consumed by at most one execution plan; stale
// opportunities are discarded at every hand-off.
type Opportunity struct {
	ID          string
	Pair        Pair
	SourcePool  string // pool to buy from (lower price)
	DestPool    string // pool to sell into (higher price)
	SourceVenue Venue
	DestVenue   Venue
	SourcePrice float64
	DestPrice   float64

	SpreadBps            float64 // gross spread in basis points
	InputAmount          float64 // suggested trade size, ETH notional
	ExpectedGrossProfit  float64 // ETH, before fees and gas
	EstimatedSlippageBps float64
	Confidence           float64 // 0..1, depth and volatility weighted

	DiscoveredAt time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the opportunity is past its expiry.
func (o Opportunity) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
