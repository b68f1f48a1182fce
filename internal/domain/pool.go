package domain

import "time"

// Venue identifies a DEX where a pool lives.
type Venue string

const (
	VenueUniswapV3 Venue = "uniswap_v3"
	VenueUniswapV2 Venue = "uniswap_v2"
	VenueSushiswap Venue = "sushiswap"
	VenueCurve     Venue = "curve"
	VenueBalancer  Venue = "balancer"
)

// Pair is a base/quote token pair, e.g. WETH/USDC.
type Pair struct {
	Base  string
	Quote string
}

// String renders the pair as "BASE/QUOTE".
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Pool is one tracked liquidity pool on a venue.
type Pool struct {
	ID      string
	Venue   Venue
	Pair    Pair
	Address string  // pool contract address
	FeeBps  float64 // venue swap fee in basis points
}

// PriceUpdate is a single price/liquidity snapshot from the market data feed.
type PriceUpdate struct {
	PoolID    string
	Venue     Venue
	Pair      Pair
	Price     float64 // quote tokens per base token
	Liquidity float64 // pool depth in quote-token units
	Timestamp time.Time
}
