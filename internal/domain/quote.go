package domain

import (
	"context"
	"math/big"
	"time"
)

// LoanQuote is a flash-loan capacity quote from one lending protocol.
// Quotes expire quickly and must be revalidated immediately before use.
type LoanQuote struct {
	ProviderID  string
	Asset       string  // token symbol, e.g. "WETH"
	MaxCapacity float64 // available liquidity in token units
	FeeBps      float64 // flash fee in basis points
	QuotedAt    time.Time
	TTL         time.Duration
}

// Stale reports whether the quote is past its TTL.
func (q LoanQuote) Stale(now time.Time) bool {
	return now.Sub(q.QuotedAt) > q.TTL
}

// FeeAmount returns the flash fee owed for borrowing amount.
func (q LoanQuote) FeeAmount(amount float64) float64 {
	return amount * q.FeeBps / 10_000
}

// SwapQuote is a venue's answer for swapping amountIn of pair.Base.
type SwapQuote struct {
	Venue          Venue
	Pair           Pair
	AmountIn       float64
	AmountOut      float64
	PriceImpactBps float64
	QuotedAt       time.Time
}

// LoanProvider is one external flash-loan protocol (Aave, Balancer, dYdX).
type LoanProvider interface {
	ID() string
	// Quote returns current capacity and fee for borrowing amount of asset.
	// It returns ErrProviderUnavailable when the protocol cannot serve the
	// request and ErrInsufficientCapacity when capacity < amount.
	Quote(ctx context.Context, asset string, amount float64) (LoanQuote, error)
	// BuildBorrowStep produces the borrow step for the quoted loan.
	BuildBorrowStep(q LoanQuote, amountWei *big.Int) (Step, error)
	// BuildRepayStep produces the repay step covering principal plus fee.
	BuildRepayStep(q LoanQuote, owedWei *big.Int) (Step, error)
}

// SwapVenue is one external DEX used for quoting and swap-step construction.
type SwapVenue interface {
	Venue() Venue
	Quote(ctx context.Context, pair Pair, amountIn float64) (SwapQuote, error)
	BuildSwapStep(pair Pair, amountWei, minOutWei *big.Int) (Step, error)
}
