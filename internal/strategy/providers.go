package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/chain"
	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// Funding is a bound loan: the chosen provider, its validated quote, and the
// ready borrow and repay steps.
type Funding struct {
	Provider domain.LoanProvider
	Quote    domain.LoanQuote
	Borrow   domain.Step
	Repay    domain.Step
	Fee      float64 // flash fee in borrow-asset units
}

// GasOverhead is the gas the funding steps add on top of the swap legs.
func (f Funding) GasOverhead() uint64 {
	return f.Borrow.GasUnits + f.Repay.GasUnits
}

// ProviderSet selects the cheapest funding source among the configured
// lending protocols. Capacity figures race other consumers of the same
// protocols, so quotes live in a short-TTL cache and are re-validated live
// before a plan is submitted.
type ProviderSet struct {
	providers []domain.LoanProvider
	quotes    domain.QuoteCache
	logger    *slog.Logger
}

// NewProviderSet creates a ProviderSet. quotes may be nil, which disables
// caching and forces a live quote per selection.
func NewProviderSet(providers []domain.LoanProvider, quotes domain.QuoteCache, logger *slog.Logger) *ProviderSet {
	return &ProviderSet{
		providers: providers,
		quotes:    quotes,
		logger:    logger.With(slog.String("component", "providers")),
	}
}

// Select quotes every provider able to fund amount of asset and binds the
// cheapest: lowest flash fee plus a utilization charge that prefers deeper
// pools, ties broken by the gas overhead of the funding steps.
func (ps *ProviderSet) Select(ctx context.Context, asset string, amount float64) (Funding, error) {
	var (
		best     Funding
		bestCost float64
		found    bool
	)
	for _, p := range ps.providers {
		q, err := ps.quoteFor(ctx, p, asset, amount)
		if err != nil {
			if !errors.Is(err, domain.ErrInsufficientCapacity) && !errors.Is(err, domain.ErrProviderUnavailable) {
				ps.logger.WarnContext(ctx, "provider quote failed",
					slog.String("provider", p.ID()),
					slog.String("asset", asset),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		f, err := ps.bind(p, q, amount)
		if err != nil {
			ps.logger.WarnContext(ctx, "funding step build failed",
				slog.String("provider", p.ID()),
				slog.String("error", err.Error()),
			)
			continue
		}
		cost := fundingCost(q, amount)
		if !found || cost < bestCost || (cost == bestCost && f.GasOverhead() < best.GasOverhead()) {
			best, bestCost, found = f, cost, true
		}
	}
	if !found {
		return Funding{}, fmt.Errorf("strategy: fund %.4f %s: %w", amount, asset, domain.ErrInsufficientCapacity)
	}
	return best, nil
}

// Refresh live-quotes the named provider, replacing any cached quote. The
// executor uses it to re-validate funding immediately before submission.
func (ps *ProviderSet) Refresh(ctx context.Context, providerID, asset string, amount float64) (Funding, error) {
	for _, p := range ps.providers {
		if p.ID() != providerID {
			continue
		}
		q, err := p.Quote(ctx, asset, amount)
		if err != nil {
			return Funding{}, err
		}
		if ps.quotes != nil {
			if cErr := ps.quotes.SetLoanQuote(ctx, q); cErr != nil {
				ps.logger.DebugContext(ctx, "quote cache write failed", slog.String("error", cErr.Error()))
			}
		}
		return ps.bind(p, q, amount)
	}
	return Funding{}, fmt.Errorf("strategy: provider %q: %w", providerID, domain.ErrNotFound)
}

// quoteFor serves from the cache when the entry is fresh and deep enough,
// falling back to a live quote that refreshes the cache.
func (ps *ProviderSet) quoteFor(ctx context.Context, p domain.LoanProvider, asset string, amount float64) (domain.LoanQuote, error) {
	if ps.quotes != nil {
		q, err := ps.quotes.GetLoanQuote(ctx, p.ID(), asset)
		if err == nil && !q.Stale(time.Now()) && q.MaxCapacity >= amount {
			return q, nil
		}
	}
	q, err := p.Quote(ctx, asset, amount)
	if err != nil {
		return domain.LoanQuote{}, err
	}
	if ps.quotes != nil {
		if cErr := ps.quotes.SetLoanQuote(ctx, q); cErr != nil {
			ps.logger.DebugContext(ctx, "quote cache write failed", slog.String("error", cErr.Error()))
		}
	}
	return q, nil
}

// bind builds the borrow and repay steps for a quoted loan.
func (ps *ProviderSet) bind(p domain.LoanProvider, q domain.LoanQuote, amount float64) (Funding, error) {
	amountWei, err := chain.ToBaseUnits(q.Asset, amount)
	if err != nil {
		return Funding{}, fmt.Errorf("strategy: bind %s: %w", p.ID(), err)
	}
	borrow, err := p.BuildBorrowStep(q, amountWei)
	if err != nil {
		return Funding{}, fmt.Errorf("strategy: bind %s: %w", p.ID(), err)
	}
	fee := q.FeeAmount(amount)
	owedWei, err := chain.ToBaseUnits(q.Asset, amount+fee)
	if err != nil {
		return Funding{}, fmt.Errorf("strategy: bind %s: %w", p.ID(), err)
	}
	repay, err := p.BuildRepayStep(q, owedWei)
	if err != nil {
		return Funding{}, fmt.Errorf("strategy: bind %s: %w", p.ID(), err)
	}
	return Funding{Provider: p, Quote: q, Borrow: borrow, Repay: repay, Fee: fee}, nil
}

// fundingCost is the flash fee plus a utilization charge: at equal fee the
// deeper pool wins, and a quote near its capacity is penalized for the
// opportunity cost of exhausting it.
func fundingCost(q domain.LoanQuote, amount float64) float64 {
	fee := q.FeeAmount(amount)
	if q.MaxCapacity <= 0 {
		return fee
	}
	return fee * (1 + amount/q.MaxCapacity)
}
