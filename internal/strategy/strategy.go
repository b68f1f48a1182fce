// Package strategy holds the closed set of arbitrage strategies and the
// orchestrator that turns admitted opportunities into funded execution plans.
// Strategies are stateless: everything they read arrives in the MarketState
// and everything they produce is a draft plan carrying swap legs plus a
// funding request the orchestrator resolves into a flash loan.
package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/TemamAb/ainex-sub000/internal/chain"
	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// referenceAsset is the token every position and profit figure is normalized
// into.
const referenceAsset = "WETH"

// ethValue converts an amount of a token into ETH notional using the freshest
// WETH-crossed snapshot in the market view. ok is false when no tracked pool
// prices the asset against WETH.
func ethValue(asset string, amount float64, market domain.MarketState) (float64, bool) {
	if asset == referenceAsset {
		return amount, true
	}
	var (
		rate  float64 // ETH per unit of asset
		at    time.Time
		found bool
	)
	for _, snap := range market.Snapshots {
		if snap.Price <= 0 || !snap.Timestamp.After(at) {
			continue
		}
		switch {
		case snap.Pair.Base == asset && snap.Pair.Quote == referenceAsset:
			rate, at, found = snap.Price, snap.Timestamp, true
		case snap.Pair.Base == referenceAsset && snap.Pair.Quote == asset:
			rate, at, found = 1/snap.Price, snap.Timestamp, true
		}
	}
	if !found {
		return 0, false
	}
	return amount * rate, true
}

// legSpec describes one swap leg before step construction. pair.Base is the
// input token; expected is the snapshot-priced output net of the pool fee.
type legSpec struct {
	venue    domain.Venue
	pair     domain.Pair
	amountIn float64
	expected float64
}

// buildSteps converts leg specs into venue swap steps, bounding each leg's
// minimum output by the slippage ceiling.
func buildSteps(legs []legSpec, market domain.MarketState, slippageCeilingBps float64) ([]domain.Step, error) {
	steps := make([]domain.Step, 0, len(legs))
	for _, leg := range legs {
		venue, ok := market.Venues[leg.venue]
		if !ok {
			return nil, fmt.Errorf("strategy: no adapter for venue %s", leg.venue)
		}
		amountWei, err := chain.ToBaseUnits(leg.pair.Base, leg.amountIn)
		if err != nil {
			return nil, fmt.Errorf("strategy: leg %s: %w", leg.pair, err)
		}
		minOut := leg.expected * (1 - slippageCeilingBps/10_000)
		minOutWei, err := chain.ToBaseUnits(leg.pair.Quote, minOut)
		if err != nil {
			return nil, fmt.Errorf("strategy: leg %s: %w", leg.pair, err)
		}
		step, err := venue.BuildSwapStep(leg.pair, amountWei, minOutWei)
		if err != nil {
			return nil, fmt.Errorf("strategy: leg %s: %w", leg.pair, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// roundTrip is the priced buy-source / sell-dest cycle for a given amount of
// the pair's quote token.
type roundTrip struct {
	borrowQuote float64 // quote-token input
	boughtBase  float64 // base tokens held after the source leg
	outQuote    float64 // quote tokens returned by the dest leg
	legs        []legSpec
}

// priceRoundTrip prices borrowing borrowQuote of the pair's quote token,
// buying the base at the source pool, and selling it into the dest pool, net
// of both pool fees.
func priceRoundTrip(opp domain.Opportunity, market domain.MarketState, borrowQuote float64) (roundTrip, bool) {
	src, okSrc := market.Snapshot(opp.SourcePool)
	dst, okDst := market.Snapshot(opp.DestPool)
	if !okSrc || !okDst || src.Price <= 0 || dst.Price <= 0 {
		return roundTrip{}, false
	}
	srcFee := market.PoolFeeBps(opp.SourcePool) / 10_000
	dstFee := market.PoolFeeBps(opp.DestPool) / 10_000

	bought := borrowQuote / src.Price * (1 - srcFee)
	out := bought * dst.Price * (1 - dstFee)
	return roundTrip{
		borrowQuote: borrowQuote,
		boughtBase:  bought,
		outQuote:    out,
		legs: []legSpec{
			{
				venue:    opp.SourceVenue,
				pair:     domain.Pair{Base: opp.Pair.Quote, Quote: opp.Pair.Base},
				amountIn: borrowQuote,
				expected: bought,
			},
			{
				venue:    opp.DestVenue,
				pair:     opp.Pair,
				amountIn: bought,
				expected: out,
			},
		},
	}, true
}

// draftPlan assembles the plan skeleton every strategy emits. netQuote is the
// expected trade surplus in quote-token units before funding cost and gas;
// the orchestrator finalizes those after provider selection.
func draftPlan(strategyID string, opp domain.Opportunity, steps []domain.Step, borrowQuote, netQuote float64, market domain.MarketState, score float64) (*domain.ExecutionPlan, bool) {
	position, ok := ethValue(opp.Pair.Quote, borrowQuote, market)
	if !ok {
		return nil, false
	}
	netETH, ok := ethValue(opp.Pair.Quote, netQuote, market)
	if !ok {
		return nil, false
	}
	return &domain.ExecutionPlan{
		ID:                 uuid.New().String(),
		OpportunityID:      opp.ID,
		StrategyID:         strategyID,
		Steps:              steps,
		Pools:              []string{opp.SourcePool, opp.DestPool},
		BorrowAsset:        opp.Pair.Quote,
		BorrowAmount:       borrowQuote,
		PositionSize:       position,
		EstimatedNetProfit: netETH,
		RiskScore:          score,
		CreatedAt:          time.Now().UTC(),
	}, true
}

// riskScore blends a strategy's base risk with slippage pressure and the
// scanner's detection confidence into a 0..1 score.
func riskScore(base, slippageBps, ceilingBps, confidence float64) float64 {
	s := base
	if ceilingBps > 0 {
		s += 0.4 * math.Min(1, slippageBps/ceilingBps)
	}
	s += 0.3 * (1 - confidence)
	return clamp(s, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
