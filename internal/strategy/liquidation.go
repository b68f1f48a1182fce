package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

const (
	defaultLiquidationMinBonusBps = 500
	defaultLiquidationHealth      = 1.0

	// liquidationDepthFrac caps the capture against the shallower pool. The
	// dump is transient, so the strategy is allowed deeper than cross_pool.
	liquidationDepthFrac = 0.25
)

// LiquidationConfig tunes the liquidation_capture strategy.
type LiquidationConfig struct {
	MinBonusBps    float64
	MaxDebtSize    float64 // quote-token cap on a single capture
	HealthCritical float64 // source/dest price ratio at or below which capture arms
}

// LiquidationCapture buys collateral dumped into one pool by liquidation
// flow. A deep discount on one venue while the pair holds elsewhere marks
// the dislocation; the strategy takes the discounted side up to the debt cap
// and exits at the healthy venue. The discount must cover at least the
// protocol liquidation bonus, otherwise the flow is ordinary spread noise.
type LiquidationCapture struct {
	cfg    LiquidationConfig
	logger *slog.Logger
}

// NewLiquidationCapture creates the liquidation_capture strategy.
func NewLiquidationCapture(cfg LiquidationConfig, logger *slog.Logger) *LiquidationCapture {
	if cfg.MinBonusBps <= 0 {
		cfg.MinBonusBps = defaultLiquidationMinBonusBps
	}
	if cfg.HealthCritical <= 0 {
		cfg.HealthCritical = defaultLiquidationHealth
	}
	return &LiquidationCapture{
		cfg:    cfg,
		logger: logger.With(slog.String("strategy", "liquidation_capture")),
	}
}

// Name implements domain.Strategy.
func (s *LiquidationCapture) Name() string { return "liquidation_capture" }

// Evaluate implements domain.Strategy.
func (s *LiquidationCapture) Evaluate(_ context.Context, opp domain.Opportunity, market domain.MarketState) (*domain.ExecutionPlan, error) {
	if opp.SpreadBps < s.cfg.MinBonusBps {
		return nil, nil
	}
	if opp.DestPrice <= 0 {
		return nil, nil
	}
	ratio := opp.SourcePrice / opp.DestPrice
	if ratio > s.cfg.HealthCritical-s.cfg.MinBonusBps/10_000 {
		return nil, nil
	}
	src, okSrc := market.Snapshot(opp.SourcePool)
	dst, okDst := market.Snapshot(opp.DestPool)
	if !okSrc || !okDst || src.Price <= 0 {
		return nil, nil
	}

	borrowQuote := opp.InputAmount * src.Price
	if depthCap := math.Min(src.Liquidity, dst.Liquidity) * liquidationDepthFrac; borrowQuote > depthCap {
		borrowQuote = depthCap
	}
	if s.cfg.MaxDebtSize > 0 && borrowQuote > s.cfg.MaxDebtSize {
		borrowQuote = s.cfg.MaxDebtSize
	}
	if borrowQuote <= 0 {
		return nil, nil
	}

	trade, ok := priceRoundTrip(opp, market, borrowQuote)
	if !ok {
		return nil, nil
	}
	net := trade.outQuote - trade.borrowQuote
	if net <= 0 {
		return nil, nil
	}

	steps, err := buildSteps(trade.legs, market, market.Params.SlippageCeilingBps)
	if err != nil {
		return nil, fmt.Errorf("strategy: liquidation_capture: %w", err)
	}
	// Captures race the liquidation flow itself, so the floor risk is the
	// highest of the set.
	score := riskScore(0.35, opp.EstimatedSlippageBps, market.Params.SlippageCeilingBps, opp.Confidence)
	plan, ok := draftPlan(s.Name(), opp, steps, borrowQuote, net, market, score)
	if !ok {
		return nil, nil
	}
	s.logger.Debug("plan drafted",
		slog.String("opportunity_id", opp.ID),
		slog.Float64("discount_ratio", ratio),
		slog.Float64("borrow_quote", borrowQuote),
	)
	return plan, nil
}

var _ domain.Strategy = (*LiquidationCapture)(nil)
