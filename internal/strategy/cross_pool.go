package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

const (
	defaultCrossPoolMinSpreadBps  = 10
	defaultCrossPoolLiquidityFrac = 0.10
)

// CrossPoolConfig tunes the cross_pool strategy.
type CrossPoolConfig struct {
	MinSpreadBps  float64
	MaxTradeSize  float64 // ETH notional cap on the borrowed position
	LiquidityFrac float64 // borrow size as a fraction of the shallower pool
}

// CrossPool trades the plain two-pool spread: borrow the quote token, buy the
// base where it is cheap, sell it where it is dear, repay.
type CrossPool struct {
	cfg    CrossPoolConfig
	logger *slog.Logger
}

// NewCrossPool creates the cross_pool strategy.
func NewCrossPool(cfg CrossPoolConfig, logger *slog.Logger) *CrossPool {
	if cfg.MinSpreadBps <= 0 {
		cfg.MinSpreadBps = defaultCrossPoolMinSpreadBps
	}
	if cfg.LiquidityFrac <= 0 || cfg.LiquidityFrac > 1 {
		cfg.LiquidityFrac = defaultCrossPoolLiquidityFrac
	}
	return &CrossPool{
		cfg:    cfg,
		logger: logger.With(slog.String("strategy", "cross_pool")),
	}
}

// Name implements domain.Strategy.
func (s *CrossPool) Name() string { return "cross_pool" }

// Evaluate implements domain.Strategy.
func (s *CrossPool) Evaluate(_ context.Context, opp domain.Opportunity, market domain.MarketState) (*domain.ExecutionPlan, error) {
	if opp.SpreadBps < s.cfg.MinSpreadBps {
		return nil, nil
	}
	src, okSrc := market.Snapshot(opp.SourcePool)
	dst, okDst := market.Snapshot(opp.DestPool)
	if !okSrc || !okDst || src.Price <= 0 {
		return nil, nil
	}

	depth := math.Min(src.Liquidity, dst.Liquidity)
	borrowQuote := depth * s.cfg.LiquidityFrac
	if suggested := opp.InputAmount * src.Price; suggested > 0 && suggested < borrowQuote {
		borrowQuote = suggested
	}
	if s.cfg.MaxTradeSize > 0 {
		if position, ok := ethValue(opp.Pair.Quote, borrowQuote, market); ok && position > s.cfg.MaxTradeSize {
			borrowQuote *= s.cfg.MaxTradeSize / position
		}
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
		return nil, fmt.Errorf("strategy: cross_pool: %w", err)
	}
	score := riskScore(0.15, opp.EstimatedSlippageBps, market.Params.SlippageCeilingBps, opp.Confidence)
	plan, ok := draftPlan(s.Name(), opp, steps, borrowQuote, net, market, score)
	if !ok {
		return nil, nil
	}
	s.logger.Debug("plan drafted",
		slog.String("opportunity_id", opp.ID),
		slog.Float64("borrow_quote", borrowQuote),
		slog.Float64("net_quote", net),
	)
	return plan, nil
}

var _ domain.Strategy = (*CrossPool)(nil)
