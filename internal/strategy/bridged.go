package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

const (
	defaultBridgedMinSpreadBps = 20
	defaultBridgedFeeBps       = 4
	bridgedDepthFrac           = 0.10
)

// BridgedConfig tunes the bridged_asset strategy.
type BridgedConfig struct {
	MinSpreadBps  float64
	BridgeFeeBps  float64  // wrap/unwrap round-trip cost charged against the edge
	WrappedAssets []string // base tokens the strategy will touch, e.g. WETH, WBTC
}

// BridgedAsset arbitrages wrapped representations of the same underlying
// across venues. Wrapped markets lag their canonical market when bridge flow
// is congested, so the edge must clear the wrap/unwrap round-trip cost on
// top of the usual floors.
type BridgedAsset struct {
	cfg     BridgedConfig
	wrapped map[string]struct{}
	logger  *slog.Logger
}

// NewBridgedAsset creates the bridged_asset strategy.
func NewBridgedAsset(cfg BridgedConfig, logger *slog.Logger) *BridgedAsset {
	if cfg.MinSpreadBps <= 0 {
		cfg.MinSpreadBps = defaultBridgedMinSpreadBps
	}
	if cfg.BridgeFeeBps < 0 {
		cfg.BridgeFeeBps = defaultBridgedFeeBps
	}
	wrapped := make(map[string]struct{}, len(cfg.WrappedAssets))
	for _, a := range cfg.WrappedAssets {
		wrapped[strings.ToUpper(a)] = struct{}{}
	}
	return &BridgedAsset{
		cfg:     cfg,
		wrapped: wrapped,
		logger:  logger.With(slog.String("strategy", "bridged_asset")),
	}
}

// Name implements domain.Strategy.
func (s *BridgedAsset) Name() string { return "bridged_asset" }

// Evaluate implements domain.Strategy.
func (s *BridgedAsset) Evaluate(_ context.Context, opp domain.Opportunity, market domain.MarketState) (*domain.ExecutionPlan, error) {
	if _, ok := s.wrapped[strings.ToUpper(opp.Pair.Base)]; !ok {
		return nil, nil
	}
	if opp.SpreadBps-s.cfg.BridgeFeeBps < s.cfg.MinSpreadBps {
		return nil, nil
	}
	src, okSrc := market.Snapshot(opp.SourcePool)
	dst, okDst := market.Snapshot(opp.DestPool)
	if !okSrc || !okDst || src.Price <= 0 {
		return nil, nil
	}

	borrowQuote := opp.InputAmount * src.Price
	if depthCap := math.Min(src.Liquidity, dst.Liquidity) * bridgedDepthFrac; borrowQuote > depthCap {
		borrowQuote = depthCap
	}
	if borrowQuote <= 0 {
		return nil, nil
	}

	trade, ok := priceRoundTrip(opp, market, borrowQuote)
	if !ok {
		return nil, nil
	}
	net := trade.outQuote - trade.borrowQuote - trade.borrowQuote*s.cfg.BridgeFeeBps/10_000
	if net <= 0 {
		return nil, nil
	}

	steps, err := buildSteps(trade.legs, market, market.Params.SlippageCeilingBps)
	if err != nil {
		return nil, fmt.Errorf("strategy: bridged_asset: %w", err)
	}
	score := riskScore(0.20, opp.EstimatedSlippageBps, market.Params.SlippageCeilingBps, opp.Confidence)
	plan, ok := draftPlan(s.Name(), opp, steps, borrowQuote, net, market, score)
	if !ok {
		return nil, nil
	}
	s.logger.Debug("plan drafted",
		slog.String("opportunity_id", opp.ID),
		slog.String("asset", opp.Pair.Base),
		slog.Float64("net_quote", net),
	)
	return plan, nil
}

var _ domain.Strategy = (*BridgedAsset)(nil)
