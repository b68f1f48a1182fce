package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

const (
	defaultSweepMinSpreadBps = 15
	defaultSweepMaxHops      = 3
	defaultSweepSizePerHop   = 250.0

	// sweepHopDecay is the fraction of the spread assumed to survive each
	// additional hop as the two pools converge.
	sweepHopDecay = 0.85

	// sweepDepthFrac caps the total swept size against the shallower pool.
	sweepDepthFrac = 0.25
)

// SweepConfig tunes the liquidity_sweep strategy.
type SweepConfig struct {
	MinSpreadBps float64
	MaxHops      int
	SizePerHop   float64 // quote-token units swept per hop
}

// LiquiditySweep splits a wide spread into fixed-size hops, walking deeper
// into both pools while each hop's expected edge still clears the floor.
// Every hop pairs a buy at the source with a sell at the dest, so the quote
// balance recycles hop to hop inside the single atomic call.
type LiquiditySweep struct {
	cfg    SweepConfig
	logger *slog.Logger
}

// NewLiquiditySweep creates the liquidity_sweep strategy.
func NewLiquiditySweep(cfg SweepConfig, logger *slog.Logger) *LiquiditySweep {
	if cfg.MinSpreadBps <= 0 {
		cfg.MinSpreadBps = defaultSweepMinSpreadBps
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = defaultSweepMaxHops
	}
	if cfg.SizePerHop <= 0 {
		cfg.SizePerHop = defaultSweepSizePerHop
	}
	return &LiquiditySweep{
		cfg:    cfg,
		logger: logger.With(slog.String("strategy", "liquidity_sweep")),
	}
}

// Name implements domain.Strategy.
func (s *LiquiditySweep) Name() string { return "liquidity_sweep" }

// Evaluate implements domain.Strategy.
func (s *LiquiditySweep) Evaluate(_ context.Context, opp domain.Opportunity, market domain.MarketState) (*domain.ExecutionPlan, error) {
	if opp.SpreadBps < s.cfg.MinSpreadBps {
		return nil, nil
	}
	src, okSrc := market.Snapshot(opp.SourcePool)
	dst, okDst := market.Snapshot(opp.DestPool)
	if !okSrc || !okDst || src.Price <= 0 || dst.Price <= 0 {
		return nil, nil
	}
	srcFee := market.PoolFeeBps(opp.SourcePool) / 10_000
	dstFee := market.PoolFeeBps(opp.DestPool) / 10_000
	depthCap := math.Min(src.Liquidity, dst.Liquidity) * sweepDepthFrac

	var (
		legs        []legSpec
		borrowQuote float64
		outQuote    float64
		maxSlipBps  float64
	)
	for hop := 0; hop < s.cfg.MaxHops; hop++ {
		effSpread := opp.SpreadBps * math.Pow(sweepHopDecay, float64(hop))
		if effSpread < s.cfg.MinSpreadBps {
			break
		}
		hopQuote := s.cfg.SizePerHop
		if borrowQuote+hopQuote > depthCap {
			hopQuote = depthCap - borrowQuote
		}
		if hopQuote <= 0 {
			break
		}

		// The dest pool anchors the hop; the source price implied by the
		// decayed spread degrades hop over hop.
		hopSrcPrice := dst.Price / (1 + effSpread/10_000)
		bought := hopQuote / hopSrcPrice * (1 - srcFee)
		sold := bought * dst.Price * (1 - dstFee)
		if sold <= hopQuote {
			break
		}

		legs = append(legs,
			legSpec{
				venue:    opp.SourceVenue,
				pair:     domain.Pair{Base: opp.Pair.Quote, Quote: opp.Pair.Base},
				amountIn: hopQuote,
				expected: bought,
			},
			legSpec{
				venue:    opp.DestVenue,
				pair:     opp.Pair,
				amountIn: bought,
				expected: sold,
			},
		)
		borrowQuote += hopQuote
		outQuote += sold
		maxSlipBps = opp.SpreadBps - effSpread
	}
	if len(legs) == 0 || outQuote <= borrowQuote {
		return nil, nil
	}

	steps, err := buildSteps(legs, market, market.Params.SlippageCeilingBps)
	if err != nil {
		return nil, fmt.Errorf("strategy: liquidity_sweep: %w", err)
	}
	score := riskScore(0.25, opp.EstimatedSlippageBps+maxSlipBps, market.Params.SlippageCeilingBps, opp.Confidence)
	plan, ok := draftPlan(s.Name(), opp, steps, borrowQuote, outQuote-borrowQuote, market, score)
	if !ok {
		return nil, nil
	}
	s.logger.Debug("plan drafted",
		slog.String("opportunity_id", opp.ID),
		slog.Int("hops", len(legs)/2),
		slog.Float64("borrow_quote", borrowQuote),
	)
	return plan, nil
}

var _ domain.Strategy = (*LiquiditySweep)(nil)
