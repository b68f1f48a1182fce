// Package scanner turns raw pool ticks into ranked cross-venue arbitrage
// opportunities. One monitor goroutine per pool evaluates ticks against the
// shared price table; hits flow into a bounded queue consumed by the
// strategy workers.
package scanner

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// depthFraction is the portion of the shallower pool's depth a suggested
// trade may consume.
const depthFraction = 0.10

// monitorBuffer bounds each pool monitor's inbox. When a monitor falls
// behind, the oldest buffered tick is replaced rather than blocking the feed.
const monitorBuffer = 16

// recentCap is how many emitted opportunities the scanner remembers for the
// dashboard.
const recentCap = 64

// ParamSource exposes the live tunable parameters. The scanner reads a fresh
// snapshot on every evaluation and never holds one across evaluations.
type ParamSource interface {
	Params() domain.ParamSnapshot
}

// Config holds scanner tuning.
type Config struct {
	SpreadThresholdBps float64       // fallback when no param snapshot is live
	FeeGasFloorBps     float64       // spread consumed by fees and gas
	QueueSize          int
	OpportunityTTL     time.Duration
	VolatilityWindow   time.Duration
	MinLiquidity       float64 // quote-token units
	ConfidenceFloor    float64
}

// Stats is a point-in-time view of scanner counters.
type Stats struct {
	Evaluated  int64
	Suppressed int64
	Queue      QueueStats
}

// Scanner evaluates pool ticks and emits opportunities. HandleTick is safe
// to call from any goroutine; evaluation happens on per-pool monitors.
type Scanner struct {
	cfg     Config
	pools   map[string]domain.Pool
	table   *priceTable
	spreads *spreadTracker
	queue   *Queue
	params  ParamSource
	logger  *slog.Logger

	inbox map[string]chan domain.PriceUpdate

	cooldownMu sync.Mutex
	cooldown   map[string]time.Time // srcPool->dstPool pairing -> last emit

	recentMu   sync.Mutex
	recent     []domain.Opportunity // ring, newest at recentNext-1
	recentNext int

	evaluated  atomic.Int64
	suppressed atomic.Int64
}

// New creates a scanner over the tracked pools. params may be nil, in which
// case the configured spread threshold is used unconditionally.
func New(cfg Config, pools []domain.Pool, params ParamSource, logger *slog.Logger) *Scanner {
	byID := make(map[string]domain.Pool, len(pools))
	inbox := make(map[string]chan domain.PriceUpdate, len(pools))
	for _, p := range pools {
		byID[p.ID] = p
		inbox[p.ID] = make(chan domain.PriceUpdate, monitorBuffer)
	}
	return &Scanner{
		cfg:      cfg,
		pools:    byID,
		table:    newPriceTable(pools),
		spreads:  newSpreadTracker(cfg.VolatilityWindow),
		queue:    NewQueue(cfg.QueueSize),
		params:   params,
		logger:   logger.With(slog.String("component", "scanner")),
		inbox:    inbox,
		cooldown: make(map[string]time.Time),
	}
}

// Queue returns the opportunity queue consumed by the strategy workers.
func (s *Scanner) Queue() *Queue {
	return s.queue
}

// Snapshots returns a copy of the freshest price snapshot per pool.
func (s *Scanner) Snapshots() map[string]domain.PriceUpdate {
	return s.table.All()
}

// Stats returns cumulative scanner counters.
func (s *Scanner) Stats() Stats {
	return Stats{
		Evaluated:  s.evaluated.Load(),
		Suppressed: s.suppressed.Load(),
		Queue:      s.queue.Stats(),
	}
}

// HandleTick routes a tick to its pool monitor without blocking. If the
// monitor's inbox is full the oldest buffered tick is displaced; only the
// freshest prices matter.
func (s *Scanner) HandleTick(u domain.PriceUpdate) {
	ch, ok := s.inbox[u.PoolID]
	if !ok {
		return
	}
	for {
		select {
		case ch <- u:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// Run starts one monitor per pool and blocks until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for id, ch := range s.inbox {
		wg.Add(1)
		go func(poolID string, ch chan domain.PriceUpdate) {
			defer wg.Done()
			s.monitor(ctx, poolID, ch)
		}(id, ch)
	}
	s.logger.Info("scanner started", slog.Int("pools", len(s.inbox)))
	wg.Wait()
	s.logger.Info("scanner stopped")
	return ctx.Err()
}

// monitor consumes ticks for one pool.
func (s *Scanner) monitor(ctx context.Context, poolID string, ch chan domain.PriceUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-ch:
			s.evaluate(u)
		}
	}
}

// evaluate updates the price table and compares the ticked pool against every
// peer venue tracking the same pair.
func (s *Scanner) evaluate(u domain.PriceUpdate) {
	s.evaluated.Add(1)
	s.table.Update(u)

	if u.Price <= 0 {
		return
	}

	// A price older than the opportunity TTL cannot back a fresh opportunity.
	now := time.Now()
	peers := s.table.Peers(u.Pair, u.PoolID, s.cfg.OpportunityTTL, now)
	if len(peers) == 0 {
		return
	}

	threshold := s.threshold()
	pairKey := u.Pair.String()

	for _, peer := range peers {
		if peer.Price <= 0 {
			continue
		}

		// Orient so we buy on the cheaper pool and sell into the dearer one.
		src, dst := u, peer
		if src.Price > dst.Price {
			src, dst = dst, src
		}

		spreadBps := (dst.Price - src.Price) / src.Price * 10_000
		s.spreads.Track(pairKey, spreadBps, now)

		netSpreadBps := spreadBps - s.cfg.FeeGasFloorBps
		if netSpreadBps < threshold {
			continue
		}

		depth := math.Min(src.Liquidity, dst.Liquidity)
		if depth < s.cfg.MinLiquidity {
			continue
		}

		conf := s.confidence(pairKey, depth, threshold)
		if conf < s.cfg.ConfidenceFloor {
			continue
		}

		if !s.clearCooldown(src.PoolID, dst.PoolID, now) {
			s.suppressed.Add(1)
			continue
		}

		tradeQuote := depth * depthFraction
		inputAmount := tradeQuote / src.Price

		opp := domain.Opportunity{
			ID:          uuid.New().String(),
			Pair:        u.Pair,
			SourcePool:  src.PoolID,
			DestPool:    dst.PoolID,
			SourceVenue: src.Venue,
			DestVenue:   dst.Venue,
			SourcePrice: src.Price,
			DestPrice:   dst.Price,

			SpreadBps:            spreadBps,
			InputAmount:          inputAmount,
			ExpectedGrossProfit:  inputAmount * (dst.Price - src.Price) / dst.Price,
			EstimatedSlippageBps: tradeQuote / depth * 100,
			Confidence:           conf,

			DiscoveredAt: now,
			ExpiresAt:    now.Add(s.cfg.OpportunityTTL),
		}

		s.queue.Push(opp)
		s.remember(opp)
		s.logger.Debug("opportunity emitted",
			slog.String("id", opp.ID),
			slog.String("pair", pairKey),
			slog.String("src", opp.SourcePool),
			slog.String("dst", opp.DestPool),
			slog.Float64("spread_bps", spreadBps),
			slog.Float64("confidence", conf))
	}
}

// remember appends an emitted opportunity to the recent ring.
func (s *Scanner) remember(opp domain.Opportunity) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	if len(s.recent) < recentCap {
		s.recent = append(s.recent, opp)
		s.recentNext = len(s.recent) % recentCap
		return
	}
	s.recent[s.recentNext] = opp
	s.recentNext = (s.recentNext + 1) % recentCap
}

// Recent returns up to limit recently emitted opportunities, newest first.
func (s *Scanner) Recent(limit int) []domain.Opportunity {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	n := len(s.recent)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Opportunity, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (s.recentNext - 1 - i + n) % n
		out = append(out, s.recent[idx])
	}
	return out
}

// threshold reads the live spread threshold, falling back to the configured
// default when no snapshot is published yet.
func (s *Scanner) threshold() float64 {
	if s.params != nil {
		if p := s.params.Params(); p.SpreadThresholdBps > 0 {
			return p.SpreadThresholdBps
		}
	}
	return s.cfg.SpreadThresholdBps
}

// confidence scores an opportunity from depth and recent spread volatility.
// Deeper books raise it, choppy spreads lower it. Clamped to [0.10, 0.99].
func (s *Scanner) confidence(pairKey string, depth, threshold float64) float64 {
	depthScore := 1.0
	if s.cfg.MinLiquidity > 0 {
		depthScore = math.Min(1, depth/(s.cfg.MinLiquidity*10))
	}

	volScore := 0.0
	if threshold > 0 {
		volScore = math.Min(1, s.spreads.Volatility(pairKey)/(2*threshold))
	}

	conf := 0.40 + 0.50*depthScore - 0.30*volScore
	return math.Max(0.10, math.Min(0.99, conf))
}

// clearCooldown reports whether a pairing may emit again, recording the emit
// time when it may. Repeated ticks re-detecting the same live spread would
// otherwise flood the queue with duplicates.
func (s *Scanner) clearCooldown(srcPool, dstPool string, now time.Time) bool {
	key := srcPool + ">" + dstPool
	period := s.cfg.OpportunityTTL / 2

	s.cooldownMu.Lock()
	defer s.cooldownMu.Unlock()
	if last, ok := s.cooldown[key]; ok && now.Sub(last) < period {
		return false
	}
	s.cooldown[key] = now
	return true
}
