// Package risk enforces capital limits and the circuit breaker between
// strategy planning and execution. The Gate is the single authority over
// risk state: all mutation flows through its methods under one mutex, and
// everyone else reads point-in-time snapshots.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// Config holds the hard limits the gate enforces. These are not tunable by
// the optimizer.
type Config struct {
	DailyLossCap        float64 // ETH
	MaxPositionSize     float64 // ETH per plan
	MaxOpenPositions    float64 // ETH total reserved
	PoolConcentration   float64 // fraction of MaxOpenPositions per pool
	MinNetProfit        float64 // ETH per trade
	ConsecutiveFailures int     // breaker trips when streak exceeds this
	GasCeilingGwei      float64 // breaker trips at or above this
	SlippageCeilingBps  float64 // worst-case loss bound input
}

type reservation struct {
	size  float64
	pools []string
}

// Gate guards admission of opportunities and plans. It trips its circuit
// breaker on daily loss, failure streaks, and gas spikes; once tripped, only
// an explicit operator reset reopens it.
type Gate struct {
	cfg    Config
	events domain.RiskEventStore
	logger *slog.Logger

	mu           sync.Mutex
	day          time.Time // UTC date the daily counters cover
	dailyLoss    float64
	dailyProfit  float64
	openTotal    float64
	perPool      map[string]float64
	reservations map[string]reservation
	failures     int
	breaker      bool
	breakerWhy   string
	breakerSince *time.Time

	rejections map[domain.RejectReason]int64

	onEvent func(domain.RiskEvent)
}

// New creates a gate with fresh counters. events may be nil in scan-only
// setups; transitions are then logged but not persisted.
func New(cfg Config, events domain.RiskEventStore, logger *slog.Logger) *Gate {
	return &Gate{
		cfg:          cfg,
		events:       events,
		logger:       logger.With(slog.String("component", "risk_gate")),
		day:          utcDay(time.Now()),
		perPool:      make(map[string]float64),
		reservations: make(map[string]reservation),
		rejections:   make(map[domain.RejectReason]int64),
	}
}

// SetEventHook registers a callback invoked for every breaker transition,
// after persistence. Used to fan out operator notifications.
func (g *Gate) SetEventHook(fn func(domain.RiskEvent)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onEvent = fn
}

// Snapshot returns a copy of the current risk state.
func (g *Gate) Snapshot() domain.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()

	per := make(map[string]float64, len(g.perPool))
	for k, v := range g.perPool {
		per[k] = v
	}
	var since *time.Time
	if g.breakerSince != nil {
		t := *g.breakerSince
		since = &t
	}
	return domain.RiskState{
		Day:                 g.day,
		DailyRealizedLoss:   g.dailyLoss,
		DailyRealizedProfit: g.dailyProfit,
		OpenPositionTotal:   g.openTotal,
		PerPoolExposure:     per,
		ConsecutiveFailures: g.failures,
		BreakerActive:       g.breaker,
		BreakerReason:       g.breakerWhy,
		BreakerSince:        since,
	}
}

// Rejections returns a copy of the per-reason rejection counters.
func (g *Gate) Rejections() map[domain.RejectReason]int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[domain.RejectReason]int64, len(g.rejections))
	for k, v := range g.rejections {
		out[k] = v
	}
	return out
}

// AdmitOpportunity is the cheap pre-filter run before strategy evaluation:
// breaker inactive and concentration headroom on both pools.
func (g *Gate) AdmitOpportunity(o domain.Opportunity) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked(time.Now())

	if g.breaker {
		g.rejections[domain.RejectBreakerActive]++
		return false
	}
	poolCap := g.cfg.PoolConcentration * g.cfg.MaxOpenPositions
	if g.perPool[o.SourcePool] >= poolCap || g.perPool[o.DestPool] >= poolCap {
		g.rejections[domain.RejectPoolConcentration]++
		return false
	}
	return true
}

// AdmitPlan validates a plan against every limit and, on acceptance,
// transactionally reserves its position size. The check and the reservation
// are one critical section; a plan that passes has its capital reserved
// before the method returns.
func (g *Gate) AdmitPlan(ctx context.Context, p *domain.ExecutionPlan) error {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked(now)

	// Check 1: breaker.
	if g.breaker {
		return g.rejectLocked(domain.RejectBreakerActive, g.breakerWhy)
	}

	// Check 2: plan freshness.
	if p.Expired(now) {
		return g.rejectLocked(domain.RejectExpired,
			fmt.Sprintf("plan %s expired at %s", p.ID, p.ExpiresAt.Format(time.RFC3339)))
	}

	// Check 3: per-trade minimum profit.
	if p.EstimatedNetProfit < g.cfg.MinNetProfit {
		return g.rejectLocked(domain.RejectMinProfit,
			fmt.Sprintf("net profit %.4f below minimum %.4f", p.EstimatedNetProfit, g.cfg.MinNetProfit))
	}

	// Check 4: position-size limits, per plan and total.
	if p.PositionSize > g.cfg.MaxPositionSize {
		return g.rejectLocked(domain.RejectPositionLimit,
			fmt.Sprintf("position %.2f exceeds per-plan max %.2f", p.PositionSize, g.cfg.MaxPositionSize))
	}
	if g.openTotal+p.PositionSize > g.cfg.MaxOpenPositions {
		return g.rejectLocked(domain.RejectPositionLimit,
			fmt.Sprintf("open total %.2f + %.2f exceeds cap %.2f", g.openTotal, p.PositionSize, g.cfg.MaxOpenPositions))
	}

	// Check 5: daily-loss headroom against the worst case. Running out of
	// headroom is itself a halt condition, not just a rejection.
	worst := p.WorstCaseLoss(g.cfg.SlippageCeilingBps)
	if g.dailyLoss+worst > g.cfg.DailyLossCap {
		g.tripLocked(ctx, "daily_loss_headroom",
			fmt.Sprintf("realized %.2f + worst case %.2f exceeds cap %.2f", g.dailyLoss, worst, g.cfg.DailyLossCap))
		return g.rejectLocked(domain.RejectLossHeadroom,
			fmt.Sprintf("worst-case loss %.2f exceeds remaining headroom %.2f", worst, g.cfg.DailyLossCap-g.dailyLoss))
	}

	// Check 6: per-pool concentration.
	poolCap := g.cfg.PoolConcentration * g.cfg.MaxOpenPositions
	for _, pool := range p.Pools {
		if g.perPool[pool]+p.PositionSize > poolCap {
			return g.rejectLocked(domain.RejectPoolConcentration,
				fmt.Sprintf("pool %s exposure %.2f + %.2f exceeds cap %.2f", pool, g.perPool[pool], p.PositionSize, poolCap))
		}
	}

	// Reserve.
	g.openTotal += p.PositionSize
	for _, pool := range p.Pools {
		g.perPool[pool] += p.PositionSize
	}
	g.reservations[p.ID] = reservation{size: p.PositionSize, pools: p.Pools}

	g.logger.Debug("plan admitted",
		slog.String("plan_id", p.ID),
		slog.Float64("position", p.PositionSize),
		slog.Float64("open_total", g.openTotal))
	return nil
}

// ReleaseSettlement releases a plan's reservation exactly once and applies
// the realized outcome to the daily counters. A second release for the same
// plan is a warned no-op. Only the settlement ledger calls this.
func (g *Gate) ReleaseSettlement(ctx context.Context, planID string, outcome domain.Outcome, realizedProfit float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked(time.Now())

	res, ok := g.reservations[planID]
	if !ok {
		g.logger.Warn("release for unknown or already released plan",
			slog.String("plan_id", planID))
		return
	}
	delete(g.reservations, planID)

	g.openTotal -= res.size
	if g.openTotal < 0 {
		g.openTotal = 0
	}
	for _, pool := range res.pools {
		g.perPool[pool] -= res.size
		if g.perPool[pool] <= 0 {
			delete(g.perPool, pool)
		}
	}

	g.applyOutcomeLocked(ctx, outcome, realizedProfit)
}

// ApplyFinalized applies a late-resolved outcome from reconciliation. The
// reservation was already released when the record entered as unknown; this
// only adjusts loss counters and the failure streak.
func (g *Gate) ApplyFinalized(ctx context.Context, outcome domain.Outcome, realizedProfit float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked(time.Now())
	g.applyOutcomeLocked(ctx, outcome, realizedProfit)
}

// ObserveGasPrice trips the breaker when the network gas price reaches the
// configured ceiling. Callers report every oracle reading here.
func (g *Gate) ObserveGasPrice(ctx context.Context, priceGwei float64) {
	if g.cfg.GasCeilingGwei <= 0 || priceGwei < g.cfg.GasCeilingGwei {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.breaker {
		return
	}
	g.tripLocked(ctx, "gas_ceiling",
		fmt.Sprintf("gas price %.1f gwei at or above ceiling %.1f", priceGwei, g.cfg.GasCeilingGwei))
}

// EmergencyHalt trips the breaker manually. actor identifies the operator.
func (g *Gate) EmergencyHalt(ctx context.Context, actor, reason string) error {
	if actor == "" {
		return fmt.Errorf("risk: halt requires an actor")
	}
	if reason == "" {
		reason = "manual halt"
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.breaker {
		return domain.ErrBreakerActive
	}
	g.recordEventLocked(ctx, domain.RiskEvent{
		Kind:   domain.RiskEventHalt,
		Reason: reason,
		Actor:  actor,
		Detail: g.stateDetailLocked(),
	})
	g.breaker = true
	g.breakerWhy = reason
	now := time.Now().UTC()
	g.breakerSince = &now

	g.logger.Warn("emergency halt",
		slog.String("actor", actor),
		slog.String("reason", reason))
	return nil
}

// ResetBreaker clears a tripped breaker. It is the only tripped→normal
// transition and requires both a reason and an operator identity, which are
// persisted to the risk event store.
func (g *Gate) ResetBreaker(ctx context.Context, reason, actor string) error {
	if reason == "" || actor == "" {
		return fmt.Errorf("risk: breaker reset requires reason and actor")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.breaker {
		return fmt.Errorf("risk: breaker not active")
	}

	g.recordEventLocked(ctx, domain.RiskEvent{
		Kind:   domain.RiskEventReset,
		Reason: reason,
		Actor:  actor,
		Detail: g.stateDetailLocked(),
	})

	g.breaker = false
	g.breakerWhy = ""
	g.breakerSince = nil
	g.failures = 0

	g.logger.Info("breaker reset",
		slog.String("actor", actor),
		slog.String("reason", reason))
	return nil
}

// applyOutcomeLocked updates daily counters and the failure streak, then
// evaluates automatic trip conditions. Caller must hold g.mu.
func (g *Gate) applyOutcomeLocked(ctx context.Context, outcome domain.Outcome, realizedProfit float64) {
	if realizedProfit >= 0 {
		g.dailyProfit += realizedProfit
	} else {
		g.dailyLoss += -realizedProfit
	}

	switch outcome {
	case domain.OutcomeConfirmedProfit:
		g.failures = 0
	case domain.OutcomeConfirmedLoss, domain.OutcomeReverted:
		g.failures++
	case domain.OutcomeUnknown:
		// Not evidence either way; resolved by reconciliation.
	}

	if g.breaker {
		return
	}
	if g.dailyLoss >= g.cfg.DailyLossCap {
		g.tripLocked(ctx, "daily_loss_cap",
			fmt.Sprintf("realized loss %.2f reached cap %.2f", g.dailyLoss, g.cfg.DailyLossCap))
		return
	}
	if g.failures > g.cfg.ConsecutiveFailures {
		g.tripLocked(ctx, "consecutive_failures",
			fmt.Sprintf("%d consecutive failures exceeds threshold %d", g.failures, g.cfg.ConsecutiveFailures))
	}
}

// tripLocked flips the breaker and records the transition. Caller must hold
// g.mu. Re-trips while active are ignored.
func (g *Gate) tripLocked(ctx context.Context, reason, detail string) {
	if g.breaker {
		return
	}
	g.breaker = true
	g.breakerWhy = reason
	now := time.Now().UTC()
	g.breakerSince = &now

	ev := domain.RiskEvent{
		Kind:   domain.RiskEventTrip,
		Reason: reason,
		Actor:  "auto",
		Detail: g.stateDetailLocked(),
	}
	ev.Detail["trigger"] = detail
	g.recordEventLocked(ctx, ev)

	g.logger.Error("circuit breaker tripped",
		slog.String("reason", reason),
		slog.String("detail", detail),
		slog.Float64("daily_loss", g.dailyLoss),
		slog.Int("failures", g.failures))
}

// recordEventLocked persists a transition and fans it out. Persistence
// failures are logged, never raised; a down store must not stop the breaker.
func (g *Gate) recordEventLocked(ctx context.Context, ev domain.RiskEvent) {
	ev.CreatedAt = time.Now().UTC()
	if g.events != nil {
		if err := g.events.Log(ctx, ev); err != nil {
			g.logger.Error("risk event persist failed",
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()))
		}
	}
	if g.onEvent != nil {
		go g.onEvent(ev)
	}
}

func (g *Gate) stateDetailLocked() map[string]any {
	return map[string]any{
		"daily_loss":   g.dailyLoss,
		"daily_profit": g.dailyProfit,
		"open_total":   g.openTotal,
		"failures":     g.failures,
	}
}

// rejectLocked counts and returns a typed rejection. Caller must hold g.mu.
func (g *Gate) rejectLocked(reason domain.RejectReason, detail string) error {
	g.rejections[reason]++
	return domain.RiskRejection{Reason: reason, Detail: detail}
}

// rollDayLocked resets daily counters when the UTC date changes. Caller must
// hold g.mu. Open reservations and breaker state carry across days.
func (g *Gate) rollDayLocked(now time.Time) {
	day := utcDay(now)
	if day.Equal(g.day) {
		return
	}
	g.logger.Info("daily counters rolled",
		slog.String("day", day.Format("2006-01-02")),
		slog.Float64("prev_loss", g.dailyLoss),
		slog.Float64("prev_profit", g.dailyProfit))
	g.day = day
	g.dailyLoss = 0
	g.dailyProfit = 0
}

func utcDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
