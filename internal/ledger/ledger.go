// Package ledger is the settlement system of record. Every executed plan
// lands here exactly once, risk reservations are released here, and the
// running aggregates the dashboard and optimizer read are maintained here.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
	"github.com/TemamAb/ainex-sub000/internal/notify"
)

// channelSettlements is the event bus channel carrying finalized and unknown
// settlement events.
const channelSettlements = "settlements"

// ReservationGate releases plan reservations and absorbs realized outcomes.
// The risk gate implements it; the ledger is its only caller.
type ReservationGate interface {
	ReleaseSettlement(ctx context.Context, planID string, outcome domain.Outcome, realizedProfit float64)
	ApplyFinalized(ctx context.Context, outcome domain.Outcome, realizedProfit float64)
}

// Publisher emits settlement events. May be nil when the bus is disabled.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// LossNotifier pushes operator alerts. May be nil.
type LossNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// strategyAccum is the per-strategy running tally behind StrategyPerf.
type strategyAccum struct {
	executions int64
	profitable int64
	confirmed  int64 // mined successfully, profit or loss
	reverted   int64
	unknown    int64
	netProfit  float64
}

// Ledger owns the append-only settlement history and its running aggregates.
// All methods are safe for concurrent use.
type Ledger struct {
	store  domain.SettlementStore
	gate   ReservationGate
	bus    Publisher
	notify LossNotifier
	logger *slog.Logger

	mu         sync.Mutex
	day        time.Time
	hour       time.Time
	totalNet   float64
	dailyNet   float64
	dailyLoss  float64
	hourlyNet  float64
	settled    int64
	confirmed  int64
	reverted   int64
	unknown    int64
	byStrategy map[string]*strategyAccum
}

// New creates a Ledger. bus and notify may be nil.
func New(store domain.SettlementStore, gate ReservationGate, bus Publisher, notify LossNotifier, logger *slog.Logger) *Ledger {
	now := time.Now().UTC()
	return &Ledger{
		store:      store,
		gate:       gate,
		bus:        bus,
		notify:     notify,
		logger:     logger.With(slog.String("component", "ledger")),
		day:        now.Truncate(24 * time.Hour),
		hour:       now.Truncate(time.Hour),
		byStrategy: make(map[string]*strategyAccum),
	}
}

// Hydrate seeds today's aggregates from the store so a restart does not
// reset the daily loss picture the optimizer and dashboard read.
func (l *Ledger) Hydrate(ctx context.Context) error {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	lifetime, err := l.store.SumRealized(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("ledger: hydrate lifetime: %w", err)
	}
	today, err := l.store.SumRealized(ctx, midnight)
	if err != nil {
		return fmt.Errorf("ledger: hydrate realized: %w", err)
	}
	counts, err := l.store.CountByOutcome(ctx, midnight)
	if err != nil {
		return fmt.Errorf("ledger: hydrate counts: %w", err)
	}
	byStrategy, err := l.store.SumRealizedByStrategy(ctx, midnight)
	if err != nil {
		return fmt.Errorf("ledger: hydrate strategies: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalNet = lifetime
	l.dailyNet = today
	if today < 0 {
		// Net figure only; the gross loss detail rebuilds as settlements land.
		l.dailyLoss = -today
	}
	l.confirmed = counts[domain.OutcomeConfirmedProfit] + counts[domain.OutcomeConfirmedLoss]
	l.reverted = counts[domain.OutcomeReverted]
	l.unknown = counts[domain.OutcomeUnknown]
	l.settled = l.confirmed + l.reverted + l.unknown
	for id, net := range byStrategy {
		l.byStrategy[id] = &strategyAccum{netProfit: net}
	}

	l.logger.Info("aggregates hydrated",
		slog.Int64("settled_today", l.settled),
		slog.Float64("daily_net", l.dailyNet))
	return nil
}

// Record appends one settlement. It is idempotent by execution plan ID: a
// duplicate returns domain.ErrDuplicateSettlement and leaves the aggregates
// and the risk reservation untouched. For new records it releases the plan's
// reservation, folds the outcome into the aggregates, publishes a settlement
// event, and alerts on losses.
func (l *Ledger) Record(ctx context.Context, rec domain.SettlementRecord) error {
	if err := l.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrDuplicateSettlement) {
			l.logger.Warn("duplicate settlement dropped",
				slog.String("plan_id", rec.ExecutionPlanID))
			return domain.ErrDuplicateSettlement
		}
		return fmt.Errorf("ledger: insert settlement: %w", err)
	}

	l.gate.ReleaseSettlement(ctx, rec.ExecutionPlanID, rec.Outcome, rec.RealizedProfit)
	l.apply(rec.StrategyID, rec.Outcome, rec.RealizedProfit, false)

	l.logger.Info("settlement recorded",
		slog.String("plan_id", rec.ExecutionPlanID),
		slog.String("strategy", rec.StrategyID),
		slog.String("outcome", string(rec.Outcome)),
		slog.Float64("realized_profit", rec.RealizedProfit),
		slog.Float64("gas_cost", rec.GasCost))

	l.publish(ctx, rec)
	l.alertOnLoss(ctx, rec)
	return nil
}

// Abort releases a plan that never reached the chain. No record is written:
// the ledger holds outcomes, not attempts. The reservation comes back via an
// unknown release, which touches no loss counter or failure streak.
func (l *Ledger) Abort(ctx context.Context, plan *domain.ExecutionPlan, reason string) {
	l.gate.ReleaseSettlement(ctx, plan.ID, domain.OutcomeUnknown, 0)
	l.logger.Info("plan aborted before submission",
		slog.String("plan_id", plan.ID),
		slog.String("strategy", plan.StrategyID),
		slog.String("reason", reason))
}

// Resolve finalizes a previously-unknown record after reconciliation. The
// store update is the only sanctioned mutation of a settlement row; the
// realized outcome then reaches the risk gate and the aggregates. A record
// already final returns domain.ErrAlreadyExists from the store untouched.
func (l *Ledger) Resolve(ctx context.Context, planID string, outcome domain.Outcome, realizedProfit float64) error {
	if err := l.store.Finalize(ctx, planID, outcome, realizedProfit); err != nil {
		return fmt.Errorf("ledger: finalize %s: %w", planID, err)
	}

	l.gate.ApplyFinalized(ctx, outcome, realizedProfit)

	rec, err := l.store.GetByPlanID(ctx, planID)
	if err != nil {
		l.logger.Warn("finalized record readback failed",
			slog.String("plan_id", planID),
			slog.String("error", err.Error()))
		rec = domain.SettlementRecord{ExecutionPlanID: planID, Outcome: outcome, RealizedProfit: realizedProfit}
	}
	l.apply(rec.StrategyID, outcome, realizedProfit, true)

	l.logger.Info("settlement finalized",
		slog.String("plan_id", planID),
		slog.String("outcome", string(outcome)),
		slog.Float64("realized_profit", realizedProfit))

	l.publish(ctx, rec)
	l.alertOnLoss(ctx, rec)
	return nil
}

// Recent returns the latest settlement rows for the dashboard.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.SettlementRecord, error) {
	return l.store.ListRecent(ctx, limit)
}

// Summary snapshots the running aggregates.
func (l *Ledger) Summary() domain.LedgerSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked(time.Now().UTC())

	finalized := l.confirmed + l.reverted
	s := domain.LedgerSummary{
		TotalNetProfit: l.totalNet,
		DailyNetProfit: l.dailyNet,
		DailyLoss:      l.dailyLoss,
		HourlyProfit:   l.hourlyNet,
		Settled:        l.settled,
		Confirmed:      l.confirmed,
		Reverted:       l.reverted,
		Unknown:        l.unknown,
		PerStrategy:    make(map[string]domain.StrategyPerf, len(l.byStrategy)),
		UpdatedAt:      time.Now().UTC(),
	}
	if finalized > 0 {
		profitable := int64(0)
		for _, acc := range l.byStrategy {
			profitable += acc.profitable
		}
		s.SuccessRate = float64(profitable) / float64(finalized)
	}
	for id, acc := range l.byStrategy {
		perf := domain.StrategyPerf{
			Executions: acc.executions,
			Confirmed:  acc.confirmed,
			Reverted:   acc.reverted,
			NetProfit:  acc.netProfit,
		}
		if done := acc.executions - acc.unknown; done > 0 {
			perf.SuccessRate = float64(acc.profitable) / float64(done)
		}
		s.PerStrategy[id] = perf
	}
	return s
}

// apply folds one outcome into the aggregates. finalizing marks a record
// moving out of the unknown bucket rather than a fresh settlement.
func (l *Ledger) apply(strategyID string, outcome domain.Outcome, realized float64, finalizing bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked(time.Now().UTC())

	acc, ok := l.byStrategy[strategyID]
	if !ok {
		acc = &strategyAccum{}
		l.byStrategy[strategyID] = acc
	}

	if finalizing {
		if l.unknown > 0 {
			l.unknown--
		}
		if acc.unknown > 0 {
			acc.unknown--
		}
	} else {
		l.settled++
		acc.executions++
	}

	switch outcome {
	case domain.OutcomeConfirmedProfit:
		l.confirmed++
		acc.confirmed++
		acc.profitable++
	case domain.OutcomeConfirmedLoss:
		l.confirmed++
		acc.confirmed++
	case domain.OutcomeReverted:
		l.reverted++
		acc.reverted++
	case domain.OutcomeUnknown:
		l.unknown++
		acc.unknown++
	}

	l.totalNet += realized
	l.dailyNet += realized
	l.hourlyNet += realized
	if realized < 0 {
		l.dailyLoss += -realized
	}
	acc.netProfit += realized
}

// rollLocked resets the daily and hourly windows when they lap. Caller must
// hold l.mu. Lifetime totals and strategy tallies carry across.
func (l *Ledger) rollLocked(now time.Time) {
	if day := now.Truncate(24 * time.Hour); !day.Equal(l.day) {
		l.logger.Info("ledger day rolled",
			slog.String("day", day.Format("2006-01-02")),
			slog.Float64("prev_net", l.dailyNet),
			slog.Float64("prev_loss", l.dailyLoss))
		l.day = day
		l.dailyNet = 0
		l.dailyLoss = 0
	}
	if hour := now.Truncate(time.Hour); !hour.Equal(l.hour) {
		l.hour = hour
		l.hourlyNet = 0
	}
}

// settlementEvent is the bus payload for one settlement.
type settlementEvent struct {
	PlanID         string    `json:"plan_id"`
	OpportunityID  string    `json:"opportunity_id,omitempty"`
	StrategyID     string    `json:"strategy_id"`
	TxReference    string    `json:"tx_reference,omitempty"`
	Outcome        string    `json:"outcome"`
	RealizedProfit float64   `json:"realized_profit"`
	GasCost        float64   `json:"gas_cost"`
	BlockNumber    uint64    `json:"block_number,omitempty"`
	ConfirmedAt    time.Time `json:"confirmed_at"`
}

func (l *Ledger) publish(ctx context.Context, rec domain.SettlementRecord) {
	if l.bus == nil {
		return
	}
	payload, err := json.Marshal(settlementEvent{
		PlanID:         rec.ExecutionPlanID,
		OpportunityID:  rec.OpportunityID,
		StrategyID:     rec.StrategyID,
		TxReference:    rec.TxReference,
		Outcome:        string(rec.Outcome),
		RealizedProfit: rec.RealizedProfit,
		GasCost:        rec.GasCost,
		BlockNumber:    rec.BlockNumber,
		ConfirmedAt:    rec.ConfirmedAt,
	})
	if err != nil {
		return
	}
	if err := l.bus.Publish(ctx, channelSettlements, payload); err != nil {
		l.logger.Warn("settlement publish failed", slog.String("error", err.Error()))
	}
}

func (l *Ledger) alertOnLoss(ctx context.Context, rec domain.SettlementRecord) {
	if l.notify == nil {
		return
	}
	if rec.Outcome != domain.OutcomeConfirmedLoss && rec.Outcome != domain.OutcomeReverted {
		return
	}
	msg := fmt.Sprintf("plan %s (%s): %.6f ETH, outcome %s, tx %s",
		rec.ExecutionPlanID, rec.StrategyID, rec.RealizedProfit, rec.Outcome, rec.TxReference)
	if err := l.notify.Notify(ctx, notify.EventSettlementLoss, "Settlement loss", msg); err != nil {
		l.logger.Warn("loss alert failed", slog.String("error", err.Error()))
	}
}
