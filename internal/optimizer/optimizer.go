// Package optimizer tunes trading parameters from settled performance. It
// proposes; the risk gate disposes. Hard limits never move from here.
package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// channelParams is the event bus channel announcing parameter rollouts.
const channelParams = "params"

// cycleLockKey guards the optimization cycle across instances.
const cycleLockKey = "optimizer:cycle"

// Tuning rules, per cycle.
const (
	defaultInterval      = 15 * time.Minute
	defaultHistoryWindow = 100

	weightUp    = 1.1
	weightDown  = 0.9
	weightCap   = 0.4
	weightFloor = 0.02

	hotSuccessRate  = 0.8
	coldSuccessRate = 0.3
	highRevertRate  = 0.2

	spreadStepBps   = 1.0
	slippageStepBps = 1.0
	positionGrow    = 1.05
	positionShrink  = 0.9

	// minCycleSample is the finalized-settlement floor below which a cycle
	// makes no adjustment. Rates over a handful of trades are noise.
	minCycleSample = 5
)

// SummarySource exposes the ledger's running aggregates.
type SummarySource interface {
	Summary() domain.LedgerSummary
	Recent(ctx context.Context, limit int) ([]domain.SettlementRecord, error)
}

// Publisher announces parameter rollouts. May be nil.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Locker serializes cycles across instances. May be nil for single-instance
// deployments.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Config holds optimizer tunables.
type Config struct {
	Interval       time.Duration
	HistoryWindow  int     // settled records considered per cycle
	MinSpreadBps   float64 // clamp floor for the spread threshold
	MaxSpreadBps   float64
	MinSlippageBps float64
	MaxSlippageBps float64
	MaxPositionCap float64 // the risk gate's hard cap, ETH
}

// Optimizer periodically derives the next parameter snapshot from recent
// settlements and publishes it through an atomic pointer swap. Readers see a
// complete snapshot or the previous one, never a torn update.
type Optimizer struct {
	cfg    Config
	ledger SummarySource
	store  domain.ParamSnapshotStore
	bus    Publisher
	locks  Locker
	logger *slog.Logger

	current atomic.Pointer[domain.ParamSnapshot]
}

// New creates an Optimizer seeded with initial. Zero Config fields take
// defaults; bus and locks may be nil.
func New(cfg Config, initial domain.ParamSnapshot, ledger SummarySource, store domain.ParamSnapshotStore, bus Publisher, locks Locker, logger *slog.Logger) *Optimizer {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	o := &Optimizer{
		cfg:    cfg,
		ledger: ledger,
		store:  store,
		bus:    bus,
		locks:  locks,
		logger: logger.With(slog.String("component", "optimizer")),
	}
	snap := initial.Clone()
	o.current.Store(&snap)
	return o
}

// Params returns the active parameter snapshot. The copy is the caller's.
func (o *Optimizer) Params() domain.ParamSnapshot {
	return o.current.Load().Clone()
}

// History returns the persisted snapshot history, newest first.
func (o *Optimizer) History(ctx context.Context, limit int) ([]domain.ParamSnapshot, error) {
	return o.store.ListHistory(ctx, limit)
}

// Seed adopts the latest persisted snapshot when it is newer than the
// configured baseline, so a restart resumes tuned parameters instead of
// rewinding to the config file.
func (o *Optimizer) Seed(ctx context.Context) error {
	latest, err := o.store.Latest(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if latest.Version <= o.current.Load().Version {
		return nil
	}
	snap := latest.Clone()
	o.current.Store(&snap)
	o.logger.Info("parameters restored",
		slog.Int64("version", snap.Version),
		slog.Time("generated_at", snap.GeneratedAt))
	return nil
}

// Run executes optimization cycles until ctx is cancelled.
func (o *Optimizer) Run(ctx context.Context) error {
	o.logger.Info("optimizer started",
		slog.Duration("interval", o.cfg.Interval),
		slog.Int("history_window", o.cfg.HistoryWindow))
	defer o.logger.Info("optimizer stopped")

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.cycle(ctx)
		}
	}
}

// cycle runs one optimization pass under the cross-instance lock.
func (o *Optimizer) cycle(ctx context.Context) {
	if o.locks != nil {
		unlock, err := o.locks.Acquire(ctx, cycleLockKey, o.cfg.Interval/2)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				o.logger.Debug("cycle already running elsewhere")
			} else {
				o.logger.Warn("cycle lock failed", slog.String("error", err.Error()))
			}
			return
		}
		defer unlock()
	}

	recs, err := o.ledger.Recent(ctx, o.cfg.HistoryWindow)
	if err != nil {
		o.logger.Warn("settlement window read failed", slog.String("error", err.Error()))
		return
	}
	window := buildWindow(recs)
	if window.finalized < minCycleSample {
		o.logger.Debug("not enough settled evidence",
			slog.Int64("finalized", window.finalized))
		return
	}

	next, changed := o.propose(window, o.ledger.Summary())
	if !changed {
		o.logger.Debug("parameters unchanged", slog.Int64("version", next.Version))
		return
	}

	next.Version = o.current.Load().Version + 1
	next.GeneratedAt = time.Now().UTC()

	if err := o.store.Insert(ctx, next); err != nil {
		// The swap still happens: trading runs on the new parameters even if
		// the history row is lost.
		o.logger.Warn("snapshot persist failed", slog.String("error", err.Error()))
	}
	published := next.Clone()
	o.current.Store(&published)

	o.announce(ctx, next)
	o.logger.Info("parameters rolled out",
		slog.Int64("version", next.Version),
		slog.Float64("spread_threshold_bps", next.SpreadThresholdBps),
		slog.Float64("slippage_ceiling_bps", next.SlippageCeilingBps),
		slog.Float64("max_position_size", next.MaxPositionSize))
}

// window aggregates the settlement records one cycle reasons over.
type window struct {
	finalized  int64
	profitable int64
	reverted   int64
	byStrategy map[string]*strategyWindow
}

type strategyWindow struct {
	finalized  int64
	profitable int64
}

func buildWindow(recs []domain.SettlementRecord) window {
	w := window{byStrategy: make(map[string]*strategyWindow)}
	for _, rec := range recs {
		if !rec.Outcome.Final() {
			continue
		}
		sw, ok := w.byStrategy[rec.StrategyID]
		if !ok {
			sw = &strategyWindow{}
			w.byStrategy[rec.StrategyID] = sw
		}
		w.finalized++
		sw.finalized++
		switch rec.Outcome {
		case domain.OutcomeConfirmedProfit:
			w.profitable++
			sw.profitable++
		case domain.OutcomeReverted:
			w.reverted++
		}
	}
	return w
}

func (w window) successRate() float64 {
	return float64(w.profitable) / float64(w.finalized)
}

func (w window) revertRate() float64 {
	return float64(w.reverted) / float64(w.finalized)
}

// propose derives the next snapshot from the settlement window. It returns
// the candidate and whether anything moved.
func (o *Optimizer) propose(w window, summary domain.LedgerSummary) (domain.ParamSnapshot, bool) {
	next := o.current.Load().Clone()
	if next.StrategyWeights == nil {
		next.StrategyWeights = make(map[string]float64)
	}
	changed := false

	// Strategy weights: reward hot strategies, starve cold ones, then
	// renormalize so the weights stay a distribution.
	reweighted := false
	for id, sw := range w.byStrategy {
		if sw.finalized < minCycleSample {
			continue
		}
		rate := float64(sw.profitable) / float64(sw.finalized)
		weight := next.Weight(id)
		switch {
		case rate > hotSuccessRate:
			weight *= weightUp
			if weight > weightCap {
				weight = weightCap
			}
		case rate < coldSuccessRate:
			weight *= weightDown
			if weight < weightFloor {
				weight = weightFloor
			}
		default:
			continue
		}
		next.StrategyWeights[id] = weight
		reweighted = true
	}
	if reweighted {
		renormalize(next.StrategyWeights)
		changed = true
	}

	// Spread threshold: widen when reverts are eating the edge, tighten when
	// fills are clean.
	switch {
	case w.revertRate() > highRevertRate:
		next.SpreadThresholdBps = clamp(next.SpreadThresholdBps+spreadStepBps, o.cfg.MinSpreadBps, o.cfg.MaxSpreadBps)
	case w.successRate() > hotSuccessRate:
		next.SpreadThresholdBps = clamp(next.SpreadThresholdBps-spreadStepBps, o.cfg.MinSpreadBps, o.cfg.MaxSpreadBps)
	}

	// Slippage ceiling moves with the same evidence: reverts mean the bounds
	// are too tight for current depth, clean confirms earn tighter bounds.
	switch {
	case w.revertRate() > highRevertRate:
		next.SlippageCeilingBps = clamp(next.SlippageCeilingBps+slippageStepBps, o.cfg.MinSlippageBps, o.cfg.MaxSlippageBps)
	case w.successRate() > hotSuccessRate:
		next.SlippageCeilingBps = clamp(next.SlippageCeilingBps-slippageStepBps, o.cfg.MinSlippageBps, o.cfg.MaxSlippageBps)
	}

	// Position size proposal: grow on sustained success, shrink the moment
	// the day is underwater. Never above the risk gate's hard cap.
	switch {
	case summary.DailyLoss > 0 && summary.DailyNetProfit < 0:
		next.MaxPositionSize *= positionShrink
	case w.successRate() > hotSuccessRate:
		next.MaxPositionSize *= positionGrow
	}
	if o.cfg.MaxPositionCap > 0 && next.MaxPositionSize > o.cfg.MaxPositionCap {
		next.MaxPositionSize = o.cfg.MaxPositionCap
	}

	prev := o.current.Load()
	if next.SpreadThresholdBps != prev.SpreadThresholdBps ||
		next.SlippageCeilingBps != prev.SlippageCeilingBps ||
		next.MaxPositionSize != prev.MaxPositionSize {
		changed = true
	}
	return next, changed
}

// renormalize scales weights so they sum to one.
func renormalize(weights map[string]float64) {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return
	}
	for id, w := range weights {
		weights[id] = w / sum
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

// paramsEvent is the bus payload for a parameter rollout.
type paramsEvent struct {
	Version            int64              `json:"version"`
	SpreadThresholdBps float64            `json:"spread_threshold_bps"`
	SlippageCeilingBps float64            `json:"slippage_ceiling_bps"`
	MaxPositionSize    float64            `json:"max_position_size"`
	MinNetProfit       float64            `json:"min_net_profit"`
	StrategyWeights    map[string]float64 `json:"strategy_weights"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

func (o *Optimizer) announce(ctx context.Context, snap domain.ParamSnapshot) {
	if o.bus == nil {
		return
	}
	payload, err := json.Marshal(paramsEvent{
		Version:            snap.Version,
		SpreadThresholdBps: snap.SpreadThresholdBps,
		SlippageCeilingBps: snap.SlippageCeilingBps,
		MaxPositionSize:    snap.MaxPositionSize,
		MinNetProfit:       snap.MinNetProfit,
		StrategyWeights:    snap.StrategyWeights,
		GeneratedAt:        snap.GeneratedAt,
	})
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, channelParams, payload); err != nil {
		o.logger.Warn("params publish failed", slog.String("error", err.Error()))
	}
}
