package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TemamAb/ainex-sub000/internal/chain"
	"github.com/TemamAb/ainex-sub000/internal/domain"
)

const (
	defaultWorkers   = 4
	defaultPlanTTL   = 20 * time.Second
	defaultSettleGas = 45_000

	consumedPruneInterval = time.Minute
)

// OpportunitySource yields admitted opportunities, blocking until one is
// available. The scanner queue satisfies it.
type OpportunitySource interface {
	Pop(ctx context.Context) (domain.Opportunity, error)
}

// SnapshotSource supplies the scanner's price table view.
type SnapshotSource interface {
	Snapshots() map[string]domain.PriceUpdate
}

// ParamSource supplies the live parameter snapshot.
type ParamSource interface {
	Params() domain.ParamSnapshot
}

// AdmissionGate is the risk surface the orchestrator consults.
type AdmissionGate interface {
	AdmitOpportunity(o domain.Opportunity) bool
	AdmitPlan(ctx context.Context, p *domain.ExecutionPlan) error
}

// GasSource quotes the current gas market.
type GasSource interface {
	Quote(ctx context.Context) (chain.GasQuote, error)
}

// Dispatcher accepts completed plans for execution. Enqueue blocks until the
// plan is accepted or ctx is done; it only fails on shutdown.
type Dispatcher interface {
	Enqueue(ctx context.Context, plan *domain.ExecutionPlan) error
}

// Config holds the orchestrator tunables.
type Config struct {
	Workers    int
	PlanTTL    time.Duration
	SettleGas  uint64
	Aggregator string // aggregator contract, target of the settle step
}

// Stats are the orchestrator's cumulative counters.
type Stats struct {
	Consumed    int64
	Expired     int64
	Deduped     int64
	NotAdmitted int64
	NoPlan      int64
	Rejected    int64
	Dispatched  int64
}

// Orchestrator drains the opportunity queue through a fixed worker pool,
// evaluates each opportunity against every registered strategy, funds the
// best draft, and hands admitted plans to the executor. At most one plan is
// produced per opportunity.
type Orchestrator struct {
	cfg      Config
	registry *Registry
	source   OpportunitySource
	snaps    SnapshotSource
	params   ParamSource
	gate     AdmissionGate
	funding  *ProviderSet
	venues   map[domain.Venue]domain.SwapVenue
	pools    map[string]domain.Pool
	gas      GasSource
	dispatch Dispatcher
	logger   *slog.Logger

	mu       sync.Mutex
	consumed map[string]time.Time // opportunity ID -> prune deadline

	consumedN   atomic.Int64
	expired     atomic.Int64
	deduped     atomic.Int64
	notAdmitted atomic.Int64
	noPlan      atomic.Int64
	rejected    atomic.Int64
	dispatched  atomic.Int64
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Source     OpportunitySource
	Snapshots  SnapshotSource
	Params     ParamSource
	Gate       AdmissionGate
	Funding    *ProviderSet
	Venues     []domain.SwapVenue
	Pools      []domain.Pool
	Gas        GasSource
	Dispatcher Dispatcher
}

// NewOrchestrator creates an Orchestrator over the given registry and
// collaborators.
func NewOrchestrator(cfg Config, registry *Registry, deps Deps, logger *slog.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.PlanTTL <= 0 {
		cfg.PlanTTL = defaultPlanTTL
	}
	if cfg.SettleGas == 0 {
		cfg.SettleGas = defaultSettleGas
	}

	venues := make(map[domain.Venue]domain.SwapVenue, len(deps.Venues))
	for _, v := range deps.Venues {
		venues[v.Venue()] = v
	}
	pools := make(map[string]domain.Pool, len(deps.Pools))
	for _, p := range deps.Pools {
		pools[p.ID] = p
	}

	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		source:   deps.Source,
		snaps:    deps.Snapshots,
		params:   deps.Params,
		gate:     deps.Gate,
		funding:  deps.Funding,
		venues:   venues,
		pools:    pools,
		gas:      deps.Gas,
		dispatch: deps.Dispatcher,
		logger:   logger.With(slog.String("component", "orchestrator")),
		consumed: make(map[string]time.Time),
	}
}

// Stats returns cumulative orchestrator counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Consumed:    o.consumedN.Load(),
		Expired:     o.expired.Load(),
		Deduped:     o.deduped.Load(),
		NotAdmitted: o.notAdmitted.Load(),
		NoPlan:      o.noPlan.Load(),
		Rejected:    o.rejected.Load(),
		Dispatched:  o.dispatched.Load(),
	}
}

// Run starts the worker pool and blocks until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started",
		slog.Int("workers", o.cfg.Workers),
		slog.Any("strategies", o.registry.List()),
	)
	defer o.logger.Info("orchestrator stopped")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < o.cfg.Workers; i++ {
		g.Go(func() error { return o.worker(gctx) })
	}
	g.Go(func() error { return o.pruneLoop(gctx) })
	return g.Wait()
}

func (o *Orchestrator) worker(ctx context.Context) error {
	for {
		opp, err := o.source.Pop(ctx)
		if err != nil {
			return err
		}
		o.handle(ctx, opp)
	}
}

func (o *Orchestrator) handle(ctx context.Context, opp domain.Opportunity) {
	o.consumedN.Add(1)
	now := time.Now().UTC()

	// Check 1: freshness at the hand-off boundary.
	if opp.Expired(now) {
		o.expired.Add(1)
		return
	}

	// Check 2: one plan per opportunity.
	if !o.markConsumed(opp.ID, opp.ExpiresAt) {
		o.deduped.Add(1)
		return
	}

	// Check 3: cheap risk pre-filter before any evaluation work.
	if !o.gate.AdmitOpportunity(opp) {
		o.notAdmitted.Add(1)
		return
	}

	market, err := o.marketState(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "market state unavailable", slog.String("error", err.Error()))
		return
	}

	plan := o.evaluateAll(ctx, opp, market)
	if plan == nil {
		o.noPlan.Add(1)
		return
	}

	if err := o.gate.AdmitPlan(ctx, plan); err != nil {
		o.rejected.Add(1)
		var rej domain.RiskRejection
		if errors.As(err, &rej) {
			o.logger.DebugContext(ctx, "plan rejected",
				slog.String("plan_id", plan.ID),
				slog.String("reason", string(rej.Reason)),
			)
		} else {
			o.logger.WarnContext(ctx, "plan admission failed",
				slog.String("plan_id", plan.ID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if err := o.dispatch.Enqueue(ctx, plan); err != nil {
		o.logger.WarnContext(ctx, "dispatch failed",
			slog.String("plan_id", plan.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	o.dispatched.Add(1)
	o.registry.RecordPlan(plan.StrategyID, now)
	o.logger.InfoContext(ctx, "plan dispatched",
		slog.String("plan_id", plan.ID),
		slog.String("strategy", plan.StrategyID),
		slog.String("opportunity_id", opp.ID),
		slog.Float64("net_profit", plan.EstimatedNetProfit),
		slog.Float64("gas_cost", plan.EstimatedGasCost),
		slog.String("provider", plan.Loan.ProviderID),
	)
}

// evaluateAll runs every registered strategy against the opportunity, funds
// each draft, and returns the best completed plan, or nil when no strategy
// produced a satisfactory one.
func (o *Orchestrator) evaluateAll(ctx context.Context, opp domain.Opportunity, market domain.MarketState) *domain.ExecutionPlan {
	var best *domain.ExecutionPlan
	for _, name := range o.registry.List() {
		strat, err := o.registry.Get(name)
		if err != nil {
			continue
		}
		draft, err := strat.Evaluate(ctx, opp, market)
		if err != nil {
			o.registry.RecordError(name)
			o.logger.WarnContext(ctx, "strategy evaluation failed",
				slog.String("strategy", name),
				slog.String("opportunity_id", opp.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if draft == nil {
			continue
		}
		plan, err := o.completePlan(ctx, draft, market)
		if err != nil {
			o.logger.DebugContext(ctx, "draft not fundable",
				slog.String("strategy", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if plan == nil {
			continue
		}
		if best == nil || better(plan, best, market.Params) {
			best = plan
		}
	}
	return best
}

// better ranks completed plans: weight-adjusted net profit first, gas cost as
// the tie-break.
func better(a, b *domain.ExecutionPlan, params domain.ParamSnapshot) bool {
	wa := a.EstimatedNetProfit * params.Weight(a.StrategyID)
	wb := b.EstimatedNetProfit * params.Weight(b.StrategyID)
	if wa != wb {
		return wa > wb
	}
	return a.EstimatedGasCost < b.EstimatedGasCost
}

// completePlan binds funding to a draft: selects a provider, wraps the swap
// legs with borrow, repay, and settle steps, and finalizes the economics. It
// returns (nil, nil) when the funded plan no longer clears the profit floor.
func (o *Orchestrator) completePlan(ctx context.Context, draft *domain.ExecutionPlan, market domain.MarketState) (*domain.ExecutionPlan, error) {
	if draft.BorrowAsset == "" || draft.BorrowAmount <= 0 {
		return nil, fmt.Errorf("strategy: draft %s has no funding request", draft.ID)
	}
	f, err := o.funding.Select(ctx, draft.BorrowAsset, draft.BorrowAmount)
	if err != nil {
		return nil, err
	}

	token, ok := chain.TokenAddress(draft.BorrowAsset)
	if !ok {
		return nil, fmt.Errorf("strategy: unknown borrow asset %q", draft.BorrowAsset)
	}
	sweepData, err := chain.PackSweep(token)
	if err != nil {
		return nil, err
	}
	settle := domain.Step{
		Kind:     domain.StepSettle,
		Target:   o.cfg.Aggregator,
		Asset:    draft.BorrowAsset,
		GasUnits: o.cfg.SettleGas,
		CallData: sweepData,
	}

	steps := make([]domain.Step, 0, len(draft.Steps)+3)
	steps = append(steps, f.Borrow)
	steps = append(steps, draft.Steps...)
	steps = append(steps, f.Repay, settle)

	now := time.Now().UTC()
	plan := *draft
	plan.Loan = f.Quote
	plan.Steps = steps
	plan.CreatedAt = now
	plan.ExpiresAt = now.Add(o.cfg.PlanTTL)
	plan.EstimatedGasCost = market.GasCostETH(plan.GasLimit())

	feeETH, ok := ethValue(draft.BorrowAsset, f.Fee, market)
	if !ok {
		return nil, fmt.Errorf("strategy: no ETH reference for %q", draft.BorrowAsset)
	}
	plan.EstimatedNetProfit = draft.EstimatedNetProfit - feeETH - plan.EstimatedGasCost

	if plan.EstimatedNetProfit < market.Params.MinNetProfit {
		return nil, nil
	}
	return &plan, nil
}

func (o *Orchestrator) marketState(ctx context.Context) (domain.MarketState, error) {
	quote, err := o.gas.Quote(ctx)
	if err != nil {
		return domain.MarketState{}, fmt.Errorf("strategy: gas quote: %w", err)
	}
	return domain.MarketState{
		Snapshots:    o.snaps.Snapshots(),
		Pools:        o.pools,
		Venues:       o.venues,
		GasPriceGwei: quote.GasPriceGwei(),
		Params:       o.params.Params(),
	}, nil
}

// markConsumed records the opportunity ID in the dedup set, held past the
// opportunity's own expiry so a late duplicate can never produce a second
// plan. It reports false when the ID was already consumed.
func (o *Orchestrator) markConsumed(id string, expiresAt time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, seen := o.consumed[id]; seen {
		return false
	}
	o.consumed[id] = expiresAt.Add(o.cfg.PlanTTL)
	return true
}

func (o *Orchestrator) pruneLoop(ctx context.Context) error {
	ticker := time.NewTicker(consumedPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now().UTC()
			o.mu.Lock()
			for id, deadline := range o.consumed {
				if now.After(deadline) {
					delete(o.consumed, id)
				}
			}
			o.mu.Unlock()
		}
	}
}
