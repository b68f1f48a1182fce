package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/TemamAb/ainex-sub000/internal/chain"
	"github.com/TemamAb/ainex-sub000/internal/domain"
	"github.com/TemamAb/ainex-sub000/internal/strategy"
)

// Default tunables, used when the corresponding Config field is zero.
const (
	defaultMaxInflight    = 6
	defaultQueueSize      = 64
	defaultSubmitRetries  = 3
	defaultRetryBackoff   = 200 * time.Millisecond
	defaultMaxRetryDelay  = 5 * time.Second
	defaultDedupTTL       = 10 * time.Minute
	defaultConfirmTimeout = 90 * time.Second
	defaultConfirmPoll    = 2 * time.Second

	cleanupInterval    = 30 * time.Second
	drainRecordTimeout = 5 * time.Second
)

// TxSubmitter builds, broadcasts, and confirms aggregator transactions. It is
// implemented by chain.Submitter.
type TxSubmitter interface {
	From() common.Address
	BuildTx(plan *domain.ExecutionPlan, nonce uint64, quote chain.GasQuote) (*types.Transaction, error)
	Submit(ctx context.Context, tx *types.Transaction) error
	WaitMined(ctx context.Context, txHash common.Hash, timeout, poll time.Duration) (*types.Receipt, error)
}

// NonceSource serializes nonce assignment for a signing identity. It is
// implemented by NonceManager.
type NonceSource interface {
	WithNonce(ctx context.Context, addr common.Address, fn func(nonce uint64) error) error
}

// Recorder accepts settlement outcomes. The ledger implements it. Abort
// releases a plan's risk reservation when it never reached the chain.
type Recorder interface {
	Record(ctx context.Context, rec domain.SettlementRecord) error
	Abort(ctx context.Context, plan *domain.ExecutionPlan, reason string)
}

// FundingSource re-quotes a plan's loan provider immediately before
// submission when the bound quote went stale.
type FundingSource interface {
	Refresh(ctx context.Context, providerID, asset string, amount float64) (strategy.Funding, error)
}

// GasSource supplies the gas quote a submission is priced with.
type GasSource interface {
	Quote(ctx context.Context) (chain.GasQuote, error)
}

// GasObserver receives each pre-submission gas read. The risk gate implements
// it to keep its breaker's gas view current.
type GasObserver interface {
	ObserveGasPrice(ctx context.Context, priceGwei float64)
}

// Config holds executor tunables.
type Config struct {
	MaxInflight    int
	QueueSize      int
	SubmitRetries  int
	RetryBackoff   time.Duration
	MaxRetryDelay  time.Duration
	DedupTTL       time.Duration
	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration
}

// Stats is a snapshot of executor counters.
type Stats struct {
	Enqueued  int64
	Submitted int64
	Confirmed int64
	Reverted  int64
	Unknown   int64
	Aborted   int64
}

// Executor drains admitted plans in arrival order and drives each through
// pre-submission validation, atomic broadcast, and confirmation. Plans from
// one signing identity are nonce-serialized; across identities up to
// MaxInflight submissions run concurrently.
type Executor struct {
	cfg       Config
	queue     chan *domain.ExecutionPlan
	submitter TxSubmitter
	nonces    NonceSource
	gas       GasSource
	observer  GasObserver // optional
	funding   FundingSource
	ledger    Recorder
	dedup     *Dedup
	logger    *slog.Logger

	wg sync.WaitGroup

	enqueued  atomic.Int64
	submitted atomic.Int64
	confirmed atomic.Int64
	reverted  atomic.Int64
	unknown   atomic.Int64
	aborted   atomic.Int64
}

// Deps are the executor's collaborators. Observer may be nil.
type Deps struct {
	Submitter TxSubmitter
	Nonces    NonceSource
	Gas       GasSource
	Observer  GasObserver
	Funding   FundingSource
	Ledger    Recorder
}

// NewExecutor creates an Executor. Zero Config fields take defaults.
func NewExecutor(cfg Config, deps Deps, logger *slog.Logger) *Executor {
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = defaultMaxInflight
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.SubmitRetries <= 0 {
		cfg.SubmitRetries = defaultSubmitRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = defaultMaxRetryDelay
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = defaultDedupTTL
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if cfg.ConfirmPoll <= 0 {
		cfg.ConfirmPoll = defaultConfirmPoll
	}
	return &Executor{
		cfg:       cfg,
		queue:     make(chan *domain.ExecutionPlan, cfg.QueueSize),
		submitter: deps.Submitter,
		nonces:    deps.Nonces,
		gas:       deps.Gas,
		observer:  deps.Observer,
		funding:   deps.Funding,
		ledger:    deps.Ledger,
		dedup:     NewDedup(cfg.DedupTTL),
		logger:    logger.With(slog.String("component", "executor")),
	}
}

var _ strategy.Dispatcher = (*Executor)(nil)

// Enqueue hands a risk-admitted plan to the executor. It blocks when the
// queue is full and fails only when ctx is done.
func (e *Executor) Enqueue(ctx context.Context, plan *domain.ExecutionPlan) error {
	select {
	case e.queue <- plan:
		e.enqueued.Add(1)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor: enqueue %s: %w", plan.ID, ctx.Err())
	}
}

// Run starts the executor's main loop. Plans execute in arrival order, with
// at most MaxInflight in flight at once. On cancellation it aborts queued
// plans so their risk reservations come back, then waits for in-flight
// submissions to record their outcomes.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started",
		slog.Int("max_inflight", e.cfg.MaxInflight),
		slog.Int("queue_size", e.cfg.QueueSize),
	)
	defer e.logger.Info("executor stopped")

	sem := make(chan struct{}, e.cfg.MaxInflight)
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			e.wg.Wait()
			return ctx.Err()

		case plan := <-e.queue:
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				e.abort(plan, "shutdown")
				e.drain()
				e.wg.Wait()
				return ctx.Err()
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				defer func() { <-sem }()
				e.execute(ctx, plan)
			}()

		case <-cleanupTicker.C:
			e.dedup.Cleanup()
		}
	}
}

// execute drives one plan end to end.
func (e *Executor) execute(ctx context.Context, plan *domain.ExecutionPlan) {
	log := e.logger.With(
		slog.String("plan_id", plan.ID),
		slog.String("strategy", plan.StrategyID),
		slog.String("provider", plan.Loan.ProviderID),
	)

	// Check 1: a plan is broadcast at most once, ever.
	if e.dedup.IsDuplicate(plan.ID) {
		log.Warn("plan already executed, dropping")
		return
	}

	// Check 2: pre-submission validation with a fresh gas read.
	quote, err := e.prepare(ctx, plan, log)
	if err != nil {
		log.Warn("plan discarded before submission", slog.String("reason", err.Error()))
		e.abort(plan, err.Error())
		return
	}

	// Check 3: build and broadcast under the identity's nonce lock.
	var tx *types.Transaction
	err = e.nonces.WithNonce(ctx, e.submitter.From(), func(nonce uint64) error {
		built, buildErr := e.submitter.BuildTx(plan, nonce, quote)
		if buildErr != nil {
			return buildErr
		}
		tx = built
		return e.submitter.Submit(ctx, tx)
	})
	if err != nil {
		if tx == nil {
			// Never signed, never broadcast. The reservation comes straight
			// back without touching the breaker.
			log.Error("transaction build failed", slog.String("error", err.Error()))
			e.abort(plan, "build: "+err.Error())
			return
		}
		// The broadcast result is ambiguous: the node may have accepted the
		// transaction before the error surfaced. Reconciliation decides.
		log.Warn("broadcast outcome ambiguous",
			slog.String("tx_hash", tx.Hash().Hex()),
			slog.String("error", err.Error()),
		)
		e.record(ctx, plan, tx.Hash().Hex(), domain.OutcomeUnknown, 0, plan.EstimatedGasCost, 0)
		return
	}
	e.submitted.Add(1)
	log.Info("transaction submitted",
		slog.String("tx_hash", tx.Hash().Hex()),
		slog.Float64("gas_price_gwei", quote.GasPriceGwei()),
	)

	// Check 4: wait for the receipt and classify the outcome.
	receipt, err := e.submitter.WaitMined(ctx, tx.Hash(), e.cfg.ConfirmTimeout, e.cfg.ConfirmPoll)
	switch {
	case err == nil:
		e.settle(ctx, plan, tx, receipt, log)
	case errors.Is(err, chain.ErrConfirmTimeout):
		log.Warn("confirmation timed out", slog.String("tx_hash", tx.Hash().Hex()))
		e.record(ctx, plan, tx.Hash().Hex(), domain.OutcomeUnknown, 0, plan.EstimatedGasCost, 0)
	default:
		// Cancelled or RPC failure mid-wait. The transaction is on the wire;
		// the record still has to land so reconciliation can resolve it.
		log.Warn("confirmation interrupted",
			slog.String("tx_hash", tx.Hash().Hex()),
			slog.String("error", err.Error()),
		)
		e.record(ctx, plan, tx.Hash().Hex(), domain.OutcomeUnknown, 0, plan.EstimatedGasCost, 0)
	}
}

// prepare re-validates the plan immediately before submission: expiry, loan
// quote freshness, and a current gas read. Transient gas failures retry with
// exponential backoff; validation failures discard the plan. Expiry and
// staleness are re-checked on every attempt.
func (e *Executor) prepare(ctx context.Context, plan *domain.ExecutionPlan, log *slog.Logger) (chain.GasQuote, error) {
	var lastErr error
	delay := e.cfg.RetryBackoff
	for attempt := 0; attempt <= e.cfg.SubmitRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return chain.GasQuote{}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > e.cfg.MaxRetryDelay {
				delay = e.cfg.MaxRetryDelay
			}
		}

		now := time.Now().UTC()
		if plan.Expired(now) {
			return chain.GasQuote{}, domain.ErrPlanExpired
		}
		if plan.Loan.Stale(now) {
			// One refresh attempt; a provider that cannot re-quote now is a
			// provider that cannot fund the borrow either.
			if err := e.refreshFunding(ctx, plan); err != nil {
				return chain.GasQuote{}, fmt.Errorf("loan requote: %w", err)
			}
			log.Debug("loan quote refreshed", slog.String("provider", plan.Loan.ProviderID))
		}

		quote, err := e.gas.Quote(ctx)
		if err != nil {
			lastErr = err
			log.Warn("gas quote failed",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			continue
		}
		if e.observer != nil {
			e.observer.ObserveGasPrice(ctx, quote.GasPriceGwei())
		}
		return quote, nil
	}
	return chain.GasQuote{}, fmt.Errorf("gas quote after %d attempts: %w", e.cfg.SubmitRetries+1, lastErr)
}

// refreshFunding re-quotes the plan's provider and swaps the borrow and
// repay steps in place. The plan is owned by this goroutine here, so the
// mutation is unobserved.
func (e *Executor) refreshFunding(ctx context.Context, plan *domain.ExecutionPlan) error {
	f, err := e.funding.Refresh(ctx, plan.Loan.ProviderID, plan.Loan.Asset, plan.BorrowAmount)
	if err != nil {
		return err
	}
	plan.Loan = f.Quote
	replaced := 0
	for i := range plan.Steps {
		switch plan.Steps[i].Kind {
		case domain.StepBorrow:
			plan.Steps[i] = f.Borrow
			replaced++
		case domain.StepRepay:
			plan.Steps[i] = f.Repay
			replaced++
		}
	}
	if replaced != 2 {
		return fmt.Errorf("executor: plan %s has %d funding steps, want 2", plan.ID, replaced)
	}
	return nil
}

// settle classifies a mined receipt. The swap legs' minimum-output bounds
// lock the trade surplus on chain, so the realized figure moves off the
// estimate only by the difference between estimated and actual gas.
func (e *Executor) settle(ctx context.Context, plan *domain.ExecutionPlan, tx *types.Transaction, receipt *types.Receipt, log *slog.Logger) {
	gasCost := receiptGasETH(receipt)
	if gasCost == 0 {
		gasCost = plan.EstimatedGasCost
	}
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		e.reverted.Add(1)
		log.Warn("transaction reverted",
			slog.String("tx_hash", tx.Hash().Hex()),
			slog.Uint64("block", block),
			slog.Float64("gas_cost", gasCost),
		)
		e.record(ctx, plan, tx.Hash().Hex(), domain.OutcomeReverted, -gasCost, gasCost, block)
		return
	}

	realized := plan.EstimatedNetProfit + plan.EstimatedGasCost - gasCost
	outcome := domain.OutcomeConfirmedProfit
	if realized < 0 {
		outcome = domain.OutcomeConfirmedLoss
	}
	e.confirmed.Add(1)
	log.Info("transaction confirmed",
		slog.String("tx_hash", tx.Hash().Hex()),
		slog.Uint64("block", block),
		slog.String("outcome", string(outcome)),
		slog.Float64("realized_profit", realized),
		slog.Float64("gas_cost", gasCost),
	)
	e.record(ctx, plan, tx.Hash().Hex(), outcome, realized, gasCost, block)
}

// record writes the settlement exactly once. A plan that reached the chain
// must never miss its ledger row, so a dead context is swapped for a
// short-lived background one during shutdown.
func (e *Executor) record(ctx context.Context, plan *domain.ExecutionPlan, txRef string, outcome domain.Outcome, realized, gasCost float64, block uint64) {
	if outcome == domain.OutcomeUnknown {
		e.unknown.Add(1)
	}
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), drainRecordTimeout)
		defer cancel()
	}

	rec := domain.SettlementRecord{
		ID:              uuid.New().String(),
		ExecutionPlanID: plan.ID,
		OpportunityID:   plan.OpportunityID,
		StrategyID:      plan.StrategyID,
		TxReference:     txRef,
		Outcome:         outcome,
		RealizedProfit:  realized,
		GasCost:         gasCost,
		BlockNumber:     block,
		ConfirmedAt:     time.Now().UTC(),
	}
	if err := e.ledger.Record(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrDuplicateSettlement) {
			e.logger.Warn("settlement already recorded", slog.String("plan_id", plan.ID))
			return
		}
		e.logger.Error("settlement record failed",
			slog.String("plan_id", plan.ID),
			slog.String("tx_hash", txRef),
			slog.String("error", err.Error()),
		)
	}
}

// abort releases a never-submitted plan's risk reservation.
func (e *Executor) abort(plan *domain.ExecutionPlan, reason string) {
	e.aborted.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), drainRecordTimeout)
	defer cancel()
	e.ledger.Abort(ctx, plan, reason)
}

// drain aborts plans still buffered in the queue after cancellation so no
// reservation outlives the process.
func (e *Executor) drain() {
	for {
		select {
		case plan := <-e.queue:
			e.logger.Warn("aborting queued plan on shutdown", slog.String("plan_id", plan.ID))
			e.abort(plan, "shutdown")
		default:
			return
		}
	}
}

// Stats returns a snapshot of the executor's counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Enqueued:  e.enqueued.Load(),
		Submitted: e.submitted.Load(),
		Confirmed: e.confirmed.Load(),
		Reverted:  e.reverted.Load(),
		Unknown:   e.unknown.Load(),
		Aborted:   e.aborted.Load(),
	}
}

// receiptGasETH computes the actual gas spend from a receipt, zero when the
// node omitted the effective price.
func receiptGasETH(receipt *types.Receipt) float64 {
	if receipt.EffectiveGasPrice == nil || receipt.EffectiveGasPrice.Sign() <= 0 {
		return 0
	}
	spent := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(spent), big.NewFloat(1e18)).Float64()
	return eth
}
