package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// Reconciler defaults, used when the corresponding Config field is zero.
const (
	defaultReconcileTick  = 30 * time.Second
	defaultReconcileAge   = 2 * time.Minute
	defaultGiveUpAfter    = 30 * time.Minute
	defaultReconcileBatch = 50
)

// ReconcilerConfig holds reconciliation tunables.
type ReconcilerConfig struct {
	Tick        time.Duration // pass interval
	Age         time.Duration // unknown records younger than this are left alone
	GiveUpAfter time.Duration // NotFound past this age finalizes as reverted
	BatchSize   int
}

// Reconciler resolves unknown settlement outcomes against a secondary
// confirmation source. A transaction the chain eventually mined becomes a
// final profit or revert; one the network never saw becomes a gas-only
// revert after the give-up deadline.
type Reconciler struct {
	cfg      ReconcilerConfig
	ledger   *Ledger
	store    domain.SettlementStore
	verifier domain.ExternalVerifier
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler. Zero Config fields take defaults.
func NewReconciler(cfg ReconcilerConfig, ledger *Ledger, store domain.SettlementStore, verifier domain.ExternalVerifier, logger *slog.Logger) *Reconciler {
	if cfg.Tick <= 0 {
		cfg.Tick = defaultReconcileTick
	}
	if cfg.Age <= 0 {
		cfg.Age = defaultReconcileAge
	}
	if cfg.GiveUpAfter <= 0 {
		cfg.GiveUpAfter = defaultGiveUpAfter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultReconcileBatch
	}
	return &Reconciler{
		cfg:      cfg,
		ledger:   ledger,
		store:    store,
		verifier: verifier,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// Run executes reconciliation passes until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler started",
		slog.Duration("tick", r.cfg.Tick),
		slog.Duration("age", r.cfg.Age))
	defer r.logger.Info("reconciler stopped")

	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

// pass examines one batch of aged unknown records.
func (r *Reconciler) pass(ctx context.Context) {
	now := time.Now().UTC()
	recs, err := r.store.ListUnknown(ctx, now.Add(-r.cfg.Age), r.cfg.BatchSize)
	if err != nil {
		r.logger.Warn("unknown scan failed", slog.String("error", err.Error()))
		return
	}
	for _, rec := range recs {
		if ctx.Err() != nil {
			return
		}
		r.reconcile(ctx, rec, now)
	}
}

// reconcile resolves a single unknown record when the verifier permits.
func (r *Reconciler) reconcile(ctx context.Context, rec domain.SettlementRecord, now time.Time) {
	log := r.logger.With(
		slog.String("plan_id", rec.ExecutionPlanID),
		slog.String("tx_hash", rec.TxReference))

	if rec.TxReference == "" {
		// No hash to look up; only the give-up deadline can resolve it.
		if now.Sub(rec.ConfirmedAt) > r.cfg.GiveUpAfter {
			r.resolve(ctx, rec, domain.OutcomeReverted, -rec.GasCost, log)
		}
		return
	}

	result, err := r.verifier.Confirm(ctx, rec.TxReference)
	if err != nil {
		log.Warn("verifier lookup failed", slog.String("error", err.Error()))
		return
	}

	switch result.Status {
	case domain.VerifyConfirmed:
		if result.Succeeded {
			// The verifier sees only the receipt status, not the proceeds.
			// Finalize the mined success at zero rather than invent a profit.
			r.resolve(ctx, rec, domain.OutcomeConfirmedProfit, 0, log)
		} else {
			r.resolve(ctx, rec, domain.OutcomeReverted, -rec.GasCost, log)
		}
	case domain.VerifyNotFound:
		if now.Sub(rec.ConfirmedAt) > r.cfg.GiveUpAfter {
			log.Warn("transaction never surfaced, writing off gas")
			r.resolve(ctx, rec, domain.OutcomeReverted, -rec.GasCost, log)
		}
	case domain.VerifyPending:
		// Still in flight; next pass.
	}
}

func (r *Reconciler) resolve(ctx context.Context, rec domain.SettlementRecord, outcome domain.Outcome, realized float64, log *slog.Logger) {
	err := r.ledger.Resolve(ctx, rec.ExecutionPlanID, outcome, realized)
	switch {
	case err == nil:
		log.Info("unknown outcome resolved",
			slog.String("outcome", string(outcome)),
			slog.Float64("realized_profit", realized))
	case errors.Is(err, domain.ErrAlreadyExists):
		log.Debug("record already final")
	case errors.Is(err, domain.ErrNotFound):
		log.Warn("record vanished before finalize")
	default:
		log.Warn("finalize failed", slog.String("error", err.Error()))
	}
}
