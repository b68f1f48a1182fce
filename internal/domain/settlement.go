package domain

import (
	"context"
	"time"
)

// Outcome is the final classification of an executed plan.
type Outcome string

const (
	OutcomeConfirmedProfit Outcome = "confirmed_profit"
	OutcomeConfirmedLoss   Outcome = "confirmed_loss"
	OutcomeReverted        Outcome = "reverted"
	OutcomeUnknown         Outcome = "unknown"
)

// Final reports whether the outcome needs no further reconciliation.
func (o Outcome) Final() bool {
	return o != OutcomeUnknown
}

// SettlementRecord is one appended ledger row. Records are written once; the
// only sanctioned update is finalizing an unknown outcome after
// reconciliation.
type SettlementRecord struct {
	ID              string
	ExecutionPlanID string
	OpportunityID   string
	StrategyID      string
	TxReference     string
	Outcome         Outcome
	RealizedProfit  float64 // ETH, negative on loss
	GasCost         float64 // ETH
	BlockNumber     uint64
	ConfirmedAt     time.Time
	FinalizedAt     *time.Time // set when an unknown outcome is resolved
}

// StrategyPerf aggregates settled performance for one strategy.
type StrategyPerf struct {
	Executions  int64
	Confirmed   int64
	Reverted    int64
	NetProfit   float64
	SuccessRate float64
}

// LedgerSummary is the running aggregate view served to the dashboard and
// consumed by the parameter optimizer.
type LedgerSummary struct {
	TotalNetProfit float64
	DailyNetProfit float64
	DailyLoss      float64
	HourlyProfit   float64
	Settled        int64
	Confirmed      int64
	Reverted       int64
	Unknown        int64
	SuccessRate    float64
	PerStrategy    map[string]StrategyPerf
	UpdatedAt      time.Time
}

// VerifyStatus is the external verifier's view of a transaction.
type VerifyStatus string

const (
	VerifyConfirmed VerifyStatus = "confirmed"
	VerifyPending   VerifyStatus = "pending"
	VerifyNotFound  VerifyStatus = "not_found"
)

// VerifyResult carries the verifier status plus the execution result when the
// transaction is confirmed on chain.
type VerifyResult struct {
	Status    VerifyStatus
	Succeeded bool // meaningful only when Status == VerifyConfirmed
}

// ExternalVerifier is a secondary confirmation source (block explorer) used
// to reconcile unknown settlement outcomes.
type ExternalVerifier interface {
	Confirm(ctx context.Context, txRef string) (VerifyResult, error)
}
