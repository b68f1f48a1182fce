package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SettlementStore persists the append-only settlement ledger.
type SettlementStore interface {
	// Insert appends a new record. It returns ErrDuplicateSettlement when a
	// record for the same execution plan already exists.
	Insert(ctx context.Context, rec SettlementRecord) error
	// Finalize resolves a previously-unknown outcome after reconciliation.
	// It is a no-op returning ErrNotFound for plans never recorded, and
	// ErrAlreadyExists when the record is already final.
	Finalize(ctx context.Context, planID string, outcome Outcome, realizedProfit float64) error
	GetByPlanID(ctx context.Context, planID string) (SettlementRecord, error)
	ListRecent(ctx context.Context, limit int) ([]SettlementRecord, error)
	// ListUnknown returns unresolved records older than the given age, for
	// the reconciliation pass.
	ListUnknown(ctx context.Context, olderThan time.Time, limit int) ([]SettlementRecord, error)
	SumRealized(ctx context.Context, since time.Time) (float64, error)
	SumRealizedByStrategy(ctx context.Context, since time.Time) (map[string]float64, error)
	CountByOutcome(ctx context.Context, since time.Time) (map[Outcome]int64, error)
}

// ParamSnapshotStore persists the optimizer's versioned parameter history.
type ParamSnapshotStore interface {
	Insert(ctx context.Context, snap ParamSnapshot) error
	Latest(ctx context.Context) (ParamSnapshot, error)
	ListHistory(ctx context.Context, limit int) ([]ParamSnapshot, error)
}

// RiskEventStore persists the audited circuit-breaker transitions.
type RiskEventStore interface {
	Log(ctx context.Context, ev RiskEvent) error
	List(ctx context.Context, opts ListOpts) ([]RiskEvent, error)
}
