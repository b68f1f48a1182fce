package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// pgErrUniqueViolation is the PostgreSQL error code for unique_violation.
const pgErrUniqueViolation = "23505"

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

const settlementCols = `id, execution_plan_id, opportunity_id, strategy_id, tx_reference, outcome, realized_profit, gas_cost, block_number, confirmed_at, finalized_at`

// Insert appends a new settlement record. The unique index on
// execution_plan_id makes retried inserts idempotent: a second insert for the
// same plan returns domain.ErrDuplicateSettlement.
func (s *SettlementStore) Insert(ctx context.Context, rec domain.SettlementRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settlements (`+settlementCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.ExecutionPlanID, rec.OpportunityID, rec.StrategyID,
		rec.TxReference, string(rec.Outcome), rec.RealizedProfit, rec.GasCost,
		rec.BlockNumber, rec.ConfirmedAt, rec.FinalizedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return domain.ErrDuplicateSettlement
		}
		return fmt.Errorf("postgres: insert settlement %s: %w", rec.ExecutionPlanID, err)
	}
	return nil
}

// Finalize resolves a previously-unknown outcome after reconciliation. It
// returns domain.ErrNotFound when no record exists for the plan and
// domain.ErrAlreadyExists when the record is already final.
func (s *SettlementStore) Finalize(ctx context.Context, planID string, outcome domain.Outcome, realizedProfit float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE settlements
		SET outcome = $2, realized_profit = $3, finalized_at = NOW()
		WHERE execution_plan_id = $1 AND outcome = $4`,
		planID, string(outcome), realizedProfit, string(domain.OutcomeUnknown),
	)
	if err != nil {
		return fmt.Errorf("postgres: finalize settlement %s: %w", planID, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "never recorded" from "already final".
		var exists bool
		err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM settlements WHERE execution_plan_id = $1)",
			planID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("postgres: finalize settlement %s: %w", planID, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyExists
	}
	return nil
}

// GetByPlanID returns the settlement recorded for an execution plan.
func (s *SettlementStore) GetByPlanID(ctx context.Context, planID string) (domain.SettlementRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+settlementCols+`
		FROM settlements WHERE execution_plan_id = $1`,
		planID,
	)
	rec, err := scanSettlement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SettlementRecord{}, domain.ErrNotFound
		}
		return domain.SettlementRecord{}, fmt.Errorf("postgres: get settlement %s: %w", planID, err)
	}
	return rec, nil
}

// ListRecent returns the most recently confirmed settlements.
func (s *SettlementStore) ListRecent(ctx context.Context, limit int) ([]domain.SettlementRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+settlementCols+`
		FROM settlements ORDER BY confirmed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()

	var list []domain.SettlementRecord
	for rows.Next() {
		rec, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// ListUnknown returns unresolved settlements confirmed before olderThan, for
// the reconciliation pass. Oldest first so long-stuck records drain first.
func (s *SettlementStore) ListUnknown(ctx context.Context, olderThan time.Time, limit int) ([]domain.SettlementRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+settlementCols+`
		FROM settlements
		WHERE outcome = $1 AND confirmed_at < $2
		ORDER BY confirmed_at ASC LIMIT $3`,
		string(domain.OutcomeUnknown), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unknown settlements: %w", err)
	}
	defer rows.Close()

	var list []domain.SettlementRecord
	for rows.Next() {
		rec, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// ListBefore returns finalized settlements confirmed before the cutoff, for
// cold-storage export. Unknown records stay behind until reconciliation
// resolves them.
func (s *SettlementStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SettlementRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+settlementCols+`
		FROM settlements
		WHERE confirmed_at < $1 AND outcome <> $2
		ORDER BY confirmed_at ASC`,
		before, string(domain.OutcomeUnknown))
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements before: %w", err)
	}
	defer rows.Close()

	var list []domain.SettlementRecord
	for rows.Next() {
		rec, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// SumRealized returns total realized profit (net of losses) since the given time.
func (s *SettlementStore) SumRealized(ctx context.Context, since time.Time) (float64, error) {
	var sum float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(realized_profit), 0) FROM settlements WHERE confirmed_at >= $1`,
		since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum realized: %w", err)
	}
	return sum, nil
}

// SumRealizedByStrategy returns realized profit per strategy since the given time.
func (s *SettlementStore) SumRealizedByStrategy(ctx context.Context, since time.Time) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT strategy_id, COALESCE(SUM(realized_profit), 0)
		FROM settlements WHERE confirmed_at >= $1
		GROUP BY strategy_id`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: sum realized by strategy: %w", err)
	}
	defer rows.Close()

	result := make(map[string]float64)
	for rows.Next() {
		var strategyID string
		var sum float64
		if err := rows.Scan(&strategyID, &sum); err != nil {
			return nil, fmt.Errorf("postgres: scan strategy sum: %w", err)
		}
		result[strategyID] = sum
	}
	return result, rows.Err()
}

// CountByOutcome returns settlement counts per outcome since the given time.
func (s *SettlementStore) CountByOutcome(ctx context.Context, since time.Time) (map[domain.Outcome]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT outcome, COUNT(*)
		FROM settlements WHERE confirmed_at >= $1
		GROUP BY outcome`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: count by outcome: %w", err)
	}
	defer rows.Close()

	result := make(map[domain.Outcome]int64)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("postgres: scan outcome count: %w", err)
		}
		result[domain.Outcome(outcome)] = count
	}
	return result, rows.Err()
}

// scanSettlement reads one settlement row from a pgx row scanner.
func scanSettlement(row pgx.Row) (domain.SettlementRecord, error) {
	var rec domain.SettlementRecord
	var outcome string
	var finalizedAt *time.Time
	err := row.Scan(
		&rec.ID, &rec.ExecutionPlanID, &rec.OpportunityID, &rec.StrategyID,
		&rec.TxReference, &outcome, &rec.RealizedProfit, &rec.GasCost,
		&rec.BlockNumber, &rec.ConfirmedAt, &finalizedAt,
	)
	if err != nil {
		return domain.SettlementRecord{}, err
	}
	rec.Outcome = domain.Outcome(outcome)
	rec.FinalizedAt = finalizedAt
	return rec, nil
}

// Compile-time interface check.
var _ domain.SettlementStore = (*SettlementStore)(nil)
