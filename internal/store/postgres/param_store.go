package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// ParamStore implements domain.ParamSnapshotStore using PostgreSQL. Strategy
// weights are stored as JSONB; the version column is the primary key, so
// snapshots are immutable once written.
type ParamStore struct {
	pool *pgxpool.Pool
}

// NewParamStore creates a new ParamStore backed by the given connection pool.
func NewParamStore(pool *pgxpool.Pool) *ParamStore {
	return &ParamStore{pool: pool}
}

const paramCols = `version, strategy_weights, spread_threshold_bps, slippage_ceiling_bps, max_position_size, min_net_profit, generated_at`

// Insert persists a new parameter snapshot. Versions must be unique; reusing
// one returns domain.ErrAlreadyExists.
func (s *ParamStore) Insert(ctx context.Context, snap domain.ParamSnapshot) error {
	weightsJSON, err := json.Marshal(snap.StrategyWeights)
	if err != nil {
		return fmt.Errorf("postgres: marshal strategy weights: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO param_snapshots (`+paramCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		snap.Version, weightsJSON, snap.SpreadThresholdBps, snap.SlippageCeilingBps,
		snap.MaxPositionSize, snap.MinNetProfit, snap.GeneratedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert param snapshot v%d: %w", snap.Version, err)
	}
	return nil
}

// Latest returns the highest-versioned snapshot, or domain.ErrNotFound when
// none has been persisted yet.
func (s *ParamStore) Latest(ctx context.Context) (domain.ParamSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+paramCols+`
		FROM param_snapshots ORDER BY version DESC LIMIT 1`)

	snap, err := scanParamSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ParamSnapshot{}, domain.ErrNotFound
		}
		return domain.ParamSnapshot{}, fmt.Errorf("postgres: latest param snapshot: %w", err)
	}
	return snap, nil
}

// ListHistory returns snapshots newest-first.
func (s *ParamStore) ListHistory(ctx context.Context, limit int) ([]domain.ParamSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+paramCols+`
		FROM param_snapshots ORDER BY version DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list param snapshots: %w", err)
	}
	defer rows.Close()

	var list []domain.ParamSnapshot
	for rows.Next() {
		snap, err := scanParamSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan param snapshot: %w", err)
		}
		list = append(list, snap)
	}
	return list, rows.Err()
}

// ListBefore returns snapshots generated before the cutoff, oldest first,
// for cold-storage export.
func (s *ParamStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ParamSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+paramCols+`
		FROM param_snapshots WHERE generated_at < $1
		ORDER BY version ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list param snapshots before: %w", err)
	}
	defer rows.Close()

	var list []domain.ParamSnapshot
	for rows.Next() {
		snap, err := scanParamSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan param snapshot: %w", err)
		}
		list = append(list, snap)
	}
	return list, rows.Err()
}

// scanParamSnapshot reads one snapshot row from a pgx row scanner.
func scanParamSnapshot(row pgx.Row) (domain.ParamSnapshot, error) {
	var snap domain.ParamSnapshot
	var weightsJSON []byte
	err := row.Scan(
		&snap.Version, &weightsJSON, &snap.SpreadThresholdBps, &snap.SlippageCeilingBps,
		&snap.MaxPositionSize, &snap.MinNetProfit, &snap.GeneratedAt,
	)
	if err != nil {
		return domain.ParamSnapshot{}, err
	}
	if weightsJSON != nil {
		if err := json.Unmarshal(weightsJSON, &snap.StrategyWeights); err != nil {
			return domain.ParamSnapshot{}, fmt.Errorf("unmarshal strategy weights: %w", err)
		}
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.ParamSnapshotStore = (*ParamStore)(nil)
