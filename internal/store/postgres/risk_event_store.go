package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// RiskEventStore implements domain.RiskEventStore using PostgreSQL.
type RiskEventStore struct {
	pool *pgxpool.Pool
}

// NewRiskEventStore creates a new RiskEventStore backed by the given pool.
func NewRiskEventStore(pool *pgxpool.Pool) *RiskEventStore {
	return &RiskEventStore{pool: pool}
}

// Log appends a breaker transition. The detail map is stored as JSONB. A
// missing ID or timestamp is filled in here so callers can log fire-and-forget.
func (s *RiskEventStore) Log(ctx context.Context, ev domain.RiskEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	detailJSON, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal risk event detail: %w", err)
	}

	const query = `
		INSERT INTO risk_events (id, kind, reason, actor, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.pool.Exec(ctx, query,
		ev.ID, string(ev.Kind), ev.Reason, ev.Actor, detailJSON, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: log risk event %s: %w", ev.Kind, err)
	}
	return nil
}

// List returns risk events with pagination and optional time filtering.
func (s *RiskEventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.RiskEvent, error) {
	query := `SELECT id, kind, reason, actor, detail, created_at FROM risk_events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list risk events: %w", err)
	}
	defer rows.Close()

	var events []domain.RiskEvent
	for rows.Next() {
		var ev domain.RiskEvent
		var kind string
		var detailJSON []byte

		if err := rows.Scan(&ev.ID, &kind, &ev.Reason, &ev.Actor, &detailJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan risk event: %w", err)
		}
		ev.Kind = domain.RiskEventKind(kind)

		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &ev.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal risk event detail: %w", err)
			}
		}

		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list risk events rows: %w", err)
	}
	return events, nil
}

// ListBefore returns events created before the cutoff, oldest first, for
// cold-storage export.
func (s *RiskEventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.RiskEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, reason, actor, detail, created_at
		FROM risk_events WHERE created_at < $1
		ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list risk events before: %w", err)
	}
	defer rows.Close()

	var events []domain.RiskEvent
	for rows.Next() {
		var ev domain.RiskEvent
		var kind string
		var detailJSON []byte
		if err := rows.Scan(&ev.ID, &kind, &ev.Reason, &ev.Actor, &detailJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan risk event: %w", err)
		}
		ev.Kind = domain.RiskEventKind(kind)
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &ev.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal risk event detail: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Compile-time interface check.
var _ domain.RiskEventStore = (*RiskEventStore)(nil)
