package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// Narrow store views required by the archiver. The Postgres stores satisfy
// them through their ListBefore methods; the archiver never needs the full
// store interfaces.

// SettlementArchiveStore reads finalized settlements for export.
type SettlementArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.SettlementRecord, error)
}

// RiskEventArchiveStore reads breaker transitions for export.
type RiskEventArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.RiskEvent, error)
}

// ParamArchiveStore reads parameter snapshots for export.
type ParamArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ParamSnapshot, error)
}

// Archiver implements domain.Archiver by querying the stores for aged rows,
// serializing them to JSONL, and uploading the result to object storage.
//
// Deleting the exported rows from the primary store is intentionally NOT
// done here; that is a separate, explicit step after the archive has been
// verified.
type Archiver struct {
	writer      domain.BlobWriter
	settlements SettlementArchiveStore
	riskEvents  RiskEventArchiveStore
	params      ParamArchiveStore
	logger      *slog.Logger
}

// NewArchiver creates an Archiver over the given stores.
func NewArchiver(
	writer domain.BlobWriter,
	settlements SettlementArchiveStore,
	riskEvents RiskEventArchiveStore,
	params ParamArchiveStore,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:      writer,
		settlements: settlements,
		riskEvents:  riskEvents,
		params:      params,
		logger:      logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSettlements exports finalized settlements confirmed before the
// cutoff to archive/settlements/YYYY-MM.jsonl and returns how many rows went
// out. Unknown outcomes are skipped; they still belong to reconciliation.
func (a *Archiver) ArchiveSettlements(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.settlements.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements marshal: %w", err)
	}

	path := archivePath("settlements", before)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements upload: %w", err)
	}

	count := int64(len(recs))
	a.logger.Info("settlements archived",
		slog.String("path", path),
		slog.Int64("count", count))
	return count, nil
}

// ArchiveRiskEvents exports breaker transitions logged before the cutoff to
// archive/risk_events/YYYY-MM.jsonl.
func (a *Archiver) ArchiveRiskEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.riskEvents.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive risk events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive risk events marshal: %w", err)
	}

	path := archivePath("risk_events", before)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive risk events upload: %w", err)
	}

	count := int64(len(events))
	a.logger.Info("risk events archived",
		slog.String("path", path),
		slog.Int64("count", count))
	return count, nil
}

// ArchiveParamHistory exports parameter snapshots generated before the
// cutoff to archive/param_history/YYYY-MM.jsonl. The active snapshot always
// postdates any sane cutoff, so the tuning trail archives without ever
// touching the live version.
func (a *Archiver) ArchiveParamHistory(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := a.params.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive param history query: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(snaps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive param history marshal: %w", err)
	}

	path := archivePath("param_history", before)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive param history upload: %w", err)
	}

	count := int64(len(snaps))
	a.logger.Info("param history archived",
		slog.String("path", path),
		slog.Int64("count", count))
	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/settlements/2025-01.jsonl
//	archive/risk_events/2025-01.jsonl
//	archive/param_history/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
