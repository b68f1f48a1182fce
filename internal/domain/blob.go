package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one object in cold storage.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads finished export files to object storage. Implementations
// pick the upload strategy from the payload size.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// BlobReader serves the export trail back out of object storage.
type BlobReader interface {
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// Archiver exports aged ledger data from the database to cold storage.
type Archiver interface {
	ArchiveSettlements(ctx context.Context, before time.Time) (int64, error)
	ArchiveRiskEvents(ctx context.Context, before time.Time) (int64, error)
	ArchiveParamHistory(ctx context.Context, before time.Time) (int64, error)
}
