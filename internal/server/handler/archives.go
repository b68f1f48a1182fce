package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// ArchiveStore is the slice of object storage the dashboard needs: list the
// export trail and stream one file back. The blob reader implements it.
type ArchiveStore interface {
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// ArchiveHandler serves the cold-storage export trail.
type ArchiveHandler struct {
	blobs  ArchiveStore
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler over the given blob store.
func NewArchiveHandler(blobs ArchiveStore, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		blobs:  blobs,
		logger: logger.With(slog.String("component", "archive_handler")),
	}
}

// archiveView is the JSON shape of one exported object.
type archiveView struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// validArchiveKinds are the export families the archiver produces.
var validArchiveKinds = map[string]bool{
	"settlements":   true,
	"risk_events":   true,
	"param_history": true,
}

// ListArchives handles GET /api/archives. The optional kind query parameter
// narrows the listing to one export family.
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	prefix := "archive/"
	if kind := r.URL.Query().Get("kind"); kind != "" {
		if !validArchiveKinds[kind] {
			writeError(w, http.StatusBadRequest, "unknown archive kind (valid: settlements, risk_events, param_history)")
			return
		}
		prefix += kind + "/"
	}

	infos, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "archive listing failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	views := make([]archiveView, 0, len(infos))
	for _, b := range infos {
		views = append(views, archiveView{
			Path:         b.Path,
			Size:         b.Size,
			LastModified: b.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"archives": views,
		"count":    len(views),
	})
}

// DownloadArchive handles GET /api/archives/download. The path query
// parameter names one exported object, as returned by ListArchives.
func (h *ArchiveHandler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}
	if !strings.HasPrefix(path, "archive/") || strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "path must name an exported archive")
		return
	}

	body, err := h.blobs.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "archive fetch failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to fetch archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.ErrorContext(r.Context(), "archive stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}
