package handler

import (
	"net/http"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/executor"
	"github.com/TemamAb/ainex-sub000/internal/scanner"
	"github.com/TemamAb/ainex-sub000/internal/strategy"
)

// ScannerStats exposes the scanner's counters.
type ScannerStats interface {
	Stats() scanner.Stats
}

// PlannerStats exposes the strategy orchestrator's counters.
type PlannerStats interface {
	Stats() strategy.Stats
}

// ExecutorStats exposes the executor's counters.
type ExecutorStats interface {
	Stats() executor.Stats
}

// StatusHandler serves the pipeline status for the dashboard. Any stats
// source may be nil when the mode does not run that stage.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	scanner   ScannerStats
	planner   PlannerStats
	executor  ExecutorStats
}

// NewStatusHandler creates a StatusHandler for the given mode.
func NewStatusHandler(mode string, startedAt time.Time, sc ScannerStats, pl PlannerStats, ex ExecutorStats) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		startedAt: startedAt,
		scanner:   sc,
		planner:   pl,
		executor:  ex,
	}
}

// GetStatus responds with the current mode, uptime, and stage counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.scanner != nil {
		s := h.scanner.Stats()
		resp["scanner"] = map[string]any{
			"evaluated":  s.Evaluated,
			"suppressed": s.Suppressed,
			"emitted":    s.Queue.Emitted,
			"dropped":    s.Queue.Dropped,
			"expired":    s.Queue.Expired,
			"pending":    s.Queue.Pending,
		}
	}
	if h.planner != nil {
		p := h.planner.Stats()
		resp["planner"] = map[string]any{
			"consumed":     p.Consumed,
			"expired":      p.Expired,
			"deduped":      p.Deduped,
			"not_admitted": p.NotAdmitted,
			"no_plan":      p.NoPlan,
			"rejected":     p.Rejected,
			"dispatched":   p.Dispatched,
		}
	}
	if h.executor != nil {
		e := h.executor.Stats()
		resp["executor"] = map[string]any{
			"enqueued":  e.Enqueued,
			"submitted": e.Submitted,
			"confirmed": e.Confirmed,
			"reverted":  e.Reverted,
			"unknown":   e.Unknown,
			"aborted":   e.Aborted,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
