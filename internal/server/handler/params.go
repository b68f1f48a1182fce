package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// ParamSource is the slice of the optimizer the handlers read from.
type ParamSource interface {
	Params() domain.ParamSnapshot
	History(ctx context.Context, limit int) ([]domain.ParamSnapshot, error)
}

// ParamHandler serves the live tuning parameters and their version history.
type ParamHandler struct {
	source ParamSource
	logger *slog.Logger
}

// NewParamHandler creates a ParamHandler.
func NewParamHandler(source ParamSource, logger *slog.Logger) *ParamHandler {
	return &ParamHandler{source: source, logger: logger}
}

type paramSnapshotView struct {
	Version            int64              `json:"version"`
	StrategyWeights    map[string]float64 `json:"strategy_weights"`
	SpreadThresholdBps float64            `json:"spread_threshold_bps"`
	SlippageCeilingBps float64            `json:"slippage_ceiling_bps"`
	MaxPositionSize    float64            `json:"max_position_size"`
	MinNetProfit       float64            `json:"min_net_profit"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

func paramView(p domain.ParamSnapshot) paramSnapshotView {
	return paramSnapshotView{
		Version:            p.Version,
		StrategyWeights:    p.StrategyWeights,
		SpreadThresholdBps: p.SpreadThresholdBps,
		SlippageCeilingBps: p.SlippageCeilingBps,
		MaxPositionSize:    p.MaxPositionSize,
		MinNetProfit:       p.MinNetProfit,
		GeneratedAt:        p.GeneratedAt,
	}
}

// GetParams responds with the snapshot the pipeline is currently trading on.
// GET /api/params
func (h *ParamHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, paramView(h.source.Params()))
}

// GetHistory responds with persisted snapshot versions, newest first.
// GET /api/params/history
func (h *ParamHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20, 200)

	history, err := h.source.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("param history listing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "param history listing failed")
		return
	}

	views := make([]paramSnapshotView, 0, len(history))
	for _, p := range history {
		views = append(views, paramView(p))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": views,
		"count":   len(views),
	})
}
