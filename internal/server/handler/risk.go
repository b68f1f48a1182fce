package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// RiskGate is the slice of the risk gate the handlers need: read the
// current state, and flip the breaker on operator command.
type RiskGate interface {
	Snapshot() domain.RiskState
	Rejections() map[domain.RejectReason]int64
	ResetBreaker(ctx context.Context, reason, actor string) error
	EmergencyHalt(ctx context.Context, actor, reason string) error
}

// RiskHandler serves risk state reads and the two operator controls.
// events may be nil when no store is configured.
type RiskHandler struct {
	gate   RiskGate
	events domain.RiskEventStore
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(gate RiskGate, events domain.RiskEventStore, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{gate: gate, events: events, logger: logger}
}

type riskStateResponse struct {
	Day                 string             `json:"day"`
	DailyRealizedLoss   float64            `json:"daily_realized_loss"`
	DailyRealizedProfit float64            `json:"daily_realized_profit"`
	OpenPositionTotal   float64            `json:"open_position_total"`
	PerPoolExposure     map[string]float64 `json:"per_pool_exposure"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	BreakerActive       bool               `json:"breaker_active"`
	BreakerReason       string             `json:"breaker_reason,omitempty"`
	BreakerSince        *time.Time         `json:"breaker_since,omitempty"`
	Rejections          map[string]int64   `json:"rejections"`
	RecentEvents        []riskEventView    `json:"recent_events,omitempty"`
}

type riskEventView struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Reason    string         `json:"reason"`
	Actor     string         `json:"actor"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// GetRisk responds with the gate snapshot, rejection counters, and the
// most recent breaker transitions.
// GET /api/risk
func (h *RiskHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	state := h.gate.Snapshot()

	rejections := make(map[string]int64)
	for reason, n := range h.gate.Rejections() {
		rejections[string(reason)] = n
	}

	resp := riskStateResponse{
		Day:                 state.Day.Format("2006-01-02"),
		DailyRealizedLoss:   state.DailyRealizedLoss,
		DailyRealizedProfit: state.DailyRealizedProfit,
		OpenPositionTotal:   state.OpenPositionTotal,
		PerPoolExposure:     state.PerPoolExposure,
		ConsecutiveFailures: state.ConsecutiveFailures,
		BreakerActive:       state.BreakerActive,
		BreakerReason:       state.BreakerReason,
		BreakerSince:        state.BreakerSince,
		Rejections:          rejections,
	}

	if h.events != nil {
		events, err := h.events.List(r.Context(), domain.ListOpts{Limit: 10})
		if err != nil {
			h.logger.Warn("risk event listing failed", slog.String("error", err.Error()))
		} else {
			resp.RecentEvents = make([]riskEventView, 0, len(events))
			for _, ev := range events {
				resp.RecentEvents = append(resp.RecentEvents, riskEventView{
					ID:        ev.ID,
					Kind:      string(ev.Kind),
					Reason:    ev.Reason,
					Actor:     ev.Actor,
					Detail:    ev.Detail,
					CreatedAt: ev.CreatedAt,
				})
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type breakerResetRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// ResetBreaker clears a tripped breaker. Requires a reason and an actor so
// the audit trail names who resumed trading and why.
// POST /api/risk/breaker/reset
func (h *RiskHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	var req breakerResetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" || req.Actor == "" {
		writeError(w, http.StatusBadRequest, "reason and actor are required")
		return
	}

	if err := h.gate.ResetBreaker(r.Context(), req.Reason, req.Actor); err != nil {
		if strings.Contains(err.Error(), "not active") {
			writeError(w, http.StatusConflict, "breaker is not active")
			return
		}
		h.logger.Error("breaker reset failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "breaker reset failed")
		return
	}

	h.logger.Info("breaker reset by operator",
		slog.String("actor", req.Actor),
		slog.String("reason", req.Reason))
	writeJSON(w, http.StatusOK, map[string]any{"breaker_active": false})
}

type haltRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// Halt trips the breaker manually. Trading stops until an operator resets.
// POST /api/risk/halt
func (h *RiskHandler) Halt(w http.ResponseWriter, r *http.Request) {
	var req haltRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return
	}

	if err := h.gate.EmergencyHalt(r.Context(), req.Actor, req.Reason); err != nil {
		if errors.Is(err, domain.ErrBreakerActive) {
			writeError(w, http.StatusConflict, "breaker already active")
			return
		}
		h.logger.Error("halt failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "halt failed")
		return
	}

	h.logger.Info("trading halted by operator", slog.String("actor", req.Actor))
	writeJSON(w, http.StatusOK, map[string]any{"breaker_active": true})
}
