package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// SettlementSource is the slice of the ledger the handlers read from.
type SettlementSource interface {
	Recent(ctx context.Context, limit int) ([]domain.SettlementRecord, error)
	Summary() domain.LedgerSummary
}

// SettlementHandler serves the settlement history and the aggregate summary.
type SettlementHandler struct {
	ledger SettlementSource
	logger *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(ledger SettlementSource, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{ledger: ledger, logger: logger}
}

type settlementView struct {
	ID              string     `json:"id"`
	ExecutionPlanID string     `json:"execution_plan_id"`
	OpportunityID   string     `json:"opportunity_id"`
	StrategyID      string     `json:"strategy_id"`
	TxReference     string     `json:"tx_reference,omitempty"`
	Outcome         string     `json:"outcome"`
	RealizedProfit  float64    `json:"realized_profit"`
	GasCost         float64    `json:"gas_cost"`
	BlockNumber     uint64     `json:"block_number,omitempty"`
	ConfirmedAt     time.Time  `json:"confirmed_at"`
	FinalizedAt     *time.Time `json:"finalized_at,omitempty"`
}

// ListSettlements responds with the most recent settlements, newest first.
// GET /api/settlements
func (h *SettlementHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)

	records, err := h.ledger.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("settlement listing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "settlement listing failed")
		return
	}

	views := make([]settlementView, 0, len(records))
	for _, rec := range records {
		views = append(views, settlementView{
			ID:              rec.ID,
			ExecutionPlanID: rec.ExecutionPlanID,
			OpportunityID:   rec.OpportunityID,
			StrategyID:      rec.StrategyID,
			TxReference:     rec.TxReference,
			Outcome:         string(rec.Outcome),
			RealizedProfit:  rec.RealizedProfit,
			GasCost:         rec.GasCost,
			BlockNumber:     rec.BlockNumber,
			ConfirmedAt:     rec.ConfirmedAt,
			FinalizedAt:     rec.FinalizedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"settlements": views,
		"count":       len(views),
	})
}

type strategyPerfView struct {
	Executions  int64   `json:"executions"`
	Confirmed   int64   `json:"confirmed"`
	Reverted    int64   `json:"reverted"`
	NetProfit   float64 `json:"net_profit"`
	SuccessRate float64 `json:"success_rate"`
}

type summaryResponse struct {
	TotalNetProfit float64                     `json:"total_net_profit"`
	DailyNetProfit float64                     `json:"daily_net_profit"`
	DailyLoss      float64                     `json:"daily_loss"`
	HourlyProfit   float64                     `json:"hourly_profit"`
	Settled        int64                       `json:"settled"`
	Confirmed      int64                       `json:"confirmed"`
	Reverted       int64                       `json:"reverted"`
	Unknown        int64                       `json:"unknown"`
	SuccessRate    float64                     `json:"success_rate"`
	PerStrategy    map[string]strategyPerfView `json:"per_strategy"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// GetSummary responds with the running ledger aggregates.
// GET /api/settlements/summary
func (h *SettlementHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum := h.ledger.Summary()

	perStrategy := make(map[string]strategyPerfView, len(sum.PerStrategy))
	for id, perf := range sum.PerStrategy {
		perStrategy[id] = strategyPerfView{
			Executions:  perf.Executions,
			Confirmed:   perf.Confirmed,
			Reverted:    perf.Reverted,
			NetProfit:   perf.NetProfit,
			SuccessRate: perf.SuccessRate,
		}
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		TotalNetProfit: sum.TotalNetProfit,
		DailyNetProfit: sum.DailyNetProfit,
		DailyLoss:      sum.DailyLoss,
		HourlyProfit:   sum.HourlyProfit,
		Settled:        sum.Settled,
		Confirmed:      sum.Confirmed,
		Reverted:       sum.Reverted,
		Unknown:        sum.Unknown,
		SuccessRate:    sum.SuccessRate,
		PerStrategy:    perStrategy,
		UpdatedAt:      sum.UpdatedAt,
	})
}
