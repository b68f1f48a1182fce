package handler

import (
	"net/http"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// OpportunitySource returns the most recently emitted opportunities,
// newest first.
type OpportunitySource interface {
	Recent(limit int) []domain.Opportunity
}

// OpportunityHandler serves the scanner's recent emissions for the dashboard.
type OpportunityHandler struct {
	source OpportunitySource
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(source OpportunitySource) *OpportunityHandler {
	return &OpportunityHandler{source: source}
}

type opportunityView struct {
	ID           string    `json:"id"`
	Pair         string    `json:"pair"`
	SourceVenue  string    `json:"source_venue"`
	DestVenue    string    `json:"dest_venue"`
	SourcePrice  float64   `json:"source_price"`
	DestPrice    float64   `json:"dest_price"`
	SpreadBps    float64   `json:"spread_bps"`
	InputAmount  float64   `json:"input_amount"`
	GrossProfit  float64   `json:"gross_profit"`
	Confidence   float64   `json:"confidence"`
	DiscoveredAt time.Time `json:"discovered_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ListRecent responds with the latest opportunities the scanner emitted.
// GET /api/opportunities/recent
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20, 64)

	opps := h.source.Recent(limit)
	views := make([]opportunityView, 0, len(opps))
	for _, opp := range opps {
		views = append(views, opportunityView{
			ID:           opp.ID,
			Pair:         opp.Pair.String(),
			SourceVenue:  string(opp.SourceVenue),
			DestVenue:    string(opp.DestVenue),
			SourcePrice:  opp.SourcePrice,
			DestPrice:    opp.DestPrice,
			SpreadBps:    opp.SpreadBps,
			InputAmount:  opp.InputAmount,
			GrossProfit:  opp.ExpectedGrossProfit,
			Confidence:   opp.Confidence,
			DiscoveredAt: opp.DiscoveredAt,
			ExpiresAt:    opp.ExpiresAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": views,
		"count":         len(views),
	})
}
