package domain

import "time"

// RejectReason codes why the risk gate refused an opportunity or plan.
type RejectReason string

const (
	RejectBreakerActive     RejectReason = "breaker_active"
	RejectPositionLimit     RejectReason = "position_limit"
	RejectPoolConcentration RejectReason = "pool_concentration"
	RejectLossHeadroom      RejectReason = "loss_headroom"
	RejectMinProfit         RejectReason = "min_profit"
	RejectExpired           RejectReason = "expired"
	RejectGasCeiling        RejectReason = "gas_ceiling"
)

// RiskRejection is the typed outcome of a failed admission check. It is a
// value, not a fault: callers count it and discard the plan.
type RiskRejection struct {
	Reason RejectReason
	Detail string
}

// Error implements error so rejections travel through error returns while
// staying matchable with errors.As.
func (r RiskRejection) Error() string {
	if r.Detail == "" {
		return "risk: rejected: " + string(r.Reason)
	}
	return "risk: rejected: " + string(r.Reason) + ": " + r.Detail
}

// RiskState is a point-in-time copy of the gate's internal state. Only the
// risk gate mutates the underlying fields; everyone else reads snapshots.
type RiskState struct {
	Day                 time.Time // UTC date the daily counters cover
	DailyRealizedLoss   float64   // ETH
	DailyRealizedProfit float64   // ETH
	OpenPositionTotal   float64   // ETH, reserved but unsettled
	PerPoolExposure     map[string]float64
	ConsecutiveFailures int
	BreakerActive       bool
	BreakerReason       string
	BreakerSince        *time.Time
}

// RiskEventKind classifies circuit-breaker state transitions.
type RiskEventKind string

const (
	RiskEventTrip  RiskEventKind = "trip"
	RiskEventReset RiskEventKind = "reset"
	RiskEventHalt  RiskEventKind = "halt"
)

// RiskEvent is one audited breaker transition: who, why, and the state at the
// time of the transition.
type RiskEvent struct {
	ID        string
	Kind      RiskEventKind
	Reason    string
	Actor     string // operator identity for reset/halt, "auto" for trips
	Detail    map[string]any
	CreatedAt time.Time
}
