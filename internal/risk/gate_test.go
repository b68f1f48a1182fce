package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGateConfig() Config {
	return Config{
		DailyLossCap:        10,
		MaxPositionSize:     100,
		MaxOpenPositions:    300,
		PoolConcentration:   0.2, // 60 per pool
		MinNetProfit:        0.1,
		ConsecutiveFailures: 3,
		GasCeilingGwei:      300,
		SlippageCeilingBps:  50,
	}
}

// memRiskEvents collects persisted breaker transitions.
type memRiskEvents struct {
	mu     sync.Mutex
	events []domain.RiskEvent
}

func (m *memRiskEvents) Log(_ context.Context, ev domain.RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRiskEvents) List(context.Context, domain.ListOpts) ([]domain.RiskEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RiskEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *memRiskEvents) kinds() []domain.RiskEventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RiskEventKind, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Kind)
	}
	return out
}

func testPlan(id string, size, profit float64, pools ...string) *domain.ExecutionPlan {
	return &domain.ExecutionPlan{
		ID:                 id,
		PositionSize:       size,
		EstimatedNetProfit: profit,
		EstimatedGasCost:   0.01,
		Pools:              pools,
		CreatedAt:          time.Now(),
		ExpiresAt:          time.Now().Add(time.Minute),
	}
}

func rejectionReason(t *testing.T, err error) domain.RejectReason {
	t.Helper()
	var rej domain.RiskRejection
	require.ErrorAs(t, err, &rej)
	return rej.Reason
}

func TestGate_AdmitPlanReservesCapital(t *testing.T) {
	g := New(testGateConfig(), nil, testLogger())
	ctx := context.Background()

	require.NoError(t, g.AdmitPlan(ctx, testPlan("p1", 50, 1, "poolA", "poolB")))

	state := g.Snapshot()
	assert.Equal(t, 50.0, state.OpenPositionTotal)
	assert.Equal(t, 50.0, state.PerPoolExposure["poolA"])
	assert.Equal(t, 50.0, state.PerPoolExposure["poolB"])
}

func TestGate_AdmitOpportunity(t *testing.T) {
	g := New(testGateConfig(), nil, testLogger())
	ctx := context.Background()

	opp := domain.Opportunity{SourcePool: "poolA", DestPool: "poolB"}
	assert.True(t, g.AdmitOpportunity(opp))

	// Fill poolA to its concentration cap (0.2 * 300 = 60).
	require.NoError(t, g.AdmitPlan(ctx, testPlan("p1", 60, 1, "poolA")))
	assert.False(t, g.AdmitOpportunity(opp))
	assert.Equal(t, int64(1), g.Rejections()[domain.RejectPoolConcentration])
}

func TestGate_RejectExpiredPlan(t *testing.T) {
	g := New(testGateConfig(), nil, testLogger())

	p := testPlan("p1", 50, 1, "poolA")
	p.ExpiresAt = time.Now().Add(-time.Second)

	err := g.AdmitPlan(context.Background(), p)
	assert.Equal(t, domain.RejectExpired, rejectionReason(t, err))
	assert.Zero(t, g.Snapshot().OpenPositionTotal, "rejected plans reserve nothing")
}

func TestGate_RejectBelowMinProfit(t *testing.T) {
	g := New(testGateConfig(), nil, testLogger())

	err := g.AdmitPlan(context.Background(), testPlan("p1", 50, 0.05, "poolA"))
	assert.Equal(t, domain.RejectMinProfit, rejectionReason(t, err))
}

func TestGate_RejectOversizedPlan(t *testing.T) {
	g := New(testGateConfig(), nil, testLogger())

	err := g.AdmitPlan(context.Background(), testPlan("p1", 150, 1, "poolA"))
	assert.Equal(t, domain.RejectPositionLimit, rejectionReason(t, err))
}

func TestGate_RejectWhenOpenTotalExhausted(t *testing.T) {
	cfg := testGateConfig()
	cfg.PoolConcentration = 1.0 // isolate the total cap

	g := New(cfg, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, g.AdmitPlan(ctx, testPlan("p1", 100, 1, "poolA")))
	require.NoError(t, g.AdmitPlan(ctx, testPlan("p2", 100, 1, "poolB")))
	require.NoError(t, g.AdmitPlan(ctx, testPlan("p3", 100, 1, "poolC")))

	err := g.AdmitPlan(ctx, testPlan("p4", 100, 1, "poolD"))
	assert.Equal(t, domain.RejectPositionLimit, rejectionReason(t, err))
}

func TestGate_RejectPoolConcentration(t *testing.T) {
	g := New(testGateConfig(), nil, testLogger())
	ctx := context.Background()

	require.NoError(t, g.AdmitPlan(ctx, testPlan("p1", 50, 1, "poolA")))

	// 50 + 50 would put poolA past its 60 cap.
	err := g.AdmitPlan(ctx, testPlan("p2", 50, 1, "poolA"))
	assert.Equal(t, domain.RejectPoolConcentration, rejectionReason(t, err))
}

func TestGate_LossHeadroomTripsBreaker(t *testing.T) {
	store := &memRiskEvents{}
	g := New(testGateConfig(), store, testLogger())
	ctx := context.Background()

	// Burn most of the daily headroom.
	g.ApplyFinalized(ctx, domain.OutcomeConfirmedLoss, -9.6)
	require.False(t, g.Snapshot().BreakerActive)

	// Worst case 100*50bps + 0.01 gas = 0.51 no longer fits under the cap.
	err := g.AdmitPlan(ctx, testPlan("p1", 100, 1, "poolA"))
	assert.Equal(t, domain.RejectLossHeadroom, rejectionReason(t, err))

	state := g.Snapshot()
	assert.True(t, state.BreakerActive)
	assert.Equal(t, "daily_loss_headroom", state.BreakerReason)
	assert.Equal(t, []domain.RiskEventKind{domain.RiskEventTrip}, store.kinds())
}

func TestGate_DailyLossCapTripsBreaker(t *testing.T) {
	store := &memRiskEvents{}
	g := New(testGateConfig(), store, testLogger())
	ctx := context.Background()

	g.ApplyFinalized(ctx, domain.OutcomeConfirmedLoss, -10)

	state := g.Snapshot()
	assert.True(t, state.BreakerActive)
	assert.Equal(t, "daily_loss_cap", state.BreakerReason)
	assert.Equal(t, 10.0, state.DailyRealizedLoss)

	events, err := store.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.RiskEventTrip, events[0].Kind)
	assert.Equal(t, "auto", events[0].Actor)
	assert.Contains(t, events[0].Detail, "trigger")
}

func TestGate_ConsecutiveFailuresTripBreaker(t *testing.T) {
	cfg := testGateConfig()
	cfg.ConsecutiveFailures = 2

	g := New(cfg, nil, testLogger())
	ctx := context.Background()

	g.ApplyFinalized(ctx, domain.OutcomeReverted, -0.1)
	g.ApplyFinalized(ctx, domain.OutcomeReverted, -0.1)
	require.False(t, g.Snapshot().BreakerActive, "streak at the threshold stays open")

	g.ApplyFinalized(ctx, domain.OutcomeReverted, -0.1)

	state := g.Snapshot()
	assert.True(t, state.BreakerActive)
	assert.Equal(t, "consecutive_failures", state.BreakerReason)
}

func TestGate_ProfitResetsFailureStreak(t *testing.T) {
	cfg := testGateConfig()
	cfg.ConsecutiveFailures = 2

	g := New(cfg, nil, testLogger())
	ctx := context.Background()

	g.ApplyFinalized(ctx, domain.OutcomeReverted, -0.1)
	g.ApplyFinalized(ctx, domain.OutcomeReverted, -0.1)
	g.ApplyFinalized(ctx, domain.OutcomeConfirmedProfit, 0.5)
	g.ApplyFinalized(ctx, domain.OutcomeReverted, -0.1)
	g.ApplyFinalized(ctx, domain.OutcomeReverted, -0.1)

	state := g.Snapshot()
	assert.False(t, state.BreakerActive)
	assert.Equal(t, 2, state.ConsecutiveFailures)
}

func TestGate_ReleaseSettlementOnce(t *testing.T) {
	g := New(testGateConfig(), nil, testLogger())
	ctx := context.Background()

	require.NoError(t, g.AdmitPlan(ctx, testPlan("p1", 50, 1, "poolA")))

	g.ReleaseSettlement(ctx, "p1", domain.OutcomeConfirmedProfit, 1.0)
	state := g.Snapshot()
	assert.Zero(t, state.OpenPositionTotal)
	assert.NotContains(t, state.PerPoolExposure, "poolA")
	assert.Equal(t, 1.0, state.DailyRealizedProfit)

	// A second release for the same plan is a no-op.
	g.ReleaseSettlement(ctx, "p1", domain.OutcomeConfirmedProfit, 1.0)
	assert.Equal(t, 1.0, g.Snapshot().DailyRealizedProfit)
}

func TestGate_UnknownOutcomeLeavesStreakAlone(t *testing.T) {
	g := New(testGateConfig(), nil, testLogger())
	ctx := context.Background()

	require.NoError(t, g.AdmitPlan(ctx, testPlan("p1", 50, 1, "poolA")))
	g.ReleaseSettlement(ctx, "p1", domain.OutcomeUnknown, 0)

	state := g.Snapshot()
	assert.Zero(t, state.OpenPositionTotal, "reservation is released even when unresolved")
	assert.Zero(t, state.ConsecutiveFailures)
}

func TestGate_ObserveGasPrice(t *testing.T) {
	g := New(testGateConfig(), nil, testLogger())
	ctx := context.Background()

	g.ObserveGasPrice(ctx, 299)
	assert.False(t, g.Snapshot().BreakerActive)

	g.ObserveGasPrice(ctx, 300)
	state := g.Snapshot()
	assert.True(t, state.BreakerActive)
	assert.Equal(t, "gas_ceiling", state.BreakerReason)
}

func TestGate_GasCeilingDisabledWhenZero(t *testing.T) {
	cfg := testGateConfig()
	cfg.GasCeilingGwei = 0

	g := New(cfg, nil, testLogger())
	g.ObserveGasPrice(context.Background(), 10_000)
	assert.False(t, g.Snapshot().BreakerActive)
}

func TestGate_EmergencyHaltAndReset(t *testing.T) {
	store := &memRiskEvents{}
	g := New(testGateConfig(), store, testLogger())
	ctx := context.Background()

	require.Error(t, g.EmergencyHalt(ctx, "", "reason"), "halt requires an actor")

	require.NoError(t, g.EmergencyHalt(ctx, "alice", "runbook drill"))
	assert.True(t, g.Snapshot().BreakerActive)
	assert.False(t, g.AdmitOpportunity(domain.Opportunity{SourcePool: "a", DestPool: "b"}))

	err := g.EmergencyHalt(ctx, "alice", "again")
	require.ErrorIs(t, err, domain.ErrBreakerActive)

	require.Error(t, g.ResetBreaker(ctx, "", "alice"), "reset requires a reason")
	require.Error(t, g.ResetBreaker(ctx, "resolved", ""), "reset requires an actor")

	require.NoError(t, g.ResetBreaker(ctx, "resolved", "alice"))
	state := g.Snapshot()
	assert.False(t, state.BreakerActive)
	assert.Empty(t, state.BreakerReason)
	assert.Nil(t, state.BreakerSince)
	assert.Zero(t, state.ConsecutiveFailures)

	require.Error(t, g.ResetBreaker(ctx, "resolved", "alice"), "reset of an open breaker fails")

	assert.Equal(t, []domain.RiskEventKind{domain.RiskEventHalt, domain.RiskEventReset}, store.kinds())
}

func TestGate_EventHookFires(t *testing.T) {
	g := New(testGateConfig(), nil, testLogger())

	got := make(chan domain.RiskEvent, 1)
	g.SetEventHook(func(ev domain.RiskEvent) { got <- ev })

	g.ApplyFinalized(context.Background(), domain.OutcomeConfirmedLoss, -10)

	select {
	case ev := <-got:
		assert.Equal(t, domain.RiskEventTrip, ev.Kind)
		assert.Equal(t, "daily_loss_cap", ev.Reason)
		assert.False(t, ev.CreatedAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event hook did not fire")
	}
}

func TestGate_DailyCountersRoll(t *testing.T) {
	g := New(testGateConfig(), nil, testLogger())
	ctx := context.Background()

	require.NoError(t, g.AdmitPlan(ctx, testPlan("p1", 50, 1, "poolA")))
	g.ReleaseSettlement(ctx, "p1", domain.OutcomeConfirmedLoss, -2)

	// Pretend the counters were accumulated yesterday.
	g.mu.Lock()
	g.day = utcDay(time.Now().Add(-24 * time.Hour))
	g.mu.Unlock()

	g.AdmitOpportunity(domain.Opportunity{SourcePool: "a", DestPool: "b"})

	state := g.Snapshot()
	assert.Equal(t, utcDay(time.Now()), state.Day)
	assert.Zero(t, state.DailyRealizedLoss, "daily counters reset on rollover")
	assert.Zero(t, state.DailyRealizedProfit)
}

func TestGate_BreakerSurvivesRollover(t *testing.T) {
	g := New(testGateConfig(), nil, testLogger())
	ctx := context.Background()

	g.ApplyFinalized(ctx, domain.OutcomeConfirmedLoss, -10)
	require.True(t, g.Snapshot().BreakerActive)

	g.mu.Lock()
	g.day = utcDay(time.Now().Add(-24 * time.Hour))
	g.mu.Unlock()

	g.AdmitOpportunity(domain.Opportunity{})
	assert.True(t, g.Snapshot().BreakerActive, "only an operator reset reopens the gate")
}

func TestUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 03:00 on the 2nd in UTC+9 is still the 1st in UTC.
	in := time.Date(2026, 3, 2, 3, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), utcDay(in))
}

func TestRiskRejection_ErrorsAs(t *testing.T) {
	g := New(testGateConfig(), nil, testLogger())

	err := g.AdmitPlan(context.Background(), testPlan("p1", 150, 1, "poolA"))
	require.Error(t, err)

	var rej domain.RiskRejection
	require.True(t, errors.As(err, &rej))
	assert.Contains(t, rej.Error(), "position_limit")
}
