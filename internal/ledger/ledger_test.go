package ledger

import (
	"context"
	"encoding/json"
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

// memSettlementStore is an in-memory SettlementStore for tests.
type memSettlementStore struct {
	mu    sync.Mutex
	recs  map[string]domain.SettlementRecord
	order []string
}

func newMemSettlementStore() *memSettlementStore {
	return &memSettlementStore{recs: make(map[string]domain.SettlementRecord)}
}

func (m *memSettlementStore) Insert(_ context.Context, rec domain.SettlementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ExecutionPlanID]; ok {
		return domain.ErrDuplicateSettlement
	}
	m.recs[rec.ExecutionPlanID] = rec
	m.order = append(m.order, rec.ExecutionPlanID)
	return nil
}

func (m *memSettlementStore) Finalize(_ context.Context, planID string, outcome domain.Outcome, realized float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[planID]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.Outcome.Final() {
		return domain.ErrAlreadyExists
	}
	now := time.Now().UTC()
	rec.Outcome = outcome
	rec.RealizedProfit = realized
	rec.FinalizedAt = &now
	m.recs[planID] = rec
	return nil
}

func (m *memSettlementStore) GetByPlanID(_ context.Context, planID string) (domain.SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[planID]
	if !ok {
		return domain.SettlementRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memSettlementStore) ListRecent(_ context.Context, limit int) ([]domain.SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SettlementRecord, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.recs[m.order[i]])
	}
	return out, nil
}

func (m *memSettlementStore) ListUnknown(_ context.Context, olderThan time.Time, limit int) ([]domain.SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SettlementRecord
	for _, id := range m.order {
		rec := m.recs[id]
		if rec.Outcome == domain.OutcomeUnknown && rec.ConfirmedAt.Before(olderThan) {
			out = append(out, rec)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memSettlementStore) SumRealized(_ context.Context, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, rec := range m.recs {
		if !rec.ConfirmedAt.Before(since) {
			sum += rec.RealizedProfit
		}
	}
	return sum, nil
}

func (m *memSettlementStore) SumRealizedByStrategy(_ context.Context, since time.Time) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64)
	for _, rec := range m.recs {
		if !rec.ConfirmedAt.Before(since) {
			out[rec.StrategyID] += rec.RealizedProfit
		}
	}
	return out, nil
}

func (m *memSettlementStore) CountByOutcome(_ context.Context, since time.Time) (map[domain.Outcome]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.Outcome]int64)
	for _, rec := range m.recs {
		if !rec.ConfirmedAt.Before(since) {
			out[rec.Outcome]++
		}
	}
	return out, nil
}

type release struct {
	planID  string
	outcome domain.Outcome
	profit  float64
}

// fakeGate records reservation releases and finalized outcomes.
type fakeGate struct {
	mu        sync.Mutex
	released  []release
	finalized []release
}

func (f *fakeGate) ReleaseSettlement(_ context.Context, planID string, outcome domain.Outcome, profit float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, release{planID, outcome, profit})
}

func (f *fakeGate) ApplyFinalized(_ context.Context, outcome domain.Outcome, profit float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, release{"", outcome, profit})
}

func (f *fakeGate) releases() []release {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]release, len(f.released))
	copy(out, f.released)
	return out
}

// fakeBus captures published settlement events.
type fakeBus struct {
	mu       sync.Mutex
	payloads [][]byte
	channels []string
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, payload)
	return nil
}

// fakeNotifier captures operator alerts.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	titles []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	f.titles = append(f.titles, title)
	return nil
}

func settledRec(planID, strategy string, outcome domain.Outcome, realized float64) domain.SettlementRecord {
	return domain.SettlementRecord{
		ID:              "rec-" + planID,
		ExecutionPlanID: planID,
		OpportunityID:   "opp-" + planID,
		StrategyID:      strategy,
		TxReference:     "0xtx" + planID,
		Outcome:         outcome,
		RealizedProfit:  realized,
		GasCost:         0.01,
		ConfirmedAt:     time.Now().UTC(),
	}
}

func TestLedger_RecordUpdatesAggregates(t *testing.T) {
	store := newMemSettlementStore()
	gate := &fakeGate{}
	bus := &fakeBus{}
	led := New(store, gate, bus, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, led.Record(ctx, settledRec("p1", "cross_pool", domain.OutcomeConfirmedProfit, 1.5)))

	sum := led.Summary()
	assert.Equal(t, 1.5, sum.TotalNetProfit)
	assert.Equal(t, 1.5, sum.DailyNetProfit)
	assert.Equal(t, int64(1), sum.Settled)
	assert.Equal(t, int64(1), sum.Confirmed)
	assert.Equal(t, 1.0, sum.SuccessRate)

	perf := sum.PerStrategy["cross_pool"]
	assert.Equal(t, int64(1), perf.Executions)
	assert.Equal(t, 1.5, perf.NetProfit)
	assert.Equal(t, 1.0, perf.SuccessRate)

	rels := gate.releases()
	require.Len(t, rels, 1)
	assert.Equal(t, "p1", rels[0].planID)
	assert.Equal(t, domain.OutcomeConfirmedProfit, rels[0].outcome)

	require.Len(t, bus.payloads, 1)
	assert.Equal(t, channelSettlements, bus.channels[0])
	var ev map[string]any
	require.NoError(t, json.Unmarshal(bus.payloads[0], &ev))
	assert.Equal(t, "p1", ev["plan_id"])
	assert.Equal(t, string(domain.OutcomeConfirmedProfit), ev["outcome"])
}

func TestLedger_RecordIsIdempotent(t *testing.T) {
	store := newMemSettlementStore()
	gate := &fakeGate{}
	led := New(store, gate, nil, nil, testLogger())
	ctx := context.Background()

	rec := settledRec("p1", "cross_pool", domain.OutcomeConfirmedProfit, 1.5)
	require.NoError(t, led.Record(ctx, rec))

	err := led.Record(ctx, rec)
	require.ErrorIs(t, err, domain.ErrDuplicateSettlement)

	assert.Len(t, gate.releases(), 1, "duplicate must not release again")
	assert.Equal(t, int64(1), led.Summary().Settled)
	assert.Equal(t, 1.5, led.Summary().TotalNetProfit)
}

func TestLedger_LossAlertsOperator(t *testing.T) {
	store := newMemSettlementStore()
	notifier := &fakeNotifier{}
	led := New(store, &fakeGate{}, nil, notifier, testLogger())
	ctx := context.Background()

	require.NoError(t, led.Record(ctx, settledRec("p1", "sweep", domain.OutcomeConfirmedLoss, -0.5)))
	require.NoError(t, led.Record(ctx, settledRec("p2", "sweep", domain.OutcomeReverted, -0.02)))
	require.NoError(t, led.Record(ctx, settledRec("p3", "sweep", domain.OutcomeConfirmedProfit, 1.0)))

	assert.Equal(t, []string{"settlement_loss", "settlement_loss"}, notifier.events,
		"losses and reverts alert, profits stay quiet")

	sum := led.Summary()
	assert.InDelta(t, 0.48, sum.TotalNetProfit, 1e-9)
	assert.InDelta(t, 0.52, sum.DailyLoss, 1e-9)
}

func TestLedger_AbortReleasesWithoutRecord(t *testing.T) {
	store := newMemSettlementStore()
	gate := &fakeGate{}
	led := New(store, gate, nil, nil, testLogger())

	plan := &domain.ExecutionPlan{ID: "p1", StrategyID: "cross_pool"}
	led.Abort(context.Background(), plan, "submit queue full")

	rels := gate.releases()
	require.Len(t, rels, 1)
	assert.Equal(t, domain.OutcomeUnknown, rels[0].outcome)
	assert.Zero(t, rels[0].profit)

	assert.Equal(t, int64(0), led.Summary().Settled, "aborts never touch the ledger")
	_, err := store.GetByPlanID(context.Background(), "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedger_ResolveMovesUnknownToFinal(t *testing.T) {
	store := newMemSettlementStore()
	gate := &fakeGate{}
	led := New(store, gate, nil, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, led.Record(ctx, settledRec("p1", "cross_pool", domain.OutcomeUnknown, 0)))
	require.Equal(t, int64(1), led.Summary().Unknown)

	require.NoError(t, led.Resolve(ctx, "p1", domain.OutcomeConfirmedProfit, 0))

	sum := led.Summary()
	assert.Equal(t, int64(0), sum.Unknown)
	assert.Equal(t, int64(1), sum.Confirmed)
	assert.Equal(t, int64(1), sum.Settled, "finalizing is not a new settlement")
	assert.Equal(t, 1.0, sum.SuccessRate)

	gate.mu.Lock()
	finalized := len(gate.finalized)
	gate.mu.Unlock()
	assert.Equal(t, 1, finalized)

	rec, err := store.GetByPlanID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConfirmedProfit, rec.Outcome)
	assert.NotNil(t, rec.FinalizedAt)
}

func TestLedger_ResolveAlreadyFinal(t *testing.T) {
	store := newMemSettlementStore()
	led := New(store, &fakeGate{}, nil, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, led.Record(ctx, settledRec("p1", "cross_pool", domain.OutcomeConfirmedProfit, 1.0)))

	err := led.Resolve(ctx, "p1", domain.OutcomeReverted, -0.01)
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestLedger_ResolveUnknownPlan(t *testing.T) {
	led := New(newMemSettlementStore(), &fakeGate{}, nil, nil, testLogger())

	err := led.Resolve(context.Background(), "ghost", domain.OutcomeReverted, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedger_Hydrate(t *testing.T) {
	store := newMemSettlementStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, settledRec("p1", "cross_pool", domain.OutcomeConfirmedProfit, 2.0)))
	require.NoError(t, store.Insert(ctx, settledRec("p2", "sweep", domain.OutcomeConfirmedLoss, -1.0)))
	require.NoError(t, store.Insert(ctx, settledRec("p3", "sweep", domain.OutcomeUnknown, 0)))

	// A settlement from a previous day counts toward lifetime totals only.
	old := settledRec("p0", "cross_pool", domain.OutcomeConfirmedLoss, -0.5)
	old.ConfirmedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.Insert(ctx, old))

	led := New(store, &fakeGate{}, nil, nil, testLogger())
	require.NoError(t, led.Hydrate(ctx))

	sum := led.Summary()
	assert.InDelta(t, 0.5, sum.TotalNetProfit, 1e-9)
	assert.InDelta(t, 1.0, sum.DailyNetProfit, 1e-9)
	assert.Equal(t, int64(3), sum.Settled)
	assert.Equal(t, int64(2), sum.Confirmed)
	assert.Equal(t, int64(1), sum.Unknown)
	assert.InDelta(t, 2.0, sum.PerStrategy["cross_pool"].NetProfit, 1e-9)
	assert.InDelta(t, -1.0, sum.PerStrategy["sweep"].NetProfit, 1e-9)
}

func TestLedger_SuccessRateCountsOnlyFinalized(t *testing.T) {
	store := newMemSettlementStore()
	led := New(store, &fakeGate{}, nil, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, led.Record(ctx, settledRec("p1", "a", domain.OutcomeConfirmedProfit, 1)))
	require.NoError(t, led.Record(ctx, settledRec("p2", "a", domain.OutcomeConfirmedProfit, 1)))
	require.NoError(t, led.Record(ctx, settledRec("p3", "a", domain.OutcomeConfirmedLoss, -1)))
	require.NoError(t, led.Record(ctx, settledRec("p4", "b", domain.OutcomeReverted, -0.01)))
	require.NoError(t, led.Record(ctx, settledRec("p5", "b", domain.OutcomeUnknown, 0)))

	sum := led.Summary()
	// 2 profitable out of 4 finalized; the unknown record is excluded.
	assert.InDelta(t, 0.5, sum.SuccessRate, 1e-9)
}

func TestLedger_Recent(t *testing.T) {
	store := newMemSettlementStore()
	led := New(store, &fakeGate{}, nil, nil, testLogger())
	ctx := context.Background()

	for _, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, led.Record(ctx, settledRec(id, "a", domain.OutcomeConfirmedProfit, 1)))
	}

	recent, err := led.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "p3", recent[0].ExecutionPlanID)
	assert.Equal(t, "p2", recent[1].ExecutionPlanID)
}
