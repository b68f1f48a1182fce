package scanner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPools() []domain.Pool {
	pair := domain.Pair{Base: "WETH", Quote: "USDC"}
	return []domain.Pool{
		{ID: "uniswap_v3:WETH/USDC", Venue: domain.VenueUniswapV3, Pair: pair, FeeBps: 5},
		{ID: "sushiswap:WETH/USDC", Venue: domain.VenueSushiswap, Pair: pair, FeeBps: 30},
	}
}

func testScannerConfig() Config {
	return Config{
		SpreadThresholdBps: 10,
		FeeGasFloorBps:     4,
		QueueSize:          16,
		OpportunityTTL:     30 * time.Second,
		VolatilityWindow:   5 * time.Minute,
		MinLiquidity:       1_000,
		ConfidenceFloor:    0,
	}
}

func tick(p domain.Pool, price, liquidity float64) domain.PriceUpdate {
	return domain.PriceUpdate{
		PoolID:    p.ID,
		Venue:     p.Venue,
		Pair:      p.Pair,
		Price:     price,
		Liquidity: liquidity,
		Timestamp: time.Now(),
	}
}

// fakeParams serves a fixed parameter snapshot.
type fakeParams struct {
	snapshot domain.ParamSnapshot
}

func (f *fakeParams) Params() domain.ParamSnapshot { return f.snapshot }

func TestScanner_EmitsCrossVenueOpportunity(t *testing.T) {
	pools := testPools()
	s := New(testScannerConfig(), pools, nil, testLogger())

	s.evaluate(tick(pools[0], 100, 1_000_000))
	s.evaluate(tick(pools[1], 101, 1_000_000))

	require.Equal(t, 1, s.Queue().Len())

	opp, err := s.Queue().Pop(context.Background())
	require.NoError(t, err)

	// Buy on the cheap pool, sell into the dear one.
	assert.Equal(t, pools[0].ID, opp.SourcePool)
	assert.Equal(t, pools[1].ID, opp.DestPool)
	assert.Equal(t, domain.VenueUniswapV3, opp.SourceVenue)
	assert.InDelta(t, 100.0, opp.SpreadBps, 1e-9)

	// Trade size is a tenth of the shallower pool's depth, denominated in base.
	assert.InDelta(t, 1_000.0, opp.InputAmount, 1e-9)
	assert.InDelta(t, 1_000*(101.0-100.0)/101.0, opp.ExpectedGrossProfit, 1e-9)
	assert.InDelta(t, 10.0, opp.EstimatedSlippageBps, 1e-9)

	// Deep book, no recorded volatility: depth score saturates.
	assert.InDelta(t, 0.90, opp.Confidence, 1e-9)
	assert.False(t, opp.Expired(time.Now()))
}

func TestScanner_SpreadBelowThresholdIgnored(t *testing.T) {
	pools := testPools()
	s := New(testScannerConfig(), pools, nil, testLogger())

	s.evaluate(tick(pools[0], 100, 1_000_000))
	s.evaluate(tick(pools[1], 100.05, 1_000_000)) // 5 bps gross

	assert.Equal(t, 0, s.Queue().Len())
}

func TestScanner_FeeGasFloorEatsThinSpreads(t *testing.T) {
	pools := testPools()
	cfg := testScannerConfig()
	cfg.FeeGasFloorBps = 4

	s := New(cfg, pools, nil, testLogger())
	s.evaluate(tick(pools[0], 100, 1_000_000))
	s.evaluate(tick(pools[1], 100.12, 1_000_000)) // 12 bps gross, 8 net

	assert.Equal(t, 0, s.Queue().Len(), "net spread below threshold after the floor")

	cfg.FeeGasFloorBps = 0
	s2 := New(cfg, pools, nil, testLogger())
	s2.evaluate(tick(pools[0], 100, 1_000_000))
	s2.evaluate(tick(pools[1], 100.12, 1_000_000))

	assert.Equal(t, 1, s2.Queue().Len())
}

func TestScanner_ThinLiquiditySkipped(t *testing.T) {
	pools := testPools()
	s := New(testScannerConfig(), pools, nil, testLogger())

	s.evaluate(tick(pools[0], 100, 500)) // below MinLiquidity
	s.evaluate(tick(pools[1], 102, 1_000_000))

	assert.Equal(t, 0, s.Queue().Len())
}

func TestScanner_LiveParamsOverrideConfigThreshold(t *testing.T) {
	pools := testPools()
	params := &fakeParams{snapshot: domain.ParamSnapshot{SpreadThresholdBps: 200}}

	s := New(testScannerConfig(), pools, params, testLogger())
	s.evaluate(tick(pools[0], 100, 1_000_000))
	s.evaluate(tick(pools[1], 101, 1_000_000)) // 100 bps, under the live threshold

	assert.Equal(t, 0, s.Queue().Len())
}

func TestScanner_ZeroParamSnapshotFallsBack(t *testing.T) {
	pools := testPools()
	params := &fakeParams{} // snapshot not yet published

	s := New(testScannerConfig(), pools, params, testLogger())
	s.evaluate(tick(pools[0], 100, 1_000_000))
	s.evaluate(tick(pools[1], 101, 1_000_000))

	assert.Equal(t, 1, s.Queue().Len())
}

func TestScanner_CooldownSuppressesRepeatEmits(t *testing.T) {
	pools := testPools()
	s := New(testScannerConfig(), pools, nil, testLogger())

	s.evaluate(tick(pools[0], 100, 1_000_000))
	s.evaluate(tick(pools[1], 101, 1_000_000))
	s.evaluate(tick(pools[1], 101, 1_000_000)) // same live spread re-detected

	assert.Equal(t, 1, s.Queue().Len())
	assert.Equal(t, int64(1), s.Stats().Suppressed)
}

func TestScanner_StalePeerIgnored(t *testing.T) {
	pools := testPools()
	s := New(testScannerConfig(), pools, nil, testLogger())

	old := tick(pools[0], 100, 1_000_000)
	old.Timestamp = time.Now().Add(-time.Minute)
	s.evaluate(old)
	s.evaluate(tick(pools[1], 101, 1_000_000))

	assert.Equal(t, 0, s.Queue().Len())
}

func TestScanner_HandleTickUnknownPool(t *testing.T) {
	s := New(testScannerConfig(), testPools(), nil, testLogger())
	s.HandleTick(domain.PriceUpdate{PoolID: "curve:FRAX/USDC"})
	assert.Equal(t, int64(0), s.Stats().Evaluated)
}

func TestScanner_HandleTickNeverBlocks(t *testing.T) {
	pools := testPools()
	s := New(testScannerConfig(), pools, nil, testLogger())

	// No monitor is draining; the inbox displaces old ticks instead of blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < monitorBuffer*3; i++ {
			s.HandleTick(tick(pools[0], 100, 1_000_000))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleTick blocked on a full inbox")
	}
}

func TestScanner_RunDeliversTicks(t *testing.T) {
	pools := testPools()
	s := New(testScannerConfig(), pools, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	s.HandleTick(tick(pools[0], 100, 1_000_000))
	require.Eventually(t, func() bool {
		_, ok := s.Snapshots()[pools[0].ID]
		return ok
	}, time.Second, 5*time.Millisecond, "first tick must land before the peer tick")
	s.HandleTick(tick(pools[1], 101, 1_000_000))

	popCtx, popCancel := context.WithTimeout(context.Background(), time.Second)
	defer popCancel()
	_, err := s.Queue().Pop(popCtx)
	require.NoError(t, err, "monitors should evaluate routed ticks")

	cancel()
	require.ErrorIs(t, <-runDone, context.Canceled)
}

func TestScanner_RecentNewestFirst(t *testing.T) {
	s := New(testScannerConfig(), testPools(), nil, testLogger())

	for i := 0; i < 3; i++ {
		s.remember(domain.Opportunity{ID: fmt.Sprintf("opp-%d", i)})
	}

	got := s.Recent(2)
	require.Len(t, got, 2)
	assert.Equal(t, "opp-2", got[0].ID)
	assert.Equal(t, "opp-1", got[1].ID)
}

func TestScanner_RecentRingWraps(t *testing.T) {
	s := New(testScannerConfig(), testPools(), nil, testLogger())

	for i := 0; i < recentCap+5; i++ {
		s.remember(domain.Opportunity{ID: fmt.Sprintf("opp-%d", i)})
	}

	all := s.Recent(0)
	require.Len(t, all, recentCap)
	assert.Equal(t, fmt.Sprintf("opp-%d", recentCap+4), all[0].ID)
}

func TestScanner_Snapshots(t *testing.T) {
	pools := testPools()
	s := New(testScannerConfig(), pools, nil, testLogger())

	s.evaluate(tick(pools[0], 100, 1_000_000))

	snaps := s.Snapshots()
	require.Contains(t, snaps, pools[0].ID)
	assert.Equal(t, 100.0, snaps[pools[0].ID].Price)
}
