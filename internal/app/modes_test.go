package app

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

	"github.com/TemamAb/ainex-sub000/internal/config"
	"github.com/TemamAb/ainex-sub000/internal/domain"
	"github.com/TemamAb/ainex-sub000/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testApp returns an App over the default config with a valid aggregator
// contract. Mutating the returned config changes the app's view too.
func testApp(t *testing.T) (*App, *config.Config) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Chain.AggregatorContract = "0x4444444444444444444444444444444444444444"
	return New(&cfg, testLogger()), &cfg
}

type busMsg struct {
	channel string
	payload []byte
}

type fakeBus struct {
	mu        sync.Mutex
	published []busMsg
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, busMsg{channel, payload})
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeSender struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, message)
	return nil
}

func TestModeDependencyNeeds(t *testing.T) {
	assert.True(t, needsPostgres("pipeline"))
	assert.True(t, needsPostgres("monitor"))
	assert.False(t, needsPostgres("scan"), "scan mode keeps no ledger")

	assert.True(t, needsS3("pipeline"))
	assert.False(t, needsS3("monitor"))
	assert.False(t, needsS3("scan"))
}

func TestBuildPools(t *testing.T) {
	pools := buildPools([]config.PoolConfig{
		{ID: "uniswap_v3:WETH/USDC", Venue: "uniswap_v3", Base: "WETH", Quote: "USDC", Address: "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640", FeeBps: 5},
		{ID: "sushiswap:WETH/USDC", Venue: "sushiswap", Base: "WETH", Quote: "USDC", Address: "0x397FF1542f962076d0BFE58eA045FfA2d347ACa0", FeeBps: 30},
	})

	require.Len(t, pools, 2)
	assert.Equal(t, "uniswap_v3:WETH/USDC", pools[0].ID)
	assert.Equal(t, domain.VenueUniswapV3, pools[0].Venue)
	assert.Equal(t, "WETH/USDC", pools[0].Pair.String())
	assert.Equal(t, 5.0, pools[0].FeeBps)
	assert.Equal(t, domain.VenueSushiswap, pools[1].Venue)
}

func TestInitialParams(t *testing.T) {
	cfg := config.Defaults()
	cfg.Strategy.Active = []string{"cross_pool", "liquidity_sweep"}
	cfg.Scanner.SpreadThresholdBps = 12
	cfg.Risk.SlippageCeilingBps = 40
	cfg.Risk.MaxPositionSize = 800
	cfg.Risk.MinNetProfit = 0.05

	snap := initialParams(&cfg)

	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, map[string]float64{"cross_pool": 0.5, "liquidity_sweep": 0.5}, snap.StrategyWeights,
		"active strategies start equally weighted")
	assert.Equal(t, 12.0, snap.SpreadThresholdBps)
	assert.Equal(t, 40.0, snap.SlippageCeilingBps)
	assert.Equal(t, 800.0, snap.MaxPositionSize)
	assert.Equal(t, 0.05, snap.MinNetProfit)
	assert.WithinDuration(t, time.Now().UTC(), snap.GeneratedAt, 2*time.Second)
}

func TestInitialParamsNoActiveStrategies(t *testing.T) {
	cfg := config.Defaults()
	cfg.Strategy.Active = nil

	assert.Empty(t, initialParams(&cfg).StrategyWeights)
}

func TestApp_BuildProviders(t *testing.T) {
	a, cfg := testApp(t)

	providers, err := a.buildProviders(nil)
	require.NoError(t, err)
	require.Len(t, providers, 2, "defaults enable aave and balancer only")
	assert.Equal(t, "aave", providers[0].ID())
	assert.Equal(t, "balancer", providers[1].ID())

	cfg.Providers.Dydx.Enabled = true
	providers, err = a.buildProviders(nil)
	require.NoError(t, err)
	require.Len(t, providers, 3)
	assert.Equal(t, "dydx", providers[2].ID())
}

func TestApp_BuildProvidersNoneEnabled(t *testing.T) {
	a, cfg := testApp(t)
	cfg.Providers.Aave.Enabled = false
	cfg.Providers.Balancer.Enabled = false

	_, err := a.buildProviders(nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "no flash-loan provider enabled")
}

func TestApp_BuildProvidersBadAggregator(t *testing.T) {
	cfg := config.Defaults()
	cfg.Chain.AggregatorContract = ""
	a := New(&cfg, testLogger())

	_, err := a.buildProviders(nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "aave: invalid aggregator address")
}

func TestApp_BuildVenues(t *testing.T) {
	a, cfg := testApp(t)

	venues, err := a.buildVenues(nil, buildPools(cfg.Pools))
	require.NoError(t, err)
	require.Len(t, venues, 2)
	assert.Equal(t, domain.VenueUniswapV3, venues[0].Venue())
	assert.Equal(t, domain.VenueSushiswap, venues[1].Venue())
}

func TestApp_BuildVenuesNoneEnabled(t *testing.T) {
	a, cfg := testApp(t)
	cfg.Venues.Uniswap.Enabled = false
	cfg.Venues.Sushiswap.Enabled = false

	_, err := a.buildVenues(nil, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "no swap venue enabled")
}

func TestApp_BuildRegistry(t *testing.T) {
	a, cfg := testApp(t)

	reg, err := a.buildRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"cross_pool", "liquidity_sweep"}, reg.List())

	cfg.Strategy.Bridged.Enabled = true
	cfg.Strategy.Liquidation.Enabled = true
	cfg.Strategy.Active = []string{"cross_pool", "liquidity_sweep", "bridged_asset", "liquidation_capture"}
	reg, err = a.buildRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"bridged_asset", "cross_pool", "liquidation_capture", "liquidity_sweep"}, reg.List())
}

func TestApp_BuildRegistryNormalisesNames(t *testing.T) {
	a, cfg := testApp(t)
	cfg.Strategy.Active = []string{"  Cross_Pool  "}

	reg, err := a.buildRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"cross_pool"}, reg.List())
}

func TestApp_BuildRegistryEnabledButNotActive(t *testing.T) {
	a, cfg := testApp(t)
	// bridged_asset is named but disabled; the enabled strategies are unnamed.
	cfg.Strategy.Active = []string{"bridged_asset"}

	_, err := a.buildRegistry()
	require.Error(t, err)
	assert.ErrorContains(t, err, "no strategy both enabled and active")
}

func TestApp_OptimizerConfigCapsPositionFromRisk(t *testing.T) {
	a, cfg := testApp(t)
	cfg.Risk.MaxPositionSize = 750

	oc := a.optimizerConfig()
	assert.Equal(t, 750.0, oc.MaxPositionCap, "the optimizer can never raise positions past the risk cap")
}

func TestApp_RiskEventHook(t *testing.T) {
	a, _ := testApp(t)
	bus := &fakeBus{}
	sender := &fakeSender{}
	deps := &Dependencies{
		Bus:      bus,
		Notifier: notify.NewNotifier([]notify.Sender{sender}, nil, testLogger()),
	}
	hook := a.riskEventHook(context.Background(), deps)

	hook(domain.RiskEvent{
		ID:        "ev-1",
		Kind:      domain.RiskEventTrip,
		Reason:    "daily loss cap reached",
		Actor:     "auto",
		CreatedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
	})

	require.Len(t, bus.published, 1)
	assert.Equal(t, channelRisk, bus.published[0].channel)

	var ev riskEvent
	require.NoError(t, json.Unmarshal(bus.published[0].payload, &ev))
	assert.Equal(t, "ev-1", ev.ID)
	assert.Equal(t, "trip", ev.Kind)
	assert.Equal(t, "daily loss cap reached", ev.Reason)

	require.Len(t, sender.titles, 1)
	assert.Equal(t, "Circuit breaker tripped", sender.titles[0])
	assert.Equal(t, "daily loss cap reached", sender.bodies[0], "automatic trips carry no actor suffix")
}

func TestApp_RiskEventHookOperatorActions(t *testing.T) {
	a, _ := testApp(t)
	bus := &fakeBus{}
	sender := &fakeSender{}
	deps := &Dependencies{
		Bus:      bus,
		Notifier: notify.NewNotifier([]notify.Sender{sender}, nil, testLogger()),
	}
	hook := a.riskEventHook(context.Background(), deps)

	hook(domain.RiskEvent{Kind: domain.RiskEventReset, Reason: "fault cleared", Actor: "alice"})
	hook(domain.RiskEvent{Kind: domain.RiskEventHalt, Reason: "rpc flapping", Actor: "bob"})

	require.Len(t, sender.titles, 2)
	assert.Equal(t, "Circuit breaker reset", sender.titles[0])
	assert.Equal(t, "fault cleared (by alice)", sender.bodies[0])
	assert.Equal(t, "Emergency halt", sender.titles[1])
	assert.Equal(t, "rpc flapping (by bob)", sender.bodies[1])
	assert.Len(t, bus.published, 2, "every transition lands on the bus")
}
