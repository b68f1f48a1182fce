package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

type cacheWrite struct {
	poolID    string
	price     float64
	liquidity float64
	ts        time.Time
}

type fakePriceCache struct {
	writes []cacheWrite
	err    error
}

func (f *fakePriceCache) SetPrice(_ context.Context, poolID string, price, liquidity float64, ts time.Time) error {
	f.writes = append(f.writes, cacheWrite{poolID, price, liquidity, ts})
	return f.err
}

func (f *fakePriceCache) GetPrice(context.Context, string) (float64, time.Time, error) {
	return 0, time.Time{}, domain.ErrNotFound
}

func (f *fakePriceCache) GetPrices(context.Context, []string) (map[string]float64, error) {
	return nil, nil
}

type busMessage struct {
	channel string
	payload []byte
}

type fakeEventBus struct {
	published []busMessage
	err       error
}

func (f *fakeEventBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.published = append(f.published, busMessage{channel, payload})
	return f.err
}

func (f *fakeEventBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeEventBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (f *fakeEventBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFeedService(cache *fakePriceCache, bus *fakeEventBus) *Service {
	ws := NewWSClient("ws://unused", feedPools, 0, 0)
	return NewService(ws, cache, bus, feedPools, 0, discardLogger())
}

func TestService_IngestFansOut(t *testing.T) {
	cache := &fakePriceCache{}
	bus := &fakeEventBus{}
	s := newFeedService(cache, bus)

	var seen []domain.PriceUpdate
	s.OnTick(func(u domain.PriceUpdate) { seen = append(seen, u) })

	ts := time.UnixMilli(1_700_000_000_000).UTC()
	s.ingest(domain.PriceUpdate{
		PoolID:    "uni-weth-usdc",
		Venue:     domain.VenueUniswapV3,
		Pair:      domain.Pair{Base: "WETH", Quote: "USDC"},
		Price:     101.5,
		Liquidity: 250_000,
		Timestamp: ts,
	})

	require.Len(t, cache.writes, 1)
	assert.Equal(t, cacheWrite{"uni-weth-usdc", 101.5, 250_000, ts}, cache.writes[0])

	require.Len(t, bus.published, 1)
	assert.Equal(t, "prices", bus.published[0].channel)
	var event TickEvent
	require.NoError(t, json.Unmarshal(bus.published[0].payload, &event))
	assert.Equal(t, "uni-weth-usdc", event.PoolID)
	assert.Equal(t, "uniswap_v3", event.Venue)
	assert.Equal(t, "WETH/USDC", event.Pair)
	assert.Equal(t, 101.5, event.Price)
	assert.Equal(t, int64(1_700_000_000_000), event.Timestamp)

	require.Len(t, seen, 1, "registered handlers get every tick")
}

func TestService_IngestSurvivesCacheFailure(t *testing.T) {
	cache := &fakePriceCache{err: errors.New("redis down")}
	bus := &fakeEventBus{}
	s := newFeedService(cache, bus)

	handled := false
	s.OnTick(func(domain.PriceUpdate) { handled = true })

	s.ingest(domain.PriceUpdate{PoolID: "uni-weth-usdc", Price: 1, Timestamp: time.Now()})

	assert.Len(t, bus.published, 1, "publish proceeds despite the cache error")
	assert.True(t, handled, "handlers still run despite the cache error")
}

func TestService_BootstrapSeedsPerVenue(t *testing.T) {
	cache := &fakePriceCache{}
	bus := &fakeEventBus{}
	s := newFeedService(cache, bus)

	var uniPools map[string]domain.Pool
	s.AddSource(domain.VenueUniswapV3, func(_ context.Context, pools map[string]domain.Pool) ([]domain.PriceUpdate, error) {
		uniPools = pools
		return []domain.PriceUpdate{
			{PoolID: "uni-weth-usdc", Venue: domain.VenueUniswapV3, Price: 100, Timestamp: time.Now()},
		}, nil
	})
	s.AddSource(domain.VenueSushiswap, func(context.Context, map[string]domain.Pool) ([]domain.PriceUpdate, error) {
		return nil, errors.New("subgraph 502")
	})
	curveCalled := false
	s.AddSource(domain.VenueCurve, func(context.Context, map[string]domain.Pool) ([]domain.PriceUpdate, error) {
		curveCalled = true
		return nil, nil
	})

	s.bootstrap(context.Background())

	require.NotNil(t, uniPools)
	assert.Len(t, uniPools, 1, "sources only see their own venue's pools")
	assert.Contains(t, uniPools, "0xpool1", "pools are keyed by lower-cased address")

	require.Len(t, cache.writes, 1, "failed sources are skipped, healthy ones seed")
	assert.Equal(t, "uni-weth-usdc", cache.writes[0].poolID)
	assert.False(t, curveCalled, "venues with no configured pools are not queried")
}
