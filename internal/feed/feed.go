package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// channelPrices is the event bus channel carrying live pool ticks.
const channelPrices = "prices"

// SnapshotFunc fetches current on-chain state for a set of pools, keyed by
// lower-case pool address. Used to seed prices before the stream delivers
// its first tick.
type SnapshotFunc func(ctx context.Context, pools map[string]domain.Pool) ([]domain.PriceUpdate, error)

// TickEvent is the JSON shape published to the event bus for each tick.
type TickEvent struct {
	PoolID    string  `json:"pool_id"`
	Venue     string  `json:"venue"`
	Pair      string  `json:"pair"`
	Price     float64 `json:"price"`
	Liquidity float64 `json:"liquidity"`
	Timestamp int64   `json:"ts"`
}

type snapshotSource struct {
	venue domain.Venue
	fn    SnapshotFunc
}

// Service runs the market data feed. It seeds initial prices from venue
// subgraphs, then streams live ticks over WebSocket into the price cache,
// the event bus, and any registered handlers.
type Service struct {
	ws         *WSClient
	cache      domain.PriceCache
	bus        domain.EventBus
	pools      []domain.Pool
	staleAfter time.Duration
	logger     *slog.Logger

	sources []snapshotSource

	mu       sync.RWMutex
	lastTick map[string]time.Time

	handlerMu sync.RWMutex
	handlers  []TickHandler
}

// NewService creates the feed service over an established WS client.
func NewService(ws *WSClient, cache domain.PriceCache, bus domain.EventBus, pools []domain.Pool, staleAfter time.Duration, logger *slog.Logger) *Service {
	return &Service{
		ws:         ws,
		cache:      cache,
		bus:        bus,
		pools:      pools,
		staleAfter: staleAfter,
		logger:     logger.With(slog.String("component", "feed")),
		lastTick:   make(map[string]time.Time, len(pools)),
	}
}

// AddSource registers a snapshot source for one venue's pools.
func (s *Service) AddSource(venue domain.Venue, fn SnapshotFunc) {
	s.sources = append(s.sources, snapshotSource{venue: venue, fn: fn})
}

// OnTick registers a handler invoked for every price update, including
// bootstrap snapshots.
func (s *Service) OnTick(h TickHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Run seeds prices, connects the stream, and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.bootstrap(ctx)

	s.ws.OnTick(s.ingest)

	if err := s.ws.Connect(ctx); err != nil {
		return fmt.Errorf("feed: %w", err)
	}
	defer s.ws.Close()

	poolIDs := make([]string, len(s.pools))
	for i, p := range s.pools {
		poolIDs[i] = p.ID
	}
	if err := s.ws.Subscribe(ctx, poolIDs); err != nil {
		return fmt.Errorf("feed: %w", err)
	}

	s.logger.Info("feed started",
		slog.Int("pools", len(s.pools)),
		slog.Int("sources", len(s.sources)))

	if s.staleAfter > 0 {
		go s.watchStaleness(ctx)
	}

	<-ctx.Done()
	s.logger.Info("feed stopped")
	return ctx.Err()
}

// bootstrap seeds prices from the registered snapshot sources. Source errors
// are logged and skipped; the stream will fill the gaps.
func (s *Service) bootstrap(ctx context.Context) {
	for _, src := range s.sources {
		byAddr := make(map[string]domain.Pool)
		for _, p := range s.pools {
			if p.Venue == src.venue {
				byAddr[strings.ToLower(p.Address)] = p
			}
		}
		if len(byAddr) == 0 {
			continue
		}

		updates, err := src.fn(ctx, byAddr)
		if err != nil {
			s.logger.Warn("snapshot source failed",
				slog.String("venue", string(src.venue)),
				slog.String("error", err.Error()))
			continue
		}
		for _, u := range updates {
			s.ingest(u)
		}
		s.logger.Info("seeded pool prices",
			slog.String("venue", string(src.venue)),
			slog.Int("count", len(updates)))
	}
}

// ingest writes one update to the cache, publishes it on the bus, and
// dispatches it to handlers.
func (s *Service) ingest(u domain.PriceUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.cache.SetPrice(ctx, u.PoolID, u.Price, u.Liquidity, u.Timestamp); err != nil {
		s.logger.Warn("price cache write failed",
			slog.String("pool", u.PoolID),
			slog.String("error", err.Error()))
	}

	event := TickEvent{
		PoolID:    u.PoolID,
		Venue:     string(u.Venue),
		Pair:      u.Pair.String(),
		Price:     u.Price,
		Liquidity: u.Liquidity,
		Timestamp: u.Timestamp.UnixMilli(),
	}
	if payload, err := json.Marshal(event); err == nil {
		if err := s.bus.Publish(ctx, channelPrices, payload); err != nil {
			s.logger.Warn("price publish failed",
				slog.String("pool", u.PoolID),
				slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	s.lastTick[u.PoolID] = time.Now()
	s.mu.Unlock()

	s.handlerMu.RLock()
	handlers := s.handlers
	s.handlerMu.RUnlock()
	for _, h := range handlers {
		h(u)
	}
}

// watchStaleness periodically logs pools that have gone quiet. Scanners read
// the tick timestamp from the cache and skip stale pools on their own; this
// is operator visibility only.
func (s *Service) watchStaleness(ctx context.Context) {
	interval := s.staleAfter / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.RLock()
			for _, p := range s.pools {
				last, ok := s.lastTick[p.ID]
				if !ok || now.Sub(last) > s.staleAfter {
					s.logger.Warn("pool feed stale",
						slog.String("pool", p.ID),
						slog.Duration("age", now.Sub(last)))
				}
			}
			s.mu.RUnlock()
		}
	}
}
