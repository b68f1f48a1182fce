package scanner

import (
	"math"
	"sync"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// priceTable holds the freshest snapshot per pool plus a pair index so a tick
// on one pool can be compared against every other venue tracking the same
// pair.
type priceTable struct {
	mu     sync.RWMutex
	byPool map[string]domain.PriceUpdate
	byPair map[string][]string // pair key -> pool IDs
}

func newPriceTable(pools []domain.Pool) *priceTable {
	t := &priceTable{
		byPool: make(map[string]domain.PriceUpdate, len(pools)),
		byPair: make(map[string][]string),
	}
	for _, p := range pools {
		key := p.Pair.String()
		t.byPair[key] = append(t.byPair[key], p.ID)
	}
	return t
}

// Update stores a snapshot, keeping only the freshest per pool.
func (t *priceTable) Update(u domain.PriceUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.byPool[u.PoolID]; ok && prev.Timestamp.After(u.Timestamp) {
		return
	}
	t.byPool[u.PoolID] = u
}

// Snapshot returns the freshest update for a pool.
func (t *priceTable) Snapshot(poolID string) (domain.PriceUpdate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.byPool[poolID]
	return u, ok
}

// All returns a copy of the freshest snapshot per pool.
func (t *priceTable) All() map[string]domain.PriceUpdate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]domain.PriceUpdate, len(t.byPool))
	for id, u := range t.byPool {
		out[id] = u
	}
	return out
}

// Peers returns snapshots for every other pool tracking the same pair,
// excluding entries older than maxAge.
func (t *priceTable) Peers(pair domain.Pair, excludePool string, maxAge time.Duration, now time.Time) []domain.PriceUpdate {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var peers []domain.PriceUpdate
	for _, id := range t.byPair[pair.String()] {
		if id == excludePool {
			continue
		}
		u, ok := t.byPool[id]
		if !ok {
			continue
		}
		if now.Sub(u.Timestamp) > maxAge {
			continue
		}
		peers = append(peers, u)
	}
	return peers
}

// spreadPoint records one observed cross-venue spread at a point in time.
type spreadPoint struct {
	SpreadBps float64
	Time      time.Time
}

// spreadTracker maintains a sliding window of recent cross-venue spreads per
// pair. Its volatility reading feeds the confidence score: a pair whose
// spread jumps around gets lower confidence than one holding steady.
type spreadTracker struct {
	mu      sync.RWMutex
	history map[string][]spreadPoint
	window  time.Duration
}

func newSpreadTracker(window time.Duration) *spreadTracker {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &spreadTracker{
		history: make(map[string][]spreadPoint),
		window:  window,
	}
}

// Track records a spread observation and trims points outside the window.
func (st *spreadTracker) Track(pairKey string, spreadBps float64, ts time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.history[pairKey] = append(st.history[pairKey], spreadPoint{
		SpreadBps: spreadBps,
		Time:      ts,
	})
	st.trim(pairKey, ts)
}

// Volatility returns the population standard deviation of spreads in the
// window. Fewer than two points yields 0.
func (st *spreadTracker) Volatility(pairKey string) float64 {
	st.mu.RLock()
	defer st.mu.RUnlock()

	pts := st.history[pairKey]
	if len(pts) < 2 {
		return 0
	}

	var sum float64
	for _, p := range pts {
		sum += p.SpreadBps
	}
	mean := sum / float64(len(pts))

	var variance float64
	for _, p := range pts {
		d := p.SpreadBps - mean
		variance += d * d
	}
	variance /= float64(len(pts))
	return math.Sqrt(variance)
}

// trim removes points older than the window. Caller must hold st.mu.
func (st *spreadTracker) trim(pairKey string, now time.Time) {
	cutoff := now.Add(-st.window)
	pts := st.history[pairKey]

	i := 0
	for i < len(pts) && pts[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		st.history[pairKey] = pts[i:]
	}
}
