package executor

import (
	"sync"
	"time"
)

// Dedup remembers plan IDs that already reached the submission path. A plan
// is broadcast at most once, ever; re-deliveries after a queue replay are
// dropped here instead of double-spending the loan. It is safe for
// concurrent use.
type Dedup struct {
	seen map[string]time.Time // planID -> first seen time
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup that forgets plan IDs after the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate returns true if planID has been seen within the TTL window. A
// new or expired ID is recorded and false is returned.
func (d *Dedup) IsDuplicate(planID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if firstSeen, ok := d.seen[planID]; ok {
		if now.Sub(firstSeen) < d.ttl {
			return true
		}
	}

	d.seen[planID] = now
	return false
}

// Cleanup removes entries older than the TTL. Plans expire long before their
// IDs age out, so a forgotten ID cannot be resubmitted anyway. This should
// be called periodically to prevent unbounded memory growth.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Len returns the number of tracked plan IDs.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
