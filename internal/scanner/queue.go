package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// QueueStats counts how opportunities moved through the queue.
type QueueStats struct {
	Emitted int64
	Dropped int64
	Expired int64
	Pending int
}

// Queue is the bounded hand-off between the scanner and the strategy workers.
// Producers never block: when the queue is full, the lowest-confidence
// pending opportunity is evicted to make room, or the incoming one is
// discarded if it ranks lowest itself. Consumers pop FIFO; expired entries
// are discarded on pop.
type Queue struct {
	mu       sync.Mutex
	items    []domain.Opportunity
	capacity int
	notify   chan struct{}

	emitted atomic.Int64
	dropped atomic.Int64
	expired atomic.Int64
}

// NewQueue creates a queue with the given capacity (default 256).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push offers an opportunity. It returns false when the incoming opportunity
// was discarded because the queue is full and nothing pending ranks lower.
func (q *Queue) Push(o domain.Opportunity) bool {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		lowest := -1
		lowestConf := o.Confidence
		for i, it := range q.items {
			if it.Confidence < lowestConf {
				lowest = i
				lowestConf = it.Confidence
			}
		}
		if lowest == -1 {
			q.mu.Unlock()
			q.dropped.Add(1)
			return false
		}
		q.items = append(q.items[:lowest], q.items[lowest+1:]...)
		q.dropped.Add(1)
	}
	q.items = append(q.items, o)
	q.mu.Unlock()

	q.emitted.Add(1)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop blocks until an unexpired opportunity is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (domain.Opportunity, error) {
	for {
		q.mu.Lock()
		now := time.Now()
		for len(q.items) > 0 {
			o := q.items[0]
			q.items = q.items[1:]
			if o.Expired(now) {
				q.expired.Add(1)
				continue
			}
			q.mu.Unlock()
			return o, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.Opportunity{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of pending opportunities.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns cumulative queue counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Emitted: q.emitted.Load(),
		Dropped: q.dropped.Load(),
		Expired: q.expired.Load(),
		Pending: q.Len(),
	}
}
