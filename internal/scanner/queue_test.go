package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

func freshOpp(id string, conf float64) domain.Opportunity {
	return domain.Opportunity{
		ID:         id,
		Confidence: conf,
		ExpiresAt:  time.Now().Add(time.Minute),
	}
}

func TestQueue_PushPopFIFO(t *testing.T) {
	q := NewQueue(8)

	require.True(t, q.Push(freshOpp("a", 0.5)))
	require.True(t, q.Push(freshOpp("b", 0.9)))

	ctx := context.Background()
	first, err := q.Pop(ctx)
	require.NoError(t, err)
	second, err := q.Pop(ctx)
	require.NoError(t, err)

	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)

	stats := q.Stats()
	assert.Equal(t, int64(2), stats.Emitted)
	assert.Equal(t, 0, stats.Pending)
}

func TestQueue_EvictsLowestConfidenceWhenFull(t *testing.T) {
	q := NewQueue(2)

	require.True(t, q.Push(freshOpp("high", 0.9)))
	require.True(t, q.Push(freshOpp("low", 0.5)))
	require.True(t, q.Push(freshOpp("mid", 0.7)), "incoming outranks the lowest pending")

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, int64(1), q.Stats().Dropped)

	ctx := context.Background()
	first, err := q.Pop(ctx)
	require.NoError(t, err)
	second, err := q.Pop(ctx)
	require.NoError(t, err)

	assert.Equal(t, "high", first.ID)
	assert.Equal(t, "mid", second.ID)
}

func TestQueue_DiscardsIncomingWhenItRanksLowest(t *testing.T) {
	q := NewQueue(2)

	require.True(t, q.Push(freshOpp("a", 0.9)))
	require.True(t, q.Push(freshOpp("b", 0.7)))
	assert.False(t, q.Push(freshOpp("weak", 0.5)))

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, int64(1), q.Stats().Dropped)
}

func TestQueue_ExpiredDiscardedOnPop(t *testing.T) {
	q := NewQueue(8)

	stale := freshOpp("stale", 0.9)
	stale.ExpiresAt = time.Now().Add(-time.Second)
	require.True(t, q.Push(stale))
	require.True(t, q.Push(freshOpp("live", 0.5)))

	got, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "live", got.ID)
	assert.Equal(t, int64(1), q.Stats().Expired)
}

func TestQueue_PopWakesOnPush(t *testing.T) {
	q := NewQueue(8)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(freshOpp("late", 0.5))
	}()

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", got.ID)
}

func TestQueue_PopRespectsContext(t *testing.T) {
	q := NewQueue(8)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_ZeroCapacityUsesDefault(t *testing.T) {
	q := NewQueue(0)
	assert.Equal(t, 256, q.capacity)
}
