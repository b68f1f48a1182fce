package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	client := setupCache(t)
	rl := NewRateLimiter(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "quotes", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d fits within the limit", i+1)
	}

	allowed, err := rl.Allow(ctx, "quotes", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "fourth request exceeds the limit")

	allowed, err = rl.Allow(ctx, "other", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "keys are limited independently")
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	client := setupCache(t)
	rl := NewRateLimiter(client)
	ctx := context.Background()

	window := 300 * time.Millisecond
	for i := 0; i < 2; i++ {
		allowed, err := rl.Allow(ctx, "sliding", 2, window)
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, err := rl.Allow(ctx, "sliding", 2, window)
	require.NoError(t, err)
	require.False(t, allowed)

	time.Sleep(window + 100*time.Millisecond)

	allowed, err = rl.Allow(ctx, "sliding", 2, window)
	require.NoError(t, err)
	assert.True(t, allowed, "slots free up once old requests slide out of the window")
}

func TestRateLimiter_WaitReturnsWhenAllowed(t *testing.T) {
	client := setupCache(t)
	rl := NewRateLimiter(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, rl.Wait(ctx, "fresh-key"))
	assert.Less(t, time.Since(start), time.Second, "an open budget admits immediately")
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	client := setupCache(t)
	rl := NewRateLimiter(client)

	// Exhaust the one-per-second budget Wait checks against.
	allowed, err := rl.Allow(context.Background(), "busy-key", 1, time.Second)
	require.NoError(t, err)
	require.True(t, allowed)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = rl.Wait(ctx, "busy-key")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
