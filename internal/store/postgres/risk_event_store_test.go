package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

func TestRiskEventStore_LogFillsDefaults(t *testing.T) {
	client := setupDB(t)
	store := NewRiskEventStore(client.Pool())
	ctx := context.Background()

	ev := domain.RiskEvent{
		Kind:   domain.RiskEventTrip,
		Reason: "daily_loss_cap",
		Actor:  "auto",
		Detail: map[string]any{"realized_loss": 120.5, "cap": 100.0},
	}
	require.NoError(t, store.Log(ctx, ev))

	events, err := store.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	got := events[0]
	assert.NotEmpty(t, got.ID, "missing id is generated on write")
	assert.WithinDuration(t, time.Now(), got.CreatedAt, 5*time.Second, "missing timestamp is filled on write")
	assert.Equal(t, domain.RiskEventTrip, got.Kind)
	assert.Equal(t, "daily_loss_cap", got.Reason)
	assert.Equal(t, "auto", got.Actor)
	assert.Equal(t, map[string]any{"realized_loss": 120.5, "cap": 100.0}, got.Detail)
}

func TestRiskEventStore_ListFilters(t *testing.T) {
	client := setupDB(t)
	store := NewRiskEventStore(client.Pool())
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []domain.RiskEvent{
		{ID: "ev-trip", Kind: domain.RiskEventTrip, Reason: "consecutive_failures", Actor: "auto", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "ev-reset", Kind: domain.RiskEventReset, Reason: "fault cleared", Actor: "alice", CreatedAt: now.Add(-time.Hour)},
		{ID: "ev-halt", Kind: domain.RiskEventHalt, Reason: "rpc flapping", Actor: "bob", CreatedAt: now.Add(-5 * time.Minute)},
	}
	for _, ev := range seed {
		require.NoError(t, store.Log(ctx, ev))
	}

	since := now.Add(-90 * time.Minute)
	events, err := store.List(ctx, domain.ListOpts{Since: &since})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-halt", events[0].ID, "listing is newest first")
	assert.Equal(t, "ev-reset", events[1].ID)

	until := now.Add(-90 * time.Minute)
	events, err = store.List(ctx, domain.ListOpts{Until: &until})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-trip", events[0].ID)

	events, err = store.List(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-reset", events[0].ID, "offset skips the newest event")
}

func TestRiskEventStore_ListBefore(t *testing.T) {
	client := setupDB(t)
	store := NewRiskEventStore(client.Pool())
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []domain.RiskEvent{
		{ID: "ev-old", Kind: domain.RiskEventTrip, Reason: "daily_loss_cap", Actor: "auto", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "ev-older", Kind: domain.RiskEventTrip, Reason: "spread_volatility", Actor: "auto", CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "ev-fresh", Kind: domain.RiskEventReset, Reason: "fault cleared", Actor: "alice", CreatedAt: now},
	}
	for _, ev := range seed {
		require.NoError(t, store.Log(ctx, ev))
	}

	events, err := store.ListBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-older", events[0].ID, "export order is oldest first")
	assert.Equal(t, "ev-old", events[1].ID)
}
