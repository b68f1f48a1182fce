package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

type fakeBus struct {
	mu    sync.Mutex
	chans map[string]chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{chans: make(map[string]chan []byte)}
}

func (f *fakeBus) Publish(context.Context, string, []byte) error { return nil }

func (f *fakeBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan []byte, 8)
	f.chans[channel] = ch
	return ch, nil
}

func (f *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (f *fakeBus) subscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chans)
}

func (f *fakeBus) push(channel string, payload []byte) {
	f.mu.Lock()
	ch := f.chans[channel]
	f.mu.Unlock()
	ch <- payload
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnvelope(t *testing.T) {
	frame, err := envelope("settlements", []byte(`{"plan_id":"p1"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"settlements","data":{"plan_id":"p1"}}`, string(frame))

	frame, err = envelope("risk", []byte("plain text"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"risk","data":"plain text"}`, string(frame), "non-JSON payloads are quoted")
}

func TestClient_SubscriptionManagement(t *testing.T) {
	c := &client{subs: map[string]bool{"prices": true, "risk": true}}

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"prices"}})
	assert.False(t, c.isSubscribed("prices"))
	assert.True(t, c.isSubscribed("risk"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"settlements", "params"}})
	assert.True(t, c.isSubscribed("settlements"))
	assert.True(t, c.isSubscribed("params"))

	c.handleSubscription(subscribeMsg{Action: "noop", Channels: []string{"risk"}})
	assert.True(t, c.isSubscribed("risk"), "unknown actions change nothing")
}

func TestHub_BridgesBusToClients(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(bus, testLogger(), Config{Mode: "Pipeline"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	require.Eventually(t, func() bool { return bus.subscribed() == len(defaultChannels) },
		2*time.Second, 10*time.Millisecond, "hub subscribes to every default channel")

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.clientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	var status struct {
		Channel string `json:"channel"`
		Data    struct {
			Mode        string `json:"mode"`
			WSConnected bool   `json:"ws_connected"`
		} `json:"data"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "status", status.Channel)
	assert.Equal(t, "pipeline", status.Data.Mode, "mode is normalised to lower case")
	assert.True(t, status.Data.WSConnected)

	bus.push("settlements", []byte(`{"plan_id":"p1","outcome":"confirmed_profit"}`))

	var frame struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "settlements", frame.Channel)
	assert.JSONEq(t, `{"plan_id":"p1","outcome":"confirmed_profit"}`, string(frame.Data))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.clientCount() == 0 },
		2*time.Second, 10*time.Millisecond, "disconnects unregister the client")
}

func TestNewHub_Defaults(t *testing.T) {
	hub := NewHub(newFakeBus(), testLogger(), Config{})
	assert.Equal(t, "unknown", hub.mode)
	assert.False(t, hub.startedAt.IsZero())
}
