// Package ws streams pipeline events to dashboard sockets. The hub mirrors
// the bus channels for prices, settlements, parameter versions, and risk
// state into one WebSocket endpoint; clients trim the set with
// subscribe/unsubscribe frames.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// defaultChannels are the bus channels every new client starts on.
var defaultChannels = []string{
	"prices",
	"settlements",
	"params",
	"risk",
}

// upgrader accepts any origin; the API key middleware in front of /ws is the
// access control.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// busEvent is one mirrored bus payload tagged with its source channel.
type busEvent struct {
	channel string
	payload []byte
}

// Hub fans bus events out to connected sockets.
type Hub struct {
	bus    domain.EventBus
	events chan busEvent
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	mode      string
	startedAt time.Time
}

// Config carries the runtime metadata included in the greeting frame.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// NewHub creates a hub over the given bus.
func NewHub(bus domain.EventBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		bus:       bus,
		events:    make(chan busEvent, 256),
		logger:    logger,
		clients:   make(map[*client]bool),
		mode:      mode,
		startedAt: startedAt,
	}
}

// Run mirrors the default bus channels and fans arriving events out until ctx
// ends, then hangs up on every client.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range defaultChannels {
		go h.mirror(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case ev := <-h.events:
			h.fanOut(ev)
		}
	}
}

// mirror forwards one bus channel into the hub's event stream.
func (h *Hub) mirror(ctx context.Context, channel string) {
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: mirroring channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: bus subscription closed", slog.String("channel", channel))
				return
			}
			h.events <- busEvent{channel: channel, payload: payload}
		}
	}
}

// fanOut delivers one event to every client subscribed to its channel. A
// client whose send buffer is full loses the frame rather than stalling the
// rest.
func (h *Hub) fanOut(ev busEvent) {
	frame, err := envelope(ev.channel, ev.payload)
	if err != nil {
		h.logger.Warn("ws: dropping malformed event",
			slog.String("channel", ev.channel),
			slog.String("error", err.Error()),
		)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(ev.channel) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("ws: dropping frame for slow client")
		}
	}
}

// envelope wraps a bus payload in a JSON frame naming its channel. The
// payload must itself be valid JSON; it is embedded without re-encoding.
func envelope(channel string, payload []byte) ([]byte, error) {
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(payload))
	}
	return json.Marshal(map[string]any{
		"channel": channel,
		"data":    json.RawMessage(payload),
	})
}

// add registers a client.
func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("ws: client connected", slog.Int("total_clients", n))
}

// remove unregisters a client and closes its send channel exactly once.
// Sends to c.send happen only under the read lock in fanOut, so closing
// under the write lock cannot race them.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))
}

// closeAll hangs up on every client at shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// clientCount returns the number of connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and starts the client's pumps.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool, len(defaultChannels)),
	}
	for _, ch := range defaultChannels {
		c.subs[ch] = true
	}

	h.add(c)
	c.queueGreeting()

	go c.writePump()
	go c.readPump()
}

// client is one connected socket and its subscription set.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

// subscribeMsg is the JSON frame a client sends to manage its channel set.
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// queueGreeting enqueues a status frame so clients can mark the connection
// healthy before any pipeline event flows.
func (c *client) queueGreeting() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	frame, err := json.Marshal(map[string]any{
		"channel": "status",
		"data": map[string]any{
			"mode":           c.hub.mode,
			"ws_connected":   true,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- frame:
	default:
	}
}

// handleSubscription applies one subscribe/unsubscribe frame. Unknown
// actions are ignored.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

// readPump consumes the socket until it drops, applying subscription frames
// and refreshing the read deadline on pongs.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// writePump drains the send buffer to the socket and keeps the connection
// alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
