// Package feed delivers pool price updates from the indexer's streaming feed
// into the price cache, the event bus, and the opportunity scanner.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// TickHandler is called for each parsed pool tick.
type TickHandler func(domain.PriceUpdate)

// wsCommand is the subscription envelope sent to the indexer.
type wsCommand struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Pools   []string `json:"pools"`
}

// poolTickMessage is one streamed pool state update. Numeric fields arrive as
// strings to preserve precision.
type poolTickMessage struct {
	Event     string `json:"event"`
	PoolID    string `json:"pool_id"`
	Price     string `json:"price"`
	Liquidity string `json:"liquidity"`
	TSMillis  int64  `json:"ts"`
}

// WSClient is a WebSocket client for the pool tick stream. It manages the
// connection lifecycle, restores subscriptions after reconnect, and
// dispatches parsed ticks to registered handlers.
type WSClient struct {
	wsURL string
	pools map[string]domain.Pool // pool ID -> definition
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	subscriptions []wsCommand

	handlerMu sync.RWMutex
	handlers  []TickHandler

	reconnectBase time.Duration
	reconnectMax  time.Duration

	done chan struct{}
}

// NewWSClient creates a client for the given stream endpoint. pools defines
// which pool IDs are recognised; ticks for unknown pools are dropped.
func NewWSClient(wsURL string, pools []domain.Pool, reconnectBase, reconnectMax time.Duration) *WSClient {
	byID := make(map[string]domain.Pool, len(pools))
	for _, p := range pools {
		byID[p.ID] = p
	}
	if reconnectBase <= 0 {
		reconnectBase = time.Second
	}
	if reconnectMax <= 0 {
		reconnectMax = 30 * time.Second
	}
	return &WSClient{
		wsURL:         wsURL,
		pools:         byID,
		reconnectBase: reconnectBase,
		reconnectMax:  reconnectMax,
		done:          make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("feed/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed/ws: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	// Restore any previous subscriptions after reconnect.
	for _, cmd := range w.subscriptions {
		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("feed/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to pool ticks for the given pool IDs.
func (w *WSClient) Subscribe(ctx context.Context, poolIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("feed/ws: not connected")
	}

	cmd := wsCommand{
		Type:    "subscribe",
		Channel: "pool_ticks",
		Pools:   poolIDs,
	}
	if err := w.sendCommand(cmd); err != nil {
		return fmt.Errorf("feed/ws: subscribe: %w", err)
	}
	w.subscriptions = append(w.subscriptions, cmd)
	return nil
}

// OnTick registers a handler called for every parsed pool tick.
func (w *WSClient) OnTick(handler TickHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Close shuts down the connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

// sendCommand sends a JSON command to the WebSocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages and dispatches ticks to handlers. On
// disconnect it reconnects with exponential backoff.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the connection alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw message and dispatches pool ticks. Unparseable
// messages and ticks for untracked pools are dropped silently.
func (w *WSClient) handleMessage(raw []byte) {
	var msg poolTickMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Event != "pool_tick" {
		return
	}

	pool, ok := w.pools[msg.PoolID]
	if !ok {
		return
	}
	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || price <= 0 {
		return
	}
	liquidity, _ := strconv.ParseFloat(msg.Liquidity, 64)

	ts := time.Now().UTC()
	if msg.TSMillis > 0 {
		ts = time.UnixMilli(msg.TSMillis).UTC()
	}

	update := domain.PriceUpdate{
		PoolID:    pool.ID,
		Venue:     pool.Venue,
		Pair:      pool.Pair,
		Price:     price,
		Liquidity: liquidity,
		Timestamp: ts,
	}

	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(update)
	}
}

// reconnect re-establishes the connection with jittered exponential backoff.
// It blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := w.reconnectBase

	for {
		select {
		case <-w.done:
			return
		default:
		}

		// Jitter up to 20% so restarted instances don't reconnect in lockstep.
		sleep := delay + time.Duration(rand.Int63n(int64(delay)/5+1))
		time.Sleep(sleep)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > w.reconnectMax {
			delay = w.reconnectMax
		}
	}
}
