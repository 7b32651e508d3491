package ohlc

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/gorilla/websocket"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	defaultClientBuffer = 256
)

// BacklogFunc returns the candles a new listener receives after hello.
type BacklogFunc func() []domain.Candle

// Hub fans broadcast messages out to WebSocket listeners. Broadcast never
// blocks; a listener whose queue is full is disconnected.
type Hub struct {
	pool     string
	interval time.Duration
	backlog  BacklogFunc
	clock    clock.Clock
	logger   *zap.Logger
	upgrader websocket.Upgrader
	buffer   int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithClientBuffer sets the per-listener queue length.
func WithClientBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHubClock replaces the wall clock used for message timestamps.
func WithHubClock(clk clock.Clock) HubOption {
	return func(h *Hub) { h.clock = clk }
}

// NewHub creates a hub for one pool.
func NewHub(pool string, interval time.Duration, backlog BacklogFunc, logger *zap.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		pool:     pool,
		interval: interval,
		backlog:  backlog,
		clock:    clock.New(),
		logger:   logger.Named("hub"),
		buffer:   defaultClientBuffer,
		clients:  make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and streams hello, the backlog, then live messages.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// register queues hello and backlog ahead of any live message, then adds c.
// The backlog is read under h.mu, so no candle closed by a concurrent
// Broadcast is missing from both. The queue holds the whole backlog plus
// the live buffer.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}

	now := h.clock.Now()
	initial := []Message{NewHello(h.pool, h.interval, now)}
	if h.backlog != nil {
		for _, candle := range h.backlog() {
			initial = append(initial, NewCandleMessage(candle, now))
		}
	}

	c.send = make(chan []byte, len(initial)+h.buffer)
	for _, m := range initial {
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		c.send <- data
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("Listener connected",
		zap.Int("listeners", len(h.clients)),
		zap.Int("backlog", len(initial)-1))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
		h.logger.Debug("Listener disconnected", zap.Int("listeners", len(h.clients)))
	}
}

// Broadcast queues msg for every listener.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Broadcast marshal error", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			c.close()
			h.logger.Warn("Dropping slow listener", zap.Int("listeners", len(h.clients)))
		}
	}
}

// Listeners returns the number of connected listeners.
func (h *Hub) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every listener and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to notice disconnects and pongs.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
