// internal/blockchain/rpc/ws.go
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = 2 * time.Second

	wsHandshakeTimeout = 10 * time.Second
	wsConfirmTimeout   = 30 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsPingInterval     = 30 * time.Second
	wsReadTimeout      = 90 * time.Second
	wsBufferSize       = 1024
)

// WSConfig configures subscription connections.
type WSConfig struct {
	// ReconnectAttempts caps attempts per disconnection; the counter resets after a successful resubscribe.
	ReconnectAttempts uint
	// ReconnectDelay is the fixed pause between attempts.
	ReconnectDelay time.Duration
}

// WSClient opens one WebSocket connection per subscription.
type WSClient struct {
	urls   []string
	config WSConfig
	dialer websocket.Dialer
	logger *zap.Logger

	next      atomic.Uint64
	requestID atomic.Uint64
}

// NewWSClient creates a WebSocket JSON-RPC client. Reconnects fail over to the next URL.
func NewWSClient(urls []string, cfg WSConfig, logger *zap.Logger) (*WSClient, error) {
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}
	if cfg.ReconnectAttempts == 0 {
		cfg.ReconnectAttempts = DefaultReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}

	return &WSClient{
		urls:   urls,
		config: cfg,
		dialer: websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout},
		logger: logger.Named("ws"),
	}, nil
}

// Subscription is one live JSON-RPC subscription.
// Notifications arrive on C in delivery order; C is closed when the
// subscription ends, after which Err reports why.
type Subscription struct {
	C <-chan json.RawMessage

	client *WSClient
	method string
	params []interface{}
	out    chan json.RawMessage
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	subID  uint64
	err    error
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex
}

// Subscribe dials an endpoint, sends method(params) and waits for the subscription id.
// The returned subscription reconnects on its own until attempts are exhausted.
func (c *WSClient) Subscribe(ctx context.Context, method string, params []interface{}) (*Subscription, error) {
	out := make(chan json.RawMessage, wsBufferSize)
	runCtx, cancel := context.WithCancel(ctx)

	s := &Subscription{
		C:      out,
		client: c,
		method: method,
		params: params,
		out:    out,
		logger: c.logger.With(zap.String("method", method)),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if err := s.connect(runCtx); err != nil {
		cancel()
		return nil, err
	}

	go s.run(runCtx)
	return s, nil
}

// LogsSubscribe subscribes to logs mentioning the given address.
func (c *WSClient) LogsSubscribe(ctx context.Context, mention string) (*Subscription, error) {
	return c.Subscribe(ctx, "logsSubscribe", []interface{}{
		map[string]interface{}{"mentions": []string{mention}},
		map[string]string{"commitment": Commitment},
	})
}

// AccountSubscribe subscribes to base64 account updates.
func (c *WSClient) AccountSubscribe(ctx context.Context, account string) (*Subscription, error) {
	return c.Subscribe(ctx, "accountSubscribe", []interface{}{
		account,
		map[string]string{"encoding": "base64", "commitment": Commitment},
	})
}

// Stream is the consumer view of a subscription.
type Stream interface {
	Notifications() <-chan json.RawMessage
	Err() error
	Close()
}

// Logs is LogsSubscribe behind the Stream interface.
func (c *WSClient) Logs(ctx context.Context, mention string) (Stream, error) {
	sub, err := c.LogsSubscribe(ctx, mention)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Account is AccountSubscribe behind the Stream interface.
func (c *WSClient) Account(ctx context.Context, account string) (Stream, error) {
	sub, err := c.AccountSubscribe(ctx, account)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *WSClient) nextURL() string {
	n := c.next.Add(1) - 1
	return c.urls[n%uint64(len(c.urls))]
}

// Notifications returns C.
func (s *Subscription) Notifications() <-chan json.RawMessage {
	return s.C
}

// Err returns the terminal error once C is closed. Nil after Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close unsubscribes (best effort) and closes the connection.
func (s *Subscription) Close() {
	s.mu.Lock()
	conn, subID := s.conn, s.subID
	s.mu.Unlock()

	if conn != nil {
		unsub := strings.Replace(s.method, "Subscribe", "Unsubscribe", 1)
		_ = s.write(conn, request{
			JSONRPC: "2.0",
			ID:      s.client.requestID.Add(1),
			Method:  unsub,
			Params:  []interface{}{subID},
		})
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
	}

	s.cancel()
	<-s.done
}

// connect dials the next endpoint and performs the subscribe handshake.
func (s *Subscription) connect(ctx context.Context) error {
	url := s.client.nextURL()

	conn, _, err := s.client.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return NewError(fmt.Errorf("%w: %v", ErrConnectionFailed, err), url, s.method)
	}

	reqID := s.client.requestID.Add(1)
	if err := s.write(conn, request{JSONRPC: "2.0", ID: reqID, Method: s.method, Params: s.params}); err != nil {
		conn.Close()
		return NewError(fmt.Errorf("%w: %v", ErrConnectionFailed, err), url, s.method)
	}

	subID, err := awaitConfirmation(conn, reqID)
	if err != nil {
		conn.Close()
		return NewError(err, url, s.method)
	}

	s.mu.Lock()
	s.conn = conn
	s.subID = subID
	s.mu.Unlock()

	s.logger.Info("Subscribed",
		zap.String("endpoint", url),
		zap.Uint64("subscription", subID))
	return nil
}

func awaitConfirmation(conn *websocket.Conn, reqID uint64) (uint64, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsConfirmTimeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		var msg response
		if err := conn.ReadJSON(&msg); err != nil {
			return 0, fmt.Errorf("%w: awaiting subscription: %v", ErrConnectionFailed, err)
		}
		if msg.ID == nil || *msg.ID != reqID {
			continue
		}
		if msg.Error != nil {
			return 0, msg.Error
		}

		var subID uint64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return 0, fmt.Errorf("%w: subscription id: %v", ErrInvalidResponse, err)
		}
		return subID, nil
	}
}

func (s *Subscription) write(conn *websocket.Conn, v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

// run pumps notifications and supervises reconnects.
func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)

	for {
		err := s.readLoop(ctx)
		s.closeConn()

		if ctx.Err() != nil {
			return
		}

		s.logger.Warn("Subscription connection lost, reconnecting",
			zap.Error(err),
			zap.Uint("max_attempts", s.client.config.ReconnectAttempts),
			zap.Duration("delay", s.client.config.ReconnectDelay))

		if err := s.reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.mu.Lock()
			s.err = fmt.Errorf("%w: %v", ErrSubscriptionFailed, err)
			s.mu.Unlock()
			s.logger.Error("Subscription failed permanently", zap.Error(err))
			return
		}
	}
}

func (s *Subscription) reconnect(ctx context.Context) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := s.connect(ctx); err != nil {
			s.logger.Warn("Reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.client.config.ReconnectDelay)),
		backoff.WithMaxTries(s.client.config.ReconnectAttempts),
	)
	return err
}

func (s *Subscription) readLoop(ctx context.Context) error {
	s.mu.Lock()
	conn, subID := s.conn, s.subID
	s.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.pingLoop(conn, pingDone)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var msg response
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("Skipping malformed message", zap.Error(err))
			continue
		}
		if msg.Params == nil || msg.Params.Subscription != subID {
			continue
		}

		select {
		case s.out <- msg.Params.Result:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Subscription) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
			s.writeMu.Unlock()
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				s.logger.Debug("Ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Subscription) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
