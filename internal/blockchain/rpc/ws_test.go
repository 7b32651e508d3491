package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// wsServer confirms every subscribe with subID and pushes notifications for it.
// After pushing, a connection either stays open or is dropped.
func wsServer(t *testing.T, subID uint64, notifications []string, drop bool, maxConns int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n := conns.Add(1); maxConns > 0 && n > maxConns {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": subID})

		for _, n := range notifications {
			msg := fmt.Sprintf(`{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":%d,"result":%s}}`, subID, n)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// A notification for a foreign subscription must be ignored.
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":999,"result":{}}}`))

		if drop {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscriptionDeliversInOrder(t *testing.T) {
	srv, _ := wsServer(t, 42, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, false, 0)

	client, err := NewWSClient([]string{wsURL(srv)}, WSConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	sub, err := client.LogsSubscribe(context.Background(), "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	require.NoError(t, err)
	defer sub.Close()

	for want := 1; want <= 3; want++ {
		select {
		case raw := <-sub.C:
			var got struct{ N int }
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, want, got.N)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for notification %d", want)
		}
	}
}

func TestSubscriptionReconnects(t *testing.T) {
	srv, conns := wsServer(t, 7, []string{`{"n":1}`}, true, 0)

	client, err := NewWSClient([]string{wsURL(srv)}, WSConfig{ReconnectAttempts: 3, ReconnectDelay: 10 * time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, err)

	sub, err := client.LogsSubscribe(context.Background(), "x")
	require.NoError(t, err)
	defer sub.Close()

	// Each connection yields one notification before dropping.
	for i := 0; i < 3; i++ {
		select {
		case <-sub.C:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for notification %d", i)
		}
	}
	assert.GreaterOrEqual(t, conns.Load(), int32(3))
	assert.NoError(t, sub.Err())
}

func TestSubscriptionFailsAfterAttempts(t *testing.T) {
	srv, conns := wsServer(t, 7, nil, true, 1)

	client, err := NewWSClient([]string{wsURL(srv)}, WSConfig{ReconnectAttempts: 2, ReconnectDelay: 10 * time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, err)

	sub, err := client.AccountSubscribe(context.Background(), "x")
	require.NoError(t, err)

	select {
	case <-sub.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("subscription did not give up")
	}

	_, open := <-sub.C
	assert.False(t, open)
	assert.ErrorIs(t, sub.Err(), ErrSubscriptionFailed)
	assert.Equal(t, int32(3), conns.Load(), "one dial plus two reconnect attempts")
}

func TestSubscribeNoServer(t *testing.T) {
	client, err := NewWSClient([]string{"ws://127.0.0.1:1"}, WSConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = client.LogsSubscribe(context.Background(), "x")
	assert.ErrorIs(t, err, ErrConnectionFailed)

	_, err = NewWSClient(nil, WSConfig{}, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrNoEndpoints)
}
