package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// rpcServer answers every request with handler's status and body.
func rpcServer(t *testing.T, handler func(n int32, req request) (int, string)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := handler(calls.Add(1), req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func fastRetry() Option {
	return WithRetry(DefaultMaxRetries, time.Millisecond, 5*time.Millisecond)
}

func TestClientRequestSuccess(t *testing.T) {
	srv, calls := rpcServer(t, func(_ int32, req request) (int, string) {
		assert.Equal(t, "2.0", req.JSONRPC)
		assert.Equal(t, "getSlot", req.Method)
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":12345}`
	})

	client, err := NewClient([]string{srv.URL}, zaptest.NewLogger(t), fastRetry())
	require.NoError(t, err)

	var slot uint64
	require.NoError(t, client.Call(context.Background(), "getSlot", nil, &slot))
	assert.Equal(t, uint64(12345), slot)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientRetriesThrottling(t *testing.T) {
	srv, calls := rpcServer(t, func(n int32, _ request) (int, string) {
		switch n {
		case 1:
			return http.StatusTooManyRequests, "slow down"
		case 2:
			return http.StatusForbidden, "nope"
		default:
			return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"ok"}`
		}
	})

	client, err := NewClient([]string{srv.URL}, zaptest.NewLogger(t), fastRetry())
	require.NoError(t, err)

	raw, err := client.Request(context.Background(), "getHealth", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(raw))
	assert.Equal(t, int32(3), calls.Load())

	stats := client.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(3), stats[0].Requests)
	assert.Equal(t, uint64(2), stats[0].Failures)
}

func TestClientRetriesExhausted(t *testing.T) {
	srv, calls := rpcServer(t, func(int32, request) (int, string) {
		return http.StatusTooManyRequests, ""
	})

	client, err := NewClient([]string{srv.URL}, zaptest.NewLogger(t), fastRetry())
	require.NoError(t, err)

	_, err = client.Request(context.Background(), "getHealth", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrRateLimit)
	assert.Equal(t, int32(DefaultMaxRetries), calls.Load())

	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, srv.URL, rpcErr.Endpoint)
	assert.Equal(t, "getHealth", rpcErr.Method)
}

func TestClientDoesNotRetryRPCErrors(t *testing.T) {
	srv, calls := rpcServer(t, func(int32, request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params"}}`
	})

	client, err := NewClient([]string{srv.URL}, zaptest.NewLogger(t), fastRetry())
	require.NoError(t, err)

	_, err = client.Request(context.Background(), "getAccountInfo", nil)
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, -32602, respErr.Code)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientRotatesEndpoints(t *testing.T) {
	ok := func(int32, request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":null}`
	}
	a, aCalls := rpcServer(t, ok)
	b, bCalls := rpcServer(t, ok)

	client, err := NewClient([]string{a.URL, b.URL}, zaptest.NewLogger(t), fastRetry())
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := client.Request(context.Background(), "getSlot", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), aCalls.Load())
	assert.Equal(t, int32(2), bCalls.Load())

	fixed, err := NewClient([]string{a.URL, b.URL}, zaptest.NewLogger(t), fastRetry(), WithRotation(false))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := fixed.Request(context.Background(), "getSlot", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(5), aCalls.Load())
	assert.Equal(t, int32(2), bCalls.Load())
}

func TestClientFailsOverToHealthyEndpoint(t *testing.T) {
	bad, badCalls := rpcServer(t, func(int32, request) (int, string) {
		return http.StatusServiceUnavailable, ""
	})
	good, _ := rpcServer(t, func(int32, request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":1}`
	})

	client, err := NewClient([]string{bad.URL, good.URL}, zaptest.NewLogger(t), fastRetry())
	require.NoError(t, err)

	_, err = client.Request(context.Background(), "getSlot", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), badCalls.Load())
}

func TestGetAccountInfo(t *testing.T) {
	owner := solana.TokenProgramID.String()
	srv, _ := rpcServer(t, func(_ int32, req request) (int, string) {
		assert.Equal(t, "getAccountInfo", req.Method)
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":7},"value":{"lamports":1461600,"owner":"` +
			owner + `","data":["AQID","base64"],"executable":false,"space":3}}}`
	})

	client, err := NewClient([]string{srv.URL}, zaptest.NewLogger(t), fastRetry())
	require.NoError(t, err)

	res, err := client.GetAccountInfo(context.Background(), solana.SystemProgramID)
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.Equal(t, uint64(7), res.Context.Slot)

	data, err := res.Value.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	ownerKey, err := res.Value.OwnerKey()
	require.NoError(t, err)
	assert.True(t, ownerKey.Equals(solana.TokenProgramID))
}

func TestGetTransactionNotFound(t *testing.T) {
	srv, _ := rpcServer(t, func(int32, request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":null}`
	})

	client, err := NewClient([]string{srv.URL}, zaptest.NewLogger(t), fastRetry())
	require.NoError(t, err)

	tx, err := client.GetTransaction(context.Background(), "sig")
	require.NoError(t, err)
	assert.Nil(t, tx)
}
