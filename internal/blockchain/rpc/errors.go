// internal/blockchain/rpc/errors.go
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrNoEndpoints возникает, когда пул пуст
	ErrNoEndpoints = errors.New("no RPC endpoints configured")

	// ErrRateLimit возникает при HTTP 429 или JSON-RPC ошибке лимита
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrForbidden возникает при HTTP 403
	ErrForbidden = errors.New("request forbidden by endpoint")

	// ErrUnavailable возникает при 5xx ответах
	ErrUnavailable = errors.New("endpoint unavailable")

	// ErrTimeout возникает при превышении времени ожидания
	ErrTimeout = errors.New("request timeout")

	// ErrInvalidResponse возникает при получении некорректного ответа
	ErrInvalidResponse = errors.New("invalid RPC response")

	// ErrConnectionFailed возникает при ошибке подключения
	ErrConnectionFailed = errors.New("connection failed")

	// ErrRetriesExhausted оборачивает последнюю ошибку после всех попыток
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrSubscriptionFailed означает, что подписка исчерпала попытки переподключения
	ErrSubscriptionFailed = errors.New("subscription permanently failed")
)

// Error представляет ошибку RPC с дополнительным контекстом
type Error struct {
	Err      error
	Endpoint string
	Method   string
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.Endpoint, e.Err)
}

// Unwrap возвращает оригинальную ошибку
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError создает новую ошибку RPC
func NewError(err error, endpoint, method string) error {
	return &Error{
		Err:      err,
		Endpoint: endpoint,
		Method:   method,
	}
}

// ResponseError is the JSON-RPC 2.0 error object.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Is maps provider-specific throttling codes onto ErrRateLimit.
func (e *ResponseError) Is(target error) bool {
	return target == ErrRateLimit && (e.Code == 429 || e.Code == -32429)
}

// IsRetryable определяет, можно ли повторить операцию при данной ошибке
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrRateLimit),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrConnectionFailed):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Проверяем текст ошибки для общих сетевых проблем
	errStr := err.Error()
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF")
}
