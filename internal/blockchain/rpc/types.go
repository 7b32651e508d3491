// internal/blockchain/rpc/types.go
package rpc

import (
	"encoding/json"
	"time"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultMaxRetries     = 6
	DefaultInitialBackoff = 300 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
)

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// response is a JSON-RPC 2.0 response or notification.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  *notification   `json:"params,omitempty"`
}

type notification struct {
	Subscription uint64          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// Context is the slot context attached to many results.
type Context struct {
	Slot uint64 `json:"slot"`
}

// LogsResult is the value of a logsNotification.
type LogsResult struct {
	Context Context `json:"context"`
	Value   struct {
		Signature string      `json:"signature"`
		Err       interface{} `json:"err"`
		Logs      []string    `json:"logs"`
	} `json:"value"`
}

// AccountResult is the value of an accountNotification or getAccountInfo.
type AccountResult struct {
	Context Context       `json:"context"`
	Value   *AccountValue `json:"value"`
}

// AccountValue mirrors the base64-encoded account object.
type AccountValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
	Space      uint64   `json:"space"`
}

// TokenBalance is one entry of pre/postTokenBalances.
type TokenBalance struct {
	AccountIndex int    `json:"accountIndex"`
	Mint         string `json:"mint"`
	Owner        string `json:"owner,omitempty"`
}

// TransactionMeta holds the meta fields the detector reads.
type TransactionMeta struct {
	Err               interface{}    `json:"err"`
	LogMessages       []string       `json:"logMessages"`
	PreTokenBalances  []TokenBalance `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance `json:"postTokenBalances"`
}

// Transaction is the json-encoded getTransaction result.
type Transaction struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Meta        *TransactionMeta `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

// SignatureInfo is one entry of getSignaturesForAddress.
type SignatureInfo struct {
	Signature string      `json:"signature"`
	Slot      uint64      `json:"slot"`
	Err       interface{} `json:"err"`
	BlockTime *int64      `json:"blockTime"`
}
