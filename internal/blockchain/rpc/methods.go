// internal/blockchain/rpc/methods.go
package rpc

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Commitment used for reads; launches are acted on at "confirmed".
const Commitment = "confirmed"

// GetAccountInfo fetches an account with base64 data. A missing account yields a nil Value.
func (c *Client) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*AccountResult, error) {
	params := []interface{}{
		account.String(),
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": Commitment,
		},
	}

	var result AccountResult
	if err := c.Call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTransaction fetches a confirmed transaction. It returns nil, nil when the
// node does not know the signature yet.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     Commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result *Transaction
	if err := c.Call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetSignaturesForAddress returns up to limit signatures older than before (empty for newest).
func (c *Client) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, before string, limit int) ([]SignatureInfo, error) {
	opts := map[string]interface{}{
		"commitment": Commitment,
		"limit":      limit,
	}
	if before != "" {
		opts["before"] = before
	}

	var result []SignatureInfo
	if err := c.Call(ctx, "getSignaturesForAddress", []interface{}{address.String(), opts}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Bytes decodes the base64 account payload.
func (a *AccountValue) Bytes() ([]byte, error) {
	if len(a.Data) == 0 {
		return nil, nil
	}
	if len(a.Data) > 1 && a.Data[1] != "base64" {
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrInvalidResponse, a.Data[1])
	}
	raw, err := base64.StdEncoding.DecodeString(a.Data[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return raw, nil
}

// OwnerKey parses the owner program id.
func (a *AccountValue) OwnerKey() (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(a.Owner)
}
