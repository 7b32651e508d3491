// Package pumpfun decodes Pump.fun bonding-curve state.
//
// The package is pure: no RPC, no logging. It provides
//   - DeriveBondingCurveAddress: the curve PDA for a mint.
//   - DecodeAccountLayout: the authoritative account layout.
//   - DecodeLogSnapshot: a best-effort snapshot from a "Program data:" log line.
//   - ComputePrice, BuyQuote, SellQuote: spot price and constant-product quotes.
//
// Usage example:
//
//	curve, err := pumpfun.DeriveBondingCurveAddress(mint)
//	if err != nil {
//	    return err
//	}
//	info, err := client.GetAccountInfo(ctx, curve) // *rpc.Client from internal/blockchain/rpc
//	if err != nil {
//	    return err
//	}
//	data, err := info.Value.Bytes()
//	if err != nil {
//	    return err
//	}
//	snapshot, err := pumpfun.DecodeAccountLayout(data)
//	if err != nil {
//	    return err
//	}
//	price, ok := pumpfun.ComputePrice(snapshot, pumpfun.TokenDecimals)
package pumpfun
