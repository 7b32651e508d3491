package detector

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpwatch/internal/blockchain/rpc"
	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"github.com/stretchr/testify/mock"
)

// On-curve addresses ending in the vanity suffix, and one off-curve
// address that also ends in it and so cannot be a mint.
const (
	mintA      = "4cp4PvR1G4zQY1WeZSuNT7mi7kyq8cEiYMY5KvnGpump"
	mintB      = "GXbLcA951YJLzQdYeofHpLwAPYtS5soVsgCBCixBpump"
	offCurve   = "9AjKVWE78gfEJSeb69Jn7MaXvinB7Ada82T8wgURpump"
	plainMint  = "F9iN1MS5oDrXKZ9AJXK38zSVeMDTvevK9ZG3MMhjakQz"
	testSig    = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
	programLog = "Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P invoke [1]"
)

func launchLogs(extra ...string) []string {
	logs := []string{
		programLog,
		"Program log: Instruction: Create",
		"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [2]",
		"Program log: Instruction: MintTo",
		"Program log: Instruction: Buy",
	}
	return append(logs, extra...)
}

type MockChainReader struct {
	mock.Mock
}

func (m *MockChainReader) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.AccountResult, error) {
	args := m.Called(ctx, account)
	res, _ := args.Get(0).(*rpc.AccountResult)
	return res, args.Error(1)
}

func (m *MockChainReader) GetTransaction(ctx context.Context, signature string) (*rpc.Transaction, error) {
	args := m.Called(ctx, signature)
	tx, _ := args.Get(0).(*rpc.Transaction)
	return tx, args.Error(1)
}

func (m *MockChainReader) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, before string, limit int) ([]rpc.SignatureInfo, error) {
	args := m.Called(ctx, address, before, limit)
	sigs, _ := args.Get(0).([]rpc.SignatureInfo)
	return sigs, args.Error(1)
}

func account(owner solana.PublicKey, data []byte) *rpc.AccountResult {
	return &rpc.AccountResult{Value: &rpc.AccountValue{
		Owner: owner.String(),
		Data:  []string{base64.StdEncoding.EncodeToString(data), "base64"},
	}}
}

func mintAccount() *rpc.AccountResult {
	return account(solana.TokenProgramID, make([]byte, MintAccountSize))
}

func missingAccount() *rpc.AccountResult {
	return &rpc.AccountResult{}
}

func curveAccount(bc pumpfun.BondingCurve) *rpc.AccountResult {
	data := make([]byte, 150)
	binary.LittleEndian.PutUint64(data[8:], bc.VirtualTokenReserves)
	binary.LittleEndian.PutUint64(data[16:], bc.VirtualSolReserves)
	binary.LittleEndian.PutUint64(data[24:], bc.RealTokenReserves)
	binary.LittleEndian.PutUint64(data[32:], bc.RealSolReserves)
	binary.LittleEndian.PutUint64(data[40:], bc.TokenTotalSupply)
	if bc.Complete {
		data[48] = 1
	}
	return account(pumpfun.PumpFunProgramID, data)
}

var freshCurve = pumpfun.BondingCurve{
	VirtualTokenReserves: 1_073_000_000_000_000,
	VirtualSolReserves:   30_000_000_000,
	RealTokenReserves:    793_100_000_000_000,
	TokenTotalSupply:     1_000_000_000_000_000,
}

func curveOf(t interface{ Fatalf(string, ...interface{}) }, mint string) solana.PublicKey {
	curve, err := pumpfun.DeriveBondingCurveAddress(solana.MustPublicKeyFromBase58(mint))
	if err != nil {
		t.Fatalf("derive curve: %v", err)
	}
	return curve
}

// fakeStream is an in-memory rpc.Stream.
type fakeStream struct {
	ch     chan json.RawMessage
	err    error
	closed chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan json.RawMessage, 16), closed: make(chan struct{})}
}

func (s *fakeStream) Notifications() <-chan json.RawMessage { return s.ch }
func (s *fakeStream) Err() error                            { return s.err }
func (s *fakeStream) Close() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}

func (s *fakeStream) push(signature string, logs []string) {
	var res rpc.LogsResult
	res.Context.Slot = 1
	res.Value.Signature = signature
	res.Value.Logs = logs
	raw, _ := json.Marshal(res)
	s.ch <- raw
}

type fakeSubscriber struct {
	stream *fakeStream
	err    error
}

func (f *fakeSubscriber) Logs(context.Context, string) (rpc.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}
