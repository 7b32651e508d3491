package detector

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpwatch/internal/blockchain/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func txWith(balances []string, keys []string) *rpc.Transaction {
	tx := &rpc.Transaction{Meta: &rpc.TransactionMeta{}}
	for i, m := range balances {
		tx.Meta.PostTokenBalances = append(tx.Meta.PostTokenBalances, rpc.TokenBalance{AccountIndex: i, Mint: m})
	}
	tx.Transaction.Message.AccountKeys = keys
	return tx
}

func TestResolveFromLogsWithoutReader(t *testing.T) {
	r := NewResolver(DefaultConfig(), nil, zaptest.NewLogger(t))

	mint, source, err := r.Resolve(context.Background(), testSig, launchLogs("Program log: mint "+mintA))
	require.NoError(t, err)
	assert.Equal(t, mintA, mint.String())
	assert.Equal(t, SourceLogs, source)
}

func TestResolveSkipsExcludedAndOffCurve(t *testing.T) {
	r := NewResolver(DefaultConfig(), nil, zaptest.NewLogger(t))

	logs := launchLogs(
		"Program log: "+offCurve,
		"Program log: "+solana.SolMint.String(),
		"Program log: "+mintB,
	)
	mint, _, err := r.Resolve(context.Background(), testSig, logs)
	require.NoError(t, err)
	assert.Equal(t, mintB, mint.String())
}

func TestResolveIgnoresNonProgramLogLines(t *testing.T) {
	r := NewResolver(DefaultConfig(), nil, zaptest.NewLogger(t))

	_, _, err := r.Resolve(context.Background(), testSig, launchLogs("Program data: "+mintA))
	assert.ErrorIs(t, err, ErrMintNotFound)
}

func TestResolveTokenBalancesTier(t *testing.T) {
	reader := new(MockChainReader)
	reader.On("GetTransaction", mock.Anything, testSig).
		Return(txWith([]string{solana.SolMint.String(), mintB}, nil), nil)
	reader.On("GetAccountInfo", mock.Anything, solana.MustPublicKeyFromBase58(mintB)).
		Return(mintAccount(), nil)

	r := NewResolver(DefaultConfig(), reader, zaptest.NewLogger(t))
	mint, source, err := r.Resolve(context.Background(), testSig, launchLogs())
	require.NoError(t, err)
	assert.Equal(t, mintB, mint.String())
	assert.Equal(t, SourceTokenBalances, source)
	reader.AssertExpectations(t)
}

func TestResolveFallbackTier(t *testing.T) {
	t.Run("first non-excluded balance mint", func(t *testing.T) {
		reader := new(MockChainReader)
		reader.On("GetTransaction", mock.Anything, testSig).
			Return(txWith([]string{solana.SolMint.String(), plainMint}, nil), nil)
		reader.On("GetAccountInfo", mock.Anything, solana.MustPublicKeyFromBase58(plainMint)).
			Return(mintAccount(), nil)

		r := NewResolver(DefaultConfig(), reader, zaptest.NewLogger(t))
		mint, source, err := r.Resolve(context.Background(), testSig, launchLogs())
		require.NoError(t, err)
		assert.Equal(t, plainMint, mint.String())
		assert.Equal(t, SourceFallback, source)
	})

	t.Run("account keys with suffix", func(t *testing.T) {
		reader := new(MockChainReader)
		reader.On("GetTransaction", mock.Anything, testSig).
			Return(txWith(nil, []string{solana.SystemProgramID.String(), mintA}), nil)
		reader.On("GetAccountInfo", mock.Anything, solana.MustPublicKeyFromBase58(mintA)).
			Return(mintAccount(), nil)

		r := NewResolver(DefaultConfig(), reader, zaptest.NewLogger(t))
		mint, source, err := r.Resolve(context.Background(), testSig, launchLogs())
		require.NoError(t, err)
		assert.Equal(t, mintA, mint.String())
		assert.Equal(t, SourceFallback, source)
	})
}

func TestResolveValidation(t *testing.T) {
	tests := []struct {
		name    string
		account *rpc.AccountResult
	}{
		{name: "missing account", account: missingAccount()},
		{name: "wrong owner", account: account(solana.SystemProgramID, make([]byte, MintAccountSize))},
		{name: "token account size", account: account(solana.TokenProgramID, make([]byte, 165))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := new(MockChainReader)
			reader.On("GetAccountInfo", mock.Anything, solana.MustPublicKeyFromBase58(mintA)).
				Return(tt.account, nil)
			reader.On("GetTransaction", mock.Anything, testSig).
				Return(txWith(nil, nil), nil)

			r := NewResolver(DefaultConfig(), reader, zaptest.NewLogger(t))
			_, _, err := r.Resolve(context.Background(), testSig, launchLogs("Program log: "+mintA))
			assert.ErrorIs(t, err, ErrMintNotFound)
		})
	}
}

func TestResolveCustomSuffixAndExclusions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VanitySuffix = "akQz"
	cfg.ExcludedAddresses = append(cfg.ExcludedAddresses, mintA)

	r := NewResolver(cfg, nil, zaptest.NewLogger(t))
	mint, _, err := r.Resolve(context.Background(), testSig, launchLogs("Program log: "+mintA+" "+plainMint))
	require.NoError(t, err)
	assert.Equal(t, plainMint, mint.String())
}

func TestResolveUnknownTransaction(t *testing.T) {
	reader := new(MockChainReader)
	reader.On("GetTransaction", mock.Anything, testSig).Return(nil, nil)

	r := NewResolver(DefaultConfig(), reader, zaptest.NewLogger(t))
	_, _, err := r.Resolve(context.Background(), testSig, launchLogs())
	assert.ErrorIs(t, err, ErrMintNotFound)
}
