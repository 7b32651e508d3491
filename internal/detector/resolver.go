package detector

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/rovshanmuradov/pumpwatch/internal/blockchain/rpc"
	"go.uber.org/zap"
)

// Resolution tiers, reported in LaunchEvent.Source.
const (
	SourceLogs          = "logs"
	SourceTokenBalances = "token_balances"
	SourceFallback      = "fallback"
)

var (
	ErrMintNotFound = errors.New("mint not resolved")
	ErrInvalidMint  = errors.New("candidate is not a token mint")
)

var base58Token = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{32,44}`)

// ChainReader is the subset of the RPC client the detector reads through.
type ChainReader interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.AccountResult, error)
	GetTransaction(ctx context.Context, signature string) (*rpc.Transaction, error)
}

// Resolver finds the mint created by a launch transaction.
type Resolver struct {
	reader   ChainReader
	suffix   string
	excluded map[string]struct{}
	validate bool
	logger   *zap.Logger
}

// NewResolver creates a resolver. reader may be nil, which disables the
// transaction refetch tiers and on-chain validation.
func NewResolver(cfg Config, reader ChainReader, logger *zap.Logger) *Resolver {
	excluded := make(map[string]struct{}, len(cfg.ExcludedAddresses)+1)
	for _, a := range cfg.ExcludedAddresses {
		excluded[a] = struct{}{}
	}
	excluded[WrappedSOL.String()] = struct{}{}

	return &Resolver{
		reader:   reader,
		suffix:   cfg.VanitySuffix,
		excluded: excluded,
		validate: cfg.ValidateMint && reader != nil,
		logger:   logger.Named("resolver"),
	}
}

// Resolve runs the tiers in order and returns the first valid mint with the tier name.
func (r *Resolver) Resolve(ctx context.Context, signature string, logs []string) (solana.PublicKey, string, error) {
	if mint, ok := r.firstValid(ctx, r.fromLogs(logs)); ok {
		return mint, SourceLogs, nil
	}

	if r.reader == nil {
		return solana.PublicKey{}, "", ErrMintNotFound
	}

	tx, err := r.reader.GetTransaction(ctx, signature)
	if err != nil {
		return solana.PublicKey{}, "", fmt.Errorf("fetch transaction %s: %w", signature, err)
	}
	if tx == nil || tx.Meta == nil {
		return solana.PublicKey{}, "", ErrMintNotFound
	}

	if mint, ok := r.firstValid(ctx, r.fromBalances(tx, true)); ok {
		return mint, SourceTokenBalances, nil
	}

	fallback := append(r.fromBalances(tx, false), r.fromAccountKeys(tx)...)
	if mint, ok := r.firstValid(ctx, fallback); ok {
		return mint, SourceFallback, nil
	}

	return solana.PublicKey{}, "", ErrMintNotFound
}

// fromLogs scans "Program log:" lines for suffixed base58 tokens.
func (r *Resolver) fromLogs(logs []string) []string {
	var out []string
	for _, line := range logs {
		if !strings.HasPrefix(line, "Program log:") {
			continue
		}
		for _, tok := range base58Token.FindAllString(line, -1) {
			if r.hasSuffix(tok) && !r.isExcluded(tok) {
				out = append(out, tok)
			}
		}
	}
	return out
}

func (r *Resolver) fromBalances(tx *rpc.Transaction, requireSuffix bool) []string {
	var out []string
	for _, b := range tx.Meta.PostTokenBalances {
		if r.isExcluded(b.Mint) {
			continue
		}
		if requireSuffix && !r.hasSuffix(b.Mint) {
			continue
		}
		out = append(out, b.Mint)
	}
	return out
}

func (r *Resolver) fromAccountKeys(tx *rpc.Transaction) []string {
	var out []string
	for _, k := range tx.Transaction.Message.AccountKeys {
		if r.hasSuffix(k) && !r.isExcluded(k) {
			out = append(out, k)
		}
	}
	return out
}

func (r *Resolver) firstValid(ctx context.Context, candidates []string) (solana.PublicKey, bool) {
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}

		mint, err := r.check(ctx, c)
		if err != nil {
			r.logger.Debug("Candidate rejected", zap.String("candidate", c), zap.Error(err))
			continue
		}
		return mint, true
	}
	return solana.PublicKey{}, false
}

// check verifies the shape of a candidate and, when enabled, that it is a live mint account.
func (r *Resolver) check(ctx context.Context, candidate string) (solana.PublicKey, error) {
	raw, err := base58.Decode(candidate)
	if err != nil || len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("%w: not a 32-byte key", ErrInvalidMint)
	}
	// Mints are keypair addresses; program-derived addresses sit off the curve.
	if !isOnCurve(raw) {
		return solana.PublicKey{}, fmt.Errorf("%w: off-curve address", ErrInvalidMint)
	}
	mint := solana.PublicKeyFromBytes(raw)

	if !r.validate {
		return mint, nil
	}

	acc, err := r.reader.GetAccountInfo(ctx, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if acc == nil || acc.Value == nil {
		return solana.PublicKey{}, fmt.Errorf("%w: account does not exist", ErrInvalidMint)
	}
	if owner, err := acc.Value.OwnerKey(); err != nil || !owner.Equals(solana.TokenProgramID) {
		return solana.PublicKey{}, fmt.Errorf("%w: owner %s", ErrInvalidMint, acc.Value.Owner)
	}
	data, err := acc.Value.Bytes()
	if err != nil {
		return solana.PublicKey{}, err
	}
	if len(data) != MintAccountSize {
		return solana.PublicKey{}, fmt.Errorf("%w: size %d", ErrInvalidMint, len(data))
	}
	return mint, nil
}

func (r *Resolver) hasSuffix(addr string) bool {
	return r.suffix == "" || strings.HasSuffix(addr, r.suffix)
}

func (r *Resolver) isExcluded(addr string) bool {
	_, ok := r.excluded[addr]
	return ok
}

func isOnCurve(point []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
