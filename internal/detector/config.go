package detector

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
)

const (
	DefaultVanitySuffix      = "pump"
	DefaultCurvePollAttempts = 8
	DefaultCurvePollDelay    = 250 * time.Millisecond

	// MintAccountSize is the exact length of an SPL Token mint account.
	MintAccountSize = 82
)

// WrappedSOL is the native mint; it appears in almost every swap balance list.
var WrappedSOL = solana.SolMint

// DefaultExcludedAddresses are program and sysvar ids that look like candidates.
var DefaultExcludedAddresses = []string{
	WrappedSOL.String(),
	solana.SystemProgramID.String(),
	solana.TokenProgramID.String(),
	solana.SPLAssociatedTokenAccountProgramID.String(),
	solana.SysVarRentPubkey.String(),
	"ComputeBudget111111111111111111111111111111",
	"metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s",
	pumpfun.PumpFunProgramID.String(),
	pumpfun.PumpFunEventAuth.String(),
}

// Config tunes launch detection and mint resolution.
type Config struct {
	// VanitySuffix is the ending the launch platform grinds into mint addresses.
	VanitySuffix string
	// ExcludedAddresses are never accepted as a mint.
	ExcludedAddresses []string
	// CurvePollAttempts caps bonding-curve existence checks per launch.
	CurvePollAttempts uint
	// CurvePollDelay is the first poll delay; it grows by half on each attempt.
	CurvePollDelay time.Duration
	// ValidateMint checks candidates on chain before accepting them.
	ValidateMint bool
	// FollowLaunches keeps detecting after the first launch instead of tracking one mint.
	FollowLaunches bool
}

// DefaultConfig returns the settings used for the pump.fun program.
func DefaultConfig() Config {
	return Config{
		VanitySuffix:      DefaultVanitySuffix,
		ExcludedAddresses: append([]string(nil), DefaultExcludedAddresses...),
		CurvePollAttempts: DefaultCurvePollAttempts,
		CurvePollDelay:    DefaultCurvePollDelay,
		ValidateMint:      true,
	}
}

func (c Config) withDefaults() Config {
	if c.CurvePollAttempts == 0 {
		c.CurvePollAttempts = DefaultCurvePollAttempts
	}
	if c.CurvePollDelay <= 0 {
		c.CurvePollDelay = DefaultCurvePollDelay
	}
	return c
}
