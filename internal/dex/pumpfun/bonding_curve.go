// ==============================================
// File: internal/dex/pumpfun/bonding_curve.go
// ==============================================
package pumpfun

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ErrTooShort is returned when an account buffer cannot hold the curve layout.
var ErrTooShort = errors.New("bonding curve data too short")

const programDataMarker = "Program data:"

// DeriveBondingCurveAddress returns the curve PDA for the given mint.
func DeriveBondingCurveAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(BondingCurveSeed), mint.Bytes()},
		PumpFunProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive bonding curve: %w", err)
	}
	return addr, nil
}

// DecodeAccountLayout parses raw curve account data.
//
// Layout after the 8-byte discriminator: five little-endian u64
// (virtual token, virtual SOL, real token, real SOL, total supply)
// followed by the completion flag byte.
func DecodeAccountLayout(data []byte) (BondingCurve, error) {
	if len(data) < MinAccountSize {
		return BondingCurve{}, fmt.Errorf("%w: %d bytes", ErrTooShort, len(data))
	}

	dec := bin.NewBinDecoder(data)
	if err := dec.SkipBytes(DiscriminatorSize); err != nil {
		return BondingCurve{}, err
	}

	var (
		bc  BondingCurve
		err error
	)
	fields := []*uint64{
		&bc.VirtualTokenReserves,
		&bc.VirtualSolReserves,
		&bc.RealTokenReserves,
		&bc.RealSolReserves,
		&bc.TokenTotalSupply,
	}
	for _, f := range fields {
		if *f, err = dec.ReadUint64(bin.LE); err != nil {
			return BondingCurve{}, fmt.Errorf("failed to read reserve: %w", err)
		}
	}
	if bc.Complete, err = dec.ReadBool(); err != nil {
		return BondingCurve{}, fmt.Errorf("failed to read complete flag: %w", err)
	}

	return bc, nil
}

// DecodeLogSnapshot applies the account layout to the base64 payload of a
// "Program data:" log line. It returns nil when the line carries no usable payload.
func DecodeLogSnapshot(line string) *BondingCurve {
	idx := strings.Index(line, programDataMarker)
	if idx < 0 {
		return nil
	}

	payload := strings.Fields(line[idx+len(programDataMarker):])
	if len(payload) == 0 {
		return nil
	}

	raw, err := base64.StdEncoding.DecodeString(payload[0])
	if err != nil {
		return nil
	}

	bc, err := DecodeAccountLayout(raw)
	if err != nil {
		return nil
	}
	return &bc
}

// FirstLogSnapshot scans a transaction's logs and returns the first decodable snapshot.
func FirstLogSnapshot(logs []string) *BondingCurve {
	for _, line := range logs {
		if bc := DecodeLogSnapshot(line); bc != nil {
			return bc
		}
	}
	return nil
}
