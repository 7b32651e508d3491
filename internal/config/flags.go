// internal/config/flags.go
package config

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/pflag"
)

const (
	ModeMonitor = "monitor"
	ModeSnipe   = "snipe"
)

// Flags are the command line options.
type Flags struct {
	ConfigPath string
	EnvFile    string
	Mode       string
	// Mint skips detection and monitors this mint.
	Mint     string
	Backfill bool
}

// ParseFlags parses args (without the program name).
func ParseFlags(name string, args []string) (Flags, error) {
	var f Flags

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVarP(&f.ConfigPath, "config", "c", "configs/config.yaml", "path to the config file (yaml or json)")
	fs.StringVar(&f.EnvFile, "env-file", "", "dotenv file loaded before environment overrides (default ./.env if present)")
	fs.StringVarP(&f.Mode, "mode", "m", ModeMonitor, "run mode: monitor or snipe")
	fs.StringVar(&f.Mint, "mint", "", "monitor a known mint instead of detecting launches")
	fs.BoolVar(&f.Backfill, "backfill", false, "scan detector.backfill.addresses history before watching")

	if err := fs.Parse(args); err != nil {
		return f, err
	}

	switch f.Mode {
	case ModeMonitor, ModeSnipe:
	default:
		return f, fmt.Errorf("unknown mode %q (want %s or %s)", f.Mode, ModeMonitor, ModeSnipe)
	}

	if f.Mint != "" {
		if _, err := solana.PublicKeyFromBase58(f.Mint); err != nil {
			return f, fmt.Errorf("invalid --mint %q: %w", f.Mint, err)
		}
	}
	return f, nil
}
