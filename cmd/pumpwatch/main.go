// ====================================
// File: cmd/pumpwatch/main.go
// ====================================
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/app"
	"github.com/rovshanmuradov/pumpwatch/internal/config"
	"github.com/rovshanmuradov/pumpwatch/internal/logger"
)

func main() {
	flags, err := config.ParseFlags(os.Args[0], os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Конфиг по умолчанию необязателен: всё можно задать через окружение
	configPath := flags.ConfigPath
	if _, statErr := os.Stat(configPath); errors.Is(statErr, os.ErrNotExist) {
		configPath = ""
	}

	cfg, err := config.Load(configPath, flags.EnvFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	if configPath == "" {
		log.Warn("Config file not found, using defaults and environment", zap.String("path", flags.ConfigPath))
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}
	if flags.Mode == config.ModeSnipe {
		if err := cfg.ValidateSniper(); err != nil {
			log.Fatal("Invalid sniper configuration", zap.Error(err))
		}
	}

	log.Info("Starting pumpwatch",
		zap.String("mode", flags.Mode),
		zap.Int("rpc_endpoints", len(cfg.RPCList)),
		zap.Duration("candle_interval", cfg.CandleInterval))

	runner := app.NewRunner(cfg, flags, log)
	if err := runner.Run(context.Background()); err != nil {
		log.Error("Run failed", zap.Error(err))
		_ = logger.Sync(log)
		os.Exit(1)
	}
}
