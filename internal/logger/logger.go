// internal/logger/logger.go
package logger

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures the process logger.
type Config struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	// File is the rotated JSON log; empty disables file output.
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // мегабайты
	MaxAge     int    `mapstructure:"max_age"`  // дни
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
	// Pretty switches the console to the colored human format.
	Pretty      bool `mapstructure:"pretty"`
	Development bool `mapstructure:"development"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		File:       "logs/pumpwatch.log",
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   true,
		Pretty:     true,
	}
}

// New builds a logger writing to stdout and, when configured, to a rotated JSON file.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if cfg.Development && level > zapcore.DebugLevel {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	// Консоль: цветной формат для человека или стандартный консольный энкодер
	var console zapcore.Core
	if cfg.Pretty {
		console = &prettyCore{core: zapcore.NewCore(PrettyEncoder(), zapcore.Lock(os.Stdout), level)}
	} else {
		console = zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stdout), level)
	}

	cores := []zapcore.Core{console}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// WithOperation создает логгер для конкретной операции
func WithOperation(logger *zap.Logger, operation string) *zap.Logger {
	return logger.With(
		zap.String("operation", operation),
		zap.String("correlation_id", uuid.New().String()),
		zap.Time("start_time", time.Now().UTC()),
	)
}

// TrackPerformance logs the duration of an operation when the returned func is called.
func TrackPerformance(logger *zap.Logger, operation string) (end func()) {
	start := time.Now()
	opLogger := WithOperation(logger, operation)
	opLogger.Debug("Starting operation")

	return func() {
		opLogger.Debug("Operation completed", zap.Duration("duration", time.Since(start)))
	}
}

// Sync flushes the logger, ignoring the errors stdout returns when it is a terminal or pipe.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}
