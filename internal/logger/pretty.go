// internal/logger/pretty.go
package logger

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Colors for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// PrettyEncoder creates a user-friendly console encoder
func PrettyEncoder() zapcore.Encoder {
	config := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		CallerKey:      "",
		StacktraceKey:  "",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    customLevelEncoder,
		EncodeTime:     customTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return zapcore.NewConsoleEncoder(config)
}

// customLevelEncoder formats log levels with colors
func customLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString(fmt.Sprintf("%s[DEBUG]%s", ColorCyan, ColorReset))
	case zapcore.InfoLevel:
		enc.AppendString(fmt.Sprintf("%s[INFO]%s", ColorGreen, ColorReset))
	case zapcore.WarnLevel:
		enc.AppendString(fmt.Sprintf("%s[WARN]%s", ColorYellow, ColorReset))
	case zapcore.ErrorLevel:
		enc.AppendString(fmt.Sprintf("%s[ERROR]%s", ColorRed, ColorReset))
	case zapcore.FatalLevel:
		enc.AppendString(fmt.Sprintf("%s[FATAL]%s", ColorRed+ColorBold, ColorReset))
	default:
		enc.AppendString(fmt.Sprintf("[%s]", level.CapitalString()))
	}
}

// customTimeEncoder formats time in a readable way
func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05"))
}

// FormatMessage creates user-friendly log messages for the events an operator watches.
func FormatMessage(msg string, fields []zapcore.Field) string {
	switch msg {
	case "Launch detected":
		return fmt.Sprintf("%s🔎 Launch detected: %s%s", ColorCyan, shortenSignature(extractField(fields, "signature")), ColorReset)

	case "Tracking mint":
		return fmt.Sprintf("%s🎯 Tracking %s (%s)%s",
			ColorPurple, shortenAddress(extractField(fields, "mint")), extractField(fields, "source"), ColorReset)

	case "Candle closed":
		return fmt.Sprintf("%s🕯  O %s  H %s  L %s  C %s%s", ColorBlue,
			extractField(fields, "open"), extractField(fields, "high"),
			extractField(fields, "low"), extractField(fields, "close"), ColorReset)

	case "Snipe succeeded":
		return fmt.Sprintf("%s✅ Bought %s at %s SOL%s",
			ColorGreen+ColorBold, shortenAddress(extractField(fields, "mint")), extractField(fields, "price"), ColorReset)

	case "Snipe failed":
		return fmt.Sprintf("%s❌ Buy failed for %s: %s%s",
			ColorRed, shortenAddress(extractField(fields, "mint")), extractField(fields, "error"), ColorReset)

	case "Position sold":
		return fmt.Sprintf("%s💸 Sold %s of %s%s",
			ColorGreen, extractField(fields, "fraction"), shortenAddress(extractField(fields, "mint")), ColorReset)

	case "Alert fired":
		return fmt.Sprintf("%s🔔 Alert %s at %s%s",
			ColorYellow, extractField(fields, "label"), extractField(fields, "price"), ColorReset)

	default:
		return msg
	}
}

// Helper functions
func extractField(fields []zapcore.Field, key string) string {
	for _, field := range fields {
		if field.Key != key {
			continue
		}
		switch field.Type {
		case zapcore.StringType:
			return field.String
		case zapcore.Float64Type:
			return fmt.Sprintf("%.10g", math.Float64frombits(uint64(field.Integer)))
		case zapcore.ErrorType:
			if err, ok := field.Interface.(error); ok {
				return err.Error()
			}
		}
		if field.Interface != nil {
			return fmt.Sprintf("%v", field.Interface)
		}
		return fmt.Sprintf("%d", field.Integer)
	}
	return ""
}

func shortenAddress(addr string) string {
	if len(addr) > 8 {
		return addr[:4] + "..." + addr[len(addr)-4:]
	}
	return addr
}

func shortenSignature(sig string) string {
	if len(sig) > 16 {
		return sig[:8] + "..." + sig[len(sig)-8:]
	}
	return sig
}

// prettyCore rewrites known messages and drops structured fields from the console line.
type prettyCore struct {
	core   zapcore.Core
	fields []zapcore.Field
}

func (c *prettyCore) Enabled(level zapcore.Level) bool {
	return c.core.Enabled(level)
}

func (c *prettyCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &prettyCore{core: c.core, fields: merged}
}

func (c *prettyCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *prettyCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := append(append([]zapcore.Field(nil), c.fields...), fields...)
	entry.Message = FormatMessage(entry.Message, all)
	if entry.LoggerName != "" && !strings.HasPrefix(entry.Message, "\033") {
		entry.Message = "[" + entry.LoggerName + "] " + entry.Message
	}
	entry.LoggerName = ""
	return c.core.Write(entry, nil)
}

func (c *prettyCore) Sync() error {
	return c.core.Sync()
}
