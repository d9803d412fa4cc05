// Package raillog wraps a *zap.Logger with the teacher's colored console
// conventions (pkg/logger/logger.go): level-gated helpers, a "success"
// level, and the Section/Banner presentation helpers. Structured fields
// (tick, peer id, entity id) attach as zap key/values instead of being
// interpolated into the message string, so log aggregation can filter on
// them.
package raillog

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ANSI color codes, kept from the teacher's logger for Section/Banner.
const (
	ColorReset  = "\033[0m"
	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
)

// Logger is a thin sugar layer over zap with the teacher's helper names.
type Logger struct {
	z *zap.Logger
}

// New builds a Logger at the given level ("debug", "info", "warn", "error"),
// using zap's colored capital-level console encoder so terminal output keeps
// the teacher's at-a-glance colored levels.
func New(level string) (*Logger, error) {
	var zlevel zapcore.Level
	if err := zlevel.UnmarshalText([]byte(level)); err != nil {
		zlevel = zapcore.InfoLevel
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zlevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// Sync flushes any buffered log output.
func (l *Logger) Sync() error { return l.z.Sync() }

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.z.Fatal(msg, fields...) }

// Success logs at info level with an outcome field, the structured
// replacement for the teacher's dedicated green "SUCCESS" level.
func (l *Logger) Success(msg string, fields ...zap.Field) {
	l.z.Info(msg, append(fields, zap.String("outcome", "success"))...)
}

// InfoCyan is Info with the teacher's cyan-highlight intent preserved as a
// field rather than a distinct color, since zap's console encoder colors by
// level, not by call site.
func (l *Logger) InfoCyan(msg string, fields ...zap.Field) {
	l.z.Info(msg, append(fields, zap.Bool("highlight", true))...)
}

// Section prints a section header banner, kept verbatim from the teacher's
// presentation style — this is terminal decoration, not structured log
// output, so it bypasses zap entirely.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n%s╔%s╗%s\n", ColorCyan, border, ColorReset)
	fmt.Printf("%s║%s %-57s %s║%s\n", ColorCyan, ColorReset, title, ColorCyan, ColorReset)
	fmt.Printf("%s╚%s╝%s\n\n", ColorCyan, border, ColorReset)
}

// Banner prints the application banner.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ███████╗ █████╗       ███╗   ███╗██████╗               ║
║   ██╔════╝██╔══██╗      ████╗ ████║██╔══██╗              ║
║   ███████╗███████║█████╗██╔████╔██║██████╔╝              ║
║   ╚════██║██╔══██║╚════╝██║╚██╔╝██║██╔═══╝               ║
║   ███████║██║  ██║      ██║ ╚═╝ ██║██║                   ║
║   ╚══════╝╚═╝  ╚═╝      ╚═╝     ╚═╝╚═╝                   ║
║                                                           ║
║              %s%-37s%s║
║                    %sVersion %-7s%s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, ColorCyan, title, ColorReset, ColorGreen, version, ColorReset)
}
