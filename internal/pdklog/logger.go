// Package pdklog implements a multi-sink structured logger: a zap-based
// logger with console, rotating-file, and JSON sinks, each passing
// through secret masking before a byte is written.
package pdklog

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pipelinedk/pdk/internal/variables"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

// Logger wraps a *zap.Logger with the correlation-id scope and fields map
// shape internal/orchestrator's Logger interface expects.
type Logger struct {
	zap *zap.Logger
}

// parseLevel maps the configuration's textual level to a zapcore.Level, using
// the Error|Warning|Information|Debug|Trace vocabulary.
func parseLevel(level string) zapcore.Level {
	switch level {
	case "Error":
		return zapcore.ErrorLevel
	case "Warning":
		return zapcore.WarnLevel
	case "Debug":
		return zapcore.DebugLevel
	case "Trace":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a Logger from a LoggingConfig, wiring console/file/JSON sinks
// as enabled and wrapping every core in a masking decorator fed by masker.
func New(cfg pdkmodel.LoggingConfig, masker *variables.Masker) (*Logger, error) {
	level := parseLevel(cfg.Level)
	var cores []zapcore.Core

	if cfg.Console {
		cores = append(cores, newConsoleCore(level))
	}
	if cfg.File != "" {
		core, err := newFileCore(cfg, level)
		if err != nil {
			return nil, err
		}
		cores = append(cores, core)
	}
	if cfg.JSON != "" {
		core, err := newJSONFileCore(cfg, level)
		if err != nil {
			return nil, err
		}
		cores = append(cores, core)
	}
	if len(cores) == 0 {
		cores = append(cores, newConsoleCore(level))
	}

	tee := zapcore.NewTee(cores...)
	masked := newMaskingCore(tee, masker, cfg.NoRedact)
	zl := zap.New(masked, zap.AddCaller())
	return &Logger{zap: zl}, nil
}

// NewCorrelationID mints a "pdk-<token>" correlation id with a random
// suffix.
func NewCorrelationID() string {
	return fmt.Sprintf("pdk-%s", uuid.NewString())
}

func toZapFields(fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// Debug logs at debug level with structured fields.
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.zap.Debug(msg, toZapFields(fields)...)
}

// Info logs at info level with structured fields.
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.zap.Info(msg, toZapFields(fields)...)
}

// Warn logs at warn level with structured fields.
func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.zap.Warn(msg, toZapFields(fields)...)
}

// Error logs at error level with structured fields.
func (l *Logger) Error(msg string, fields map[string]interface{}) {
	l.zap.Error(msg, toZapFields(fields)...)
}

// Sync flushes any buffered log entries; callers should defer this in main.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// With returns a Logger carrying the given fields on every subsequent
// record, leaving the receiver untouched.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	return &Logger{zap: l.zap.With(toZapFields(fields)...)}
}

// isTerminal reports whether f looks like an interactive terminal; used to
// decide whether the console sink colorizes its output.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
