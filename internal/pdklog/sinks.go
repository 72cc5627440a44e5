package pdklog

import (
	"os"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

// newConsoleCore builds the human-readable console sink, colorized via
// fatih/color, with color disabled when NO_COLOR is set or stdout is not a
// terminal.
func newConsoleCore(level zapcore.Level) zapcore.Core {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	if colorEnabled() {
		encoderCfg.EncodeLevel = colorLevelEncoder
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	encoder := zapcore.NewConsoleEncoder(encoderCfg)
	return zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
}

func colorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isTerminal(os.Stdout)
}

func colorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var c *color.Color
	switch level {
	case zapcore.DebugLevel:
		c = color.New(color.FgCyan)
	case zapcore.InfoLevel:
		c = color.New(color.FgGreen)
	case zapcore.WarnLevel:
		c = color.New(color.FgYellow)
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		c = color.New(color.FgRed, color.Bold)
	default:
		c = color.New(color.Reset)
	}
	enc.AppendString(c.Sprint(level.CapitalString()))
}

// newFileCore builds the rotating plain-text file sink using
// lumberjack.Logger's MaxSize/MaxBackups/MaxAge rotation.
func newFileCore(cfg pdkmodel.LoggingConfig, level zapcore.Level) (zapcore.Core, error) {
	writer := rotatingWriter(cfg.File, cfg)
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)
	return zapcore.NewCore(encoder, writer, level), nil
}

// newJSONFileCore builds the JSON sink as a second, independently-gated core
// writing to its own rotating file.
func newJSONFileCore(cfg pdkmodel.LoggingConfig, level zapcore.Level) (zapcore.Core, error) {
	writer := rotatingWriter(cfg.JSON, cfg)
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.MessageKey = "message"
	encoderCfg.LevelKey = "level"
	encoderCfg.CallerKey = "caller"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)
	return zapcore.NewCore(encoder, writer, level), nil
}

func rotatingWriter(path string, cfg pdkmodel.LoggingConfig) zapcore.WriteSyncer {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 5
	}
	maxAge := cfg.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 30
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   true,
	})
}
