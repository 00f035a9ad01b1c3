package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger. It is a no-op until Init is called,
// which keeps package tests quiet.
var Logger = zap.NewNop()

// Options selects the zap preset and overrides.
type Options struct {
	Debug    bool
	Level    string // "", "debug", "info", "warn", "error"
	Encoding string // "", "json", "console"
}

// Init initializes the global logger
func Init(opts Options) error {
	var config zap.Config

	if opts.Debug {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}

	if opts.Level != "" {
		level, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}
	if opts.Encoding != "" {
		config.Encoding = opts.Encoding
	}

	logger, err := config.Build()
	if err != nil {
		return err
	}

	Logger = logger
	return nil
}

// With returns a child logger carrying fields such as run_id and flow
func With(fields ...zap.Field) *zap.Logger {
	return Logger.With(fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Logger.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	Logger.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Logger.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Logger.Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	Logger.Fatal(msg, fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	return Logger.Sync()
}
