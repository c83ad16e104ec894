// Package logging builds the process-wide zap logger used by every
// component of fleetctl.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a sugared logger at the given level name ("debug", "info",
// "warn", "error"). An unrecognized level falls back to "info".
func New(levelName, component string) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Fall back to a bare logger rather than fail bootstrap over
		// logging configuration.
		logger = zap.NewExample()
	}
	return logger.Sugar().Named(component)
}
