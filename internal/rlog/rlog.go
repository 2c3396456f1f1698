// Package rlog builds the process-wide *zap.Logger. It is constructed
// once by the CLI entrypoint and threaded explicitly into every
// collaborator that needs it -- nothing in internal/router reads a
// package-level logger global.
package rlog

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-profile zap logger at the given level
// ("debug", "info", "warn", "error"; anything else falls back to info).
func New(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("rlog: building logger: %w", err)
	}
	return logger, nil
}
