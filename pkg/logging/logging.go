// Package logging builds the zap logger shared by the CLI and MCP server.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLevel keeps diagnostics quiet unless asked for.
const DefaultLevel = "warn"

// New returns a logger writing to stderr at the given level. With json the
// production JSON encoding is used, otherwise the console encoding.
func New(level string, json bool) (*zap.Logger, error) {
	if level == "" {
		level = DefaultLevel
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	if !json {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config.DisableStacktrace = true
	}
	return config.Build()
}

// Must is New for callers that cannot recover, falling back to a no-op
// logger rather than exiting.
func Must(level string, json bool) *zap.Logger {
	logger, err := New(level, json)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
