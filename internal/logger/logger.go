// Package logger builds the zap logger and carries request-scoped loggers in contexts.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// baseConfig returns the zap config for env, or false for an unknown env.
func baseConfig(env string) (zap.Config, bool) {
	switch env {
	case "prod":
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg, true
	case "local", "dev", "docker":
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		return cfg, true
	default:
		return zap.Config{}, false
	}
}

// NewLogger builds the process logger. "prod" writes JSON, "local", "dev" and
// "docker" write console lines, "test" discards everything. A non-empty level
// (debug, info, warn, error) replaces the environment default.
func NewLogger(env, level string) (*zap.Logger, error) {
	if env == "test" {
		return zap.NewNop(), nil
	}

	cfg, ok := baseConfig(env)
	if !ok {
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l.With(zap.String("service", "ragdesk")), nil
}
