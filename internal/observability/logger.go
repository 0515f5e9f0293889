// Package observability builds the process-wide logger and tracer provider.
package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a development logger for APP_ENV=dev (or local) and a
// JSON production logger otherwise.
func NewLogger(env string) (*zap.Logger, error) {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	default:
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	}
}
