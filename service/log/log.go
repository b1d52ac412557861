package log

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logKeyT struct{}

var logKey logKeyT
var defaultLogger *zap.Logger

func init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if os.Getenv("DEBUG") != "" {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	var err error
	if defaultLogger, err = cfg.Build(zap.AddCallerSkip(1)); err != nil {
		panic(err)
	}
}

// Logger returns the logger attached to ctx, or the process-wide logger.
func Logger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(logKey).(*zap.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a ctx whose logger carries the additional key/value.
func With(ctx context.Context, key string, value interface{}) context.Context {
	return context.WithValue(ctx, logKey, Logger(ctx).With(zap.Any(key, value)))
}

func Fatal(msg string, fields ...zap.Field) {
	defaultLogger.Fatal(msg, fields...)
}
