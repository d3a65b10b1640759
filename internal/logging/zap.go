// Package logging adapts zap to the migrator.Logger interface.
package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	migrator "github.com/getpup/pupsourcing-migrator"
)

// Config configures a zap-backed Logger.
type Config struct {
	// Production selects the JSON encoder with ISO8601 timestamps.
	// Otherwise a colored console encoder is used.
	Production bool

	// Level is the minimum level: debug, info, warn or error (default: info).
	Level string
}

// Logger implements migrator.Logger using zap's sugared key/value API.
type Logger struct {
	sugar *zap.SugaredLogger
}

var _ migrator.Logger = (*Logger)(nil)

// New builds a zap logger from cfg.
func New(cfg Config) (*Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var zcfg zap.Config
	if cfg.Production {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = level
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.MessageKey = "message"

	zl, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return NewWithZap(zl), nil
}

// NewWithZap wraps an existing zap logger.
func NewWithZap(zl *zap.Logger) *Logger {
	return &Logger{sugar: zl.Sugar()}
}

// Debug implements migrator.Logger.
func (l *Logger) Debug(_ context.Context, msg string, keyvals ...interface{}) {
	l.sugar.Debugw(msg, keyvals...)
}

// Info implements migrator.Logger.
func (l *Logger) Info(_ context.Context, msg string, keyvals ...interface{}) {
	l.sugar.Infow(msg, keyvals...)
}

// Warn implements migrator.Logger.
func (l *Logger) Warn(_ context.Context, msg string, keyvals ...interface{}) {
	l.sugar.Warnw(msg, keyvals...)
}

// Error implements migrator.Logger.
func (l *Logger) Error(_ context.Context, msg string, keyvals ...interface{}) {
	l.sugar.Errorw(msg, keyvals...)
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
