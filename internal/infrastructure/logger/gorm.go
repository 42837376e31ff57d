package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowThreshold is used until WithSlowThreshold overrides it
const DefaultSlowThreshold = 200 * time.Millisecond

// GormLogger routes GORM output to zap. Every line carries the request and
// customer ids found on the query's context.
type GormLogger struct {
	logger                    *zap.Logger
	logLevel                  gormlogger.LogLevel
	slowThreshold             time.Duration
	ignoreRecordNotFoundError bool
}

var _ gormlogger.Interface = (*GormLogger)(nil)

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the duration above which a statement is logged as
// slow. Zero turns slow statement warnings off.
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) { l.slowThreshold = threshold }
}

// WithIgnoreRecordNotFoundError drops gorm.ErrRecordNotFound from the error log.
// Lookups that miss are expected in the ledger, so this is on by default.
func WithIgnoreRecordNotFoundError(ignore bool) GormLoggerOption {
	return func(l *GormLogger) { l.ignoreRecordNotFoundError = ignore }
}

// NewGormLogger returns a GormLogger writing to a "gorm" child of zapLogger
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	l := &GormLogger{
		logger:                    zapLogger.Named("gorm"),
		logLevel:                  level,
		slowThreshold:             DefaultSlowThreshold,
		ignoreRecordNotFoundError: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogMode returns a copy logging at level.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) printf(ctx context.Context, min gormlogger.LogLevel, lvl zapcore.Level, msg string, data []any) {
	if l.logLevel < min {
		return
	}
	l.forContext(ctx).Log(lvl, fmt.Sprintf(msg, data...))
}

// Trace logs one executed statement. Errors win over slowness, and plain
// queries are only logged at gorm's Info level, as zap debug lines.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		lvl   zapcore.Level
		msg   string
		extra zap.Field
	)
	switch {
	case err != nil:
		if l.logLevel < gormlogger.Error || (l.ignoreRecordNotFoundError && errors.Is(err, gormlogger.ErrRecordNotFound)) {
			return
		}
		lvl, msg, extra = zapcore.ErrorLevel, "SQL Error", zap.Error(err)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		if l.logLevel < gormlogger.Warn {
			return
		}
		lvl, msg, extra = zapcore.WarnLevel, "Slow SQL", zap.Duration("threshold", l.slowThreshold)
	default:
		if l.logLevel < gormlogger.Info {
			return
		}
		lvl, msg, extra = zapcore.DebugLevel, "SQL Query", zap.Skip()
	}

	sql, rows := fc()
	l.forContext(ctx).Log(lvl, msg,
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
		extra,
	)
}

func (l *GormLogger) forContext(ctx context.Context) *zap.Logger {
	var fields []zap.Field
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetCustomerID(ctx); id != "" {
		fields = append(fields, zap.String("customer_id", id))
	}
	if len(fields) == 0 {
		return l.logger
	}
	return l.logger.With(fields...)
}

// MapGormLogLevel maps a configured level name to GORM's scale. Debug shares
// Info; anything unrecognised falls back to Warn.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
