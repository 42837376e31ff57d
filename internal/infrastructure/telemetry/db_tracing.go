package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled            bool
	IncludeVariables   bool          // put bound query variables into spans (dev only)
	SlowQueryThreshold time.Duration // queries slower than this get db.slow_query=true
	DBSystem           string
	TracerProvider     trace.TracerProvider // nil uses the global provider
}

// DefaultDBTracingConfig returns default configuration for database tracing.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThreshold: 200 * time.Millisecond,
		DBSystem:           "postgresql",
	}
}

type queryStartKey struct{}

// RegisterDBTracing installs the otelgorm plugin, which opens one client span per
// statement, plus a callback pair that flags statements slower than the threshold.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = DefaultDBTracingConfig().SlowQueryThreshold
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(cfg.TracerProvider))
	}
	if !cfg.IncludeVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	cb := &slowQueryMarker{threshold: cfg.SlowQueryThreshold}
	if err := cb.register(db); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Bool("include_variables", cfg.IncludeVariables),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
		zap.String("db_system", cfg.DBSystem),
	)
	return nil
}

type slowQueryMarker struct {
	threshold time.Duration
}

type gormRegister interface {
	Register(name string, fn func(*gorm.DB)) error
}

// register hooks the marker around every gorm operation. The after hooks run
// ahead of otelgorm's own after hooks so the span is still open.
func (m *slowQueryMarker) register(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		callback gormRegister
		hook     func(*gorm.DB)
		name     string
	}{
		{cb.Create().Before("gorm:create"), m.before, "before:create"},
		{cb.Create().After("gorm:create").Before("otel:after:create"), m.after, "after:create"},
		{cb.Query().Before("gorm:query"), m.before, "before:select"},
		{cb.Query().After("gorm:query").Before("otel:after:select"), m.after, "after:select"},
		{cb.Delete().Before("gorm:delete"), m.before, "before:delete"},
		{cb.Delete().After("gorm:delete").Before("otel:after:delete"), m.after, "after:delete"},
		{cb.Update().Before("gorm:update"), m.before, "before:update"},
		{cb.Update().After("gorm:update").Before("otel:after:update"), m.after, "after:update"},
		{cb.Row().Before("gorm:row"), m.before, "before:row"},
		{cb.Row().After("gorm:row").Before("otel:after:row"), m.after, "after:row"},
		{cb.Raw().Before("gorm:raw"), m.before, "before:raw"},
		{cb.Raw().After("gorm:raw").Before("otel:after:raw"), m.after, "after:raw"},
	}
	for _, h := range hooks {
		if err := h.callback.Register("ledger_timing:"+h.name, h.hook); err != nil {
			return err
		}
	}
	return nil
}

func (m *slowQueryMarker) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (m *slowQueryMarker) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > m.threshold {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query_warning", trace.WithAttributes(
			attribute.Int64("threshold_ms", m.threshold.Milliseconds()),
		))
	}
}
