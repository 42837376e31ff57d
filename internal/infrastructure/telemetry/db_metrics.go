package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig holds configuration for database metrics collection.
type DBMetricsConfig struct {
	Enabled bool
	// SlowQueryThreshold counts statements slower than this in db_slow_query_total.
	SlowQueryThreshold time.Duration
}

// DefaultDBMetricsConfig returns default configuration for database metrics.
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
	}
}

// Metric attribute keys for database instruments
var (
	AttrDBTable = attribute.Key("db.table")
	AttrDBState = attribute.Key("state")
)

// DBDurationBuckets suit single statements in seconds.
var DBDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// DBMetrics holds the query instruments and the pool-stats callback.
type DBMetrics struct {
	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter

	threshold    time.Duration
	registration metric.Registration
}

// NewDBMetrics creates the query instruments on meter and, when sqlDB is set,
// observable gauges that read sqlDB.Stats() at each collection.
func NewDBMetrics(meter metric.Meter, sqlDB *sql.DB, cfg DBMetricsConfig) (*DBMetrics, error) {
	if meter == nil {
		return nil, &MetricsError{Op: "NewDBMetrics", Err: "meter cannot be nil"}
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = DefaultDBMetricsConfig().SlowQueryThreshold
	}

	m := &DBMetrics{threshold: cfg.SlowQueryThreshold}
	var err error

	m.queryTotal, err = NewCounter(meter,
		"db_query_total",
		"Total number of database statements by operation, table and outcome",
		"{query}",
	)
	if err != nil {
		return nil, err
	}

	m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database statement latency distribution in seconds",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	m.slowQueryTotal, err = NewCounter(meter,
		"db_slow_query_total",
		"Total number of statements slower than the slow query threshold",
		"{query}",
	)
	if err != nil {
		return nil, err
	}

	if sqlDB != nil {
		if err := m.observePool(meter, sqlDB); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *DBMetrics) observePool(meter metric.Meter, sqlDB *sql.DB) error {
	connections, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return err
	}
	maxOpen, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum number of open connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return err
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Connections waited for because the pool was exhausted"),
		metric.WithUnit("{wait}"),
	)
	if err != nil {
		return err
	}

	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(connections, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(connections, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(connections, int64(stats.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
		o.ObserveInt64(maxOpen, int64(stats.MaxOpenConnections))
		o.ObserveInt64(waits, stats.WaitCount)
		return nil
	}, connections, maxOpen, waits)
	return err
}

// RecordQuery records one statement. A missing row is a normal lookup result, not an error.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration, err error) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}
	if table == "" {
		table = "unknown"
	}
	outcome := "ok"
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		outcome = "error"
	}

	m.queryTotal.Inc(ctx,
		AttrOperation.String(operation),
		AttrDBTable.String(table),
		AttrOutcome.String(outcome),
	)
	m.queryDuration.RecordDuration(ctx, duration,
		AttrOperation.String(operation),
		AttrDBTable.String(table),
	)
	if duration > m.threshold {
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

// Stop unregisters the pool-stats callback. Safe to call more than once.
func (m *DBMetrics) Stop() error {
	if m == nil || m.registration == nil {
		return nil
	}
	err := m.registration.Unregister()
	m.registration = nil
	return err
}

type dbMetricsStartKey struct{}

// DBMetricsPlugin is a GORM plugin that feeds every statement into DBMetrics.
type DBMetricsPlugin struct {
	metrics *DBMetrics
}

// NewDBMetricsPlugin creates a new GORM plugin for database metrics.
func NewDBMetricsPlugin(metrics *DBMetrics) *DBMetricsPlugin {
	return &DBMetricsPlugin{metrics: metrics}
}

// Name returns the plugin name.
func (p *DBMetricsPlugin) Name() string {
	return "ledger_db_metrics"
}

// Initialize registers before and after callbacks on every operation type.
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		callback gormRegister
		hook     func(*gorm.DB)
		name     string
	}{
		{cb.Create().Before("gorm:create"), p.before, "before:create"},
		{cb.Create().After("gorm:create"), p.after("INSERT"), "after:create"},
		{cb.Query().Before("gorm:query"), p.before, "before:query"},
		{cb.Query().After("gorm:query"), p.after("SELECT"), "after:query"},
		{cb.Update().Before("gorm:update"), p.before, "before:update"},
		{cb.Update().After("gorm:update"), p.after("UPDATE"), "after:update"},
		{cb.Delete().Before("gorm:delete"), p.before, "before:delete"},
		{cb.Delete().After("gorm:delete"), p.after("DELETE"), "after:delete"},
		{cb.Row().Before("gorm:row"), p.before, "before:row"},
		{cb.Row().After("gorm:row"), p.after(""), "after:row"},
		{cb.Raw().Before("gorm:raw"), p.before, "before:raw"},
		{cb.Raw().After("gorm:raw"), p.after(""), "after:raw"},
	}
	for _, h := range hooks {
		if err := h.callback.Register("ledger_db_metrics:"+h.name, h.hook); err != nil {
			return err
		}
	}
	return nil
}

func (p *DBMetricsPlugin) before(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, dbMetricsStartKey{}, time.Now())
}

// after records with a fixed operation, or one read from the SQL when operation is empty.
func (p *DBMetricsPlugin) after(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		var duration time.Duration
		if start, ok := ctx.Value(dbMetricsStartKey{}).(time.Time); ok {
			duration = time.Since(start)
		}
		op := operation
		if op == "" {
			op = detectOperationType(db.Statement.SQL.String())
		}
		p.metrics.RecordQuery(ctx, op, db.Statement.Table, duration, db.Error)
	}
}

func detectOperationType(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return op
		}
	}
	return "OTHER"
}

// RegisterDBMetrics creates DBMetrics for db and installs the GORM plugin.
// It returns nil metrics when disabled; call Stop on shutdown otherwise.
func RegisterDBMetrics(db *gorm.DB, meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled || meter == nil {
		logger.Debug("Database metrics disabled, skipping registration")
		return nil, nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	metrics, err := NewDBMetrics(meter, sqlDB, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Use(NewDBMetricsPlugin(metrics)); err != nil {
		_ = metrics.Stop()
		return nil, err
	}

	logger.Info("Database metrics registered",
		zap.Duration("slow_query_threshold", metrics.threshold),
	)
	return metrics, nil
}
