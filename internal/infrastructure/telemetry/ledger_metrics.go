package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// LedgerMetrics tracks ledger reconciliation work. A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	logger *zap.Logger

	reconcileTotal    *Counter
	reconcileDuration *Histogram
	entriesPerLedger  *Histogram
	discrepancyTotal  *Counter
	paymentWrites     *Counter
	statementExports  *Counter
}

// LedgerMetricsConfig holds configuration for ledger metrics.
type LedgerMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewLedgerMetrics creates the ledger instruments on cfg.Meter.
func NewLedgerMetrics(cfg LedgerMetricsConfig) (*LedgerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LedgerMetrics{logger: logger}

	var err error
	lm.reconcileTotal, err = NewCounter(cfg.Meter,
		"ledger_reconcile_total",
		"Total number of customer ledger reconciliations",
		"{reconciliations}",
	)
	if err != nil {
		return nil, err
	}

	lm.reconcileDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "ledger_reconcile_duration_seconds",
		Description: "Time spent reconciling one customer snapshot",
		Unit:        "s",
		Boundaries:  SmallDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	lm.entriesPerLedger, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "ledger_entries_per_ledger",
		Description: "Number of entries in a reconciled ledger",
		Unit:        "{entries}",
		Boundaries:  EntryCountBuckets,
	})
	if err != nil {
		return nil, err
	}

	lm.discrepancyTotal, err = NewCounter(cfg.Meter,
		"ledger_discrepancy_total",
		"Reconciliations whose closing balance disagrees with bill aggregates",
		"{reconciliations}",
	)
	if err != nil {
		return nil, err
	}

	lm.paymentWrites, err = NewCounter(cfg.Meter,
		"ledger_payment_writes_total",
		"Recovery payment writes by operation and outcome",
		"{writes}",
	)
	if err != nil {
		return nil, err
	}

	lm.statementExports, err = NewCounter(cfg.Meter,
		"ledger_statement_exports_total",
		"Statement exports by format",
		"{exports}",
	)
	if err != nil {
		return nil, err
	}

	return lm, nil
}

// RecordReconcile records one reconciliation and its size.
func (lm *LedgerMetrics) RecordReconcile(ctx context.Context, d time.Duration, entries int, balanceSign string, balanced bool) {
	if lm == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrBalanceSign.String(balanceSign)}
	lm.reconcileTotal.Inc(ctx, attrs...)
	lm.reconcileDuration.RecordDuration(ctx, d, attrs...)
	lm.entriesPerLedger.Record(ctx, float64(entries))
	if !balanced {
		lm.discrepancyTotal.Inc(ctx)
	}
}

// RecordPaymentWrite records a payment create, update or delete.
func (lm *LedgerMetrics) RecordPaymentWrite(ctx context.Context, operation string, err error) {
	if lm == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	lm.paymentWrites.Inc(ctx, AttrOperation.String(operation), AttrOutcome.String(outcome))
}

// RecordStatementExport records one statement rendering.
func (lm *LedgerMetrics) RecordStatementExport(ctx context.Context, format string) {
	if lm == nil {
		return
	}
	lm.statementExports.Inc(ctx, AttrExportFormat.String(format))
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
