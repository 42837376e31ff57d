package middleware

import (
	"time"

	"github.com/erp/customer-ledger/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetricsConfig configures HTTPMetrics.
type HTTPMetricsConfig struct {
	Meter   metric.Meter // nil disables collection
	Enabled bool
}

// sizeBuckets cover JSON ledgers up to multi-megabyte CSV statements
var sizeBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000, 5000000}

type httpInstruments struct {
	requests     *telemetry.Counter
	duration     *telemetry.Histogram
	responseSize *telemetry.Histogram
	inFlight     metric.Int64UpDownCounter
}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	var (
		in  httpInstruments
		err error
	)
	if in.requests, err = telemetry.NewCounter(meter,
		"http_server_request_total", "HTTP requests served", "{request}"); err != nil {
		return nil, err
	}
	if in.duration, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if in.responseSize, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "HTTP response body size",
		Unit:        "By",
		Boundaries:  sizeBuckets,
	}); err != nil {
		return nil, err
	}
	if in.inFlight, err = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("HTTP requests currently being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	return &in, nil
}

// HTTPMetrics counts and times requests by method, route pattern and status.
// The route pattern keeps customer and payment ids out of the label set.
func HTTPMetrics(cfg HTTPMetricsConfig) (gin.HandlerFunc, error) {
	if !cfg.Enabled || cfg.Meter == nil {
		return func(c *gin.Context) { c.Next() }, nil
	}

	in, err := newHTTPInstruments(cfg.Meter)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()

		in.inFlight.Add(ctx, 1)
		defer in.inFlight.Add(ctx, -1)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		attrs := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(route),
		}

		in.requests.Inc(ctx, append(attrs,
			telemetry.AttrHTTPStatusCode.Int(status),
			attribute.String("status_class", StatusClass(status)),
		)...)
		in.duration.RecordDuration(ctx, time.Since(start), attrs...)
		if size := c.Writer.Size(); size > 0 {
			in.responseSize.Record(ctx, float64(size), attrs...)
		}
	}, nil
}

// StatusClass buckets a status code into 2xx, 3xx, 4xx, 5xx or other.
func StatusClass(code int) string {
	if code < 200 || code > 599 {
		return "other"
	}
	return [...]string{"2xx", "3xx", "4xx", "5xx"}[code/100-2]
}
