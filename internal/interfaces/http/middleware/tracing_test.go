package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
	})
	return tp, sr
}

func newTracedRouter(tp *sdktrace.TracerProvider, status int) *gin.Engine {
	cfg := DefaultTracingConfig()
	cfg.TracerProvider = tp

	router := gin.New()
	router.Use(RequestID(), TracingWithConfig(cfg), SpanEnricher())
	router.GET("/api/v1/customers/:customerId/ledger", func(c *gin.Context) {
		c.JSON(status, gin.H{"success": status < 400})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func findSpan(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func attrValue(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	tp, sr := newTestTracerProvider(t)
	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false, TracerProvider: tp}))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracing_RouteSpanWithRequestAndCustomer(t *testing.T) {
	tp, sr := newTestTracerProvider(t)
	router := newTracedRouter(tp, http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/c-17/ledger", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	span := findSpan(sr.Ended(), "GET /api/v1/customers/:customerId/ledger")
	require.NotNil(t, span, "route span not found")

	requestID, ok := attrValue(span, "request_id")
	require.True(t, ok)
	assert.Equal(t, "req-123", requestID.AsString())

	customerID, ok := attrValue(span, "customer_id")
	require.True(t, ok)
	assert.Equal(t, "c-17", customerID.AsString())

	assert.NotEqual(t, codes.Error, span.Status().Code)
}

func TestTracing_SkipsProbes(t *testing.T) {
	tp, sr := newTestTracerProvider(t)
	router := newTracedRouter(tp, http.StatusOK)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestSpanEnricher_MarksErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
	}{
		{"not found", http.StatusNotFound, "Not Found"},
		{"bad request", http.StatusBadRequest, "Client Error"},
		{"server error", http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, sr := newTestTracerProvider(t)
			router := newTracedRouter(tp, tt.status)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/customers/c-1/ledger", nil))
			require.Equal(t, tt.status, w.Code)

			span := findSpan(sr.Ended(), "GET /api/v1/customers/:customerId/ledger")
			require.NotNil(t, span)
			assert.Equal(t, codes.Error, span.Status().Code)

			status, ok := attrValue(span, "http.status_code")
			require.True(t, ok)
			assert.Equal(t, int64(tt.status), status.AsInt64())
		})
	}
}

func TestSpanEnricher_WithoutSpan(t *testing.T) {
	router := gin.New()
	router.Use(SpanEnricher())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusBadRequest)
	})

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()

	assert.Equal(t, "customer-ledger", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
	assert.Contains(t, cfg.SkipPaths, "/health")
}
