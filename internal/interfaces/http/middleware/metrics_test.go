package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestHTTPMetrics_RecordsByRoutePattern(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	mw, err := HTTPMetrics(HTTPMetricsConfig{Meter: mp.Meter("http.server"), Enabled: true})
	require.NoError(t, err)

	router := gin.New()
	router.Use(mw)
	router.GET("/api/v1/customers/:customerId/ledger", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	for _, id := range []string{"c-1", "c-2"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/customers/"+id+"/ledger", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	metrics := collectMetrics(t, reader)

	total, ok := metrics["http_server_request_total"]
	require.True(t, ok)
	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	counts := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		route, _ := dp.Attributes.Value("http.route")
		counts[route.AsString()] += dp.Value
	}
	assert.Equal(t, int64(2), counts["/api/v1/customers/:customerId/ledger"])
	assert.Equal(t, int64(1), counts["unknown"])

	assert.Contains(t, metrics, "http_server_request_duration_seconds")
	assert.Contains(t, metrics, "http_server_response_size_bytes")
	assert.Contains(t, metrics, "http_server_active_requests")
}

func TestHTTPMetrics_Disabled(t *testing.T) {
	mw, err := HTTPMetrics(HTTPMetricsConfig{Enabled: false})
	require.NoError(t, err)

	router := gin.New()
	router.Use(mw)
	router.GET("/ledger", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ledger", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{304, "3xx"},
		{404, "4xx"},
		{413, "4xx"},
		{503, "5xx"},
		{100, "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusClass(tt.code), "status %d", tt.code)
	}
}
