package middleware

import (
	"context"
	"strings"

	"github.com/erp/customer-ledger/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// ProfilingConfig holds configuration for the profiling middleware
type ProfilingConfig struct {
	Enabled   bool
	SkipPaths []string
}

// Profiling labels each request's CPU samples with its method, route pattern
// and resource. The route is gin's pattern, so customer ids never become labels.
func Profiling(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if _, ok := skip[c.Request.URL.Path]; ok || route == "" {
			c.Next()
			return
		}
		telemetry.WithProfilingLabels(c.Request.Context(), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		},
			telemetry.ProfilingLabelMethod, c.Request.Method,
			telemetry.ProfilingLabelRoute, route,
			telemetry.ProfilingLabelResource, resourceFromRoute(route),
		)
	}
}

// resourceFromRoute returns the last static segment of a route pattern.
//
//	/api/v1/customers/:customerId/payments/:paymentId -> payments
//	/api/v1/customers/:customerId/ledger              -> ledger
func resourceFromRoute(route string) string {
	parts := strings.Split(strings.Trim(route, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if p := parts[i]; p != "" && !strings.HasPrefix(p, ":") && !strings.HasPrefix(p, "*") {
			return p
		}
	}
	return "root"
}
