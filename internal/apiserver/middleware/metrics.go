package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crowdrank/crowdrank-backend/internal/apiserver/metrics"
)

// MetricsMiddleware tracks HTTP metrics for all requests
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		m.ActiveRequests.WithLabelValues(path).Inc()
		defer m.ActiveRequests.WithLabelValues(path).Dec()

		c.Next()

		duration := time.Since(startTime).Seconds()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)

		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	}
}
