package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports service liveness and database reachability.
func (h *Handler) HealthCheck(c *gin.Context) {
	response := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "crowdrank-apiserver",
		"database":  "connected",
	}

	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.metrics.HealthChecksTotal.WithLabelValues("unhealthy").Inc()
		requestLogger := h.requestLogger(c)
		requestLogger.Errorf("[HealthCheck] Database ping failed: %v", err)
		response["status"] = "degraded"
		response["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	h.metrics.HealthChecksTotal.WithLabelValues("healthy").Inc()
	c.JSON(http.StatusOK, response)
}
