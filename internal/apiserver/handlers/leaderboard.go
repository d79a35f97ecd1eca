package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// GetWorkerLeaderboard returns the top workers by lifetime earnings.
func (h *Handler) GetWorkerLeaderboard(c *gin.Context) {
	limit := defaultLeaderboardLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	trackStore := h.metrics.TrackStoreOperation("read", "workers")
	workers, err := h.store.ListTopWorkers(c.Request.Context(), limit)
	trackStore(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"limit":   limit,
		"workers": workers,
	})
}
