package handlers

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// GetWorker returns one worker row.
func (h *Handler) GetWorker(c *gin.Context) {
	workerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	trackStore := h.metrics.TrackStoreOperation("read", "workers")
	worker, err := h.store.GetWorker(c.Request.Context(), workerID)
	trackStore(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, worker)
}

// GetWorkerStats returns the worker's balances plus the accuracy breakdown
// over their settled submissions.
func (h *Handler) GetWorkerStats(c *gin.Context) {
	workerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	logger := h.requestLogger(c)

	stats, err := h.engine.WorkerStats(c.Request.Context(), workerID)
	if err != nil {
		logger.Warnf("[GetWorkerStats] Failed for worker %d: %v", workerID, err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetWorkerByWallet looks a worker up by wallet address.
func (h *Handler) GetWorkerByWallet(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		writeError(c, http.StatusBadRequest, "INVALID_ADDRESS", "address is not a valid address")
		return
	}

	trackStore := h.metrics.TrackStoreOperation("read", "workers")
	worker, err := h.store.GetWorkerByWallet(c.Request.Context(), strings.ToLower(address))
	trackStore(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, worker)
}
