package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crowdrank/crowdrank-backend/internal/ledger"
)

// taskResponse is a task with its settlement result attached once closed.
type taskResponse struct {
	*ledger.Task
	Result *ledger.Result `json:"result,omitempty"`
}

// GetTask returns one task with its options, and the settlement result once
// the task is closed.
func (h *Handler) GetTask(c *gin.Context) {
	taskID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	logger := h.requestLogger(c)

	trackStore := h.metrics.TrackStoreOperation("read", "tasks")
	task, err := h.store.GetTaskWithOptions(c.Request.Context(), taskID)
	trackStore(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response := taskResponse{Task: task}
	if task.Done() {
		result, err := h.store.GetResultByTask(c.Request.Context(), taskID)
		if err != nil && !errors.Is(err, ledger.ErrResultNotFound) {
			logger.Errorf("[GetTask] Failed to load result for task %d: %v", taskID, err)
			h.respondError(c, err)
			return
		}
		response.Result = result
	}

	c.JSON(http.StatusOK, response)
}

// GetTaskCompletion reports how close a task is to its review target.
func (h *Handler) GetTaskCompletion(c *gin.Context) {
	taskID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	status, err := h.engine.CheckTaskCompletion(c.Request.Context(), taskID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetTaskResult returns the settlement result, or 404 while the task is
// unsettled.
func (h *Handler) GetTaskResult(c *gin.Context) {
	taskID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	trackStore := h.metrics.TrackStoreOperation("read", "results")
	result, err := h.store.GetResultByTask(c.Request.Context(), taskID)
	trackStore(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
