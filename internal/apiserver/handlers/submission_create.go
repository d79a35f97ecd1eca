package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// submissionRequest is the body of POST /api/tasks/:id/submissions.
type submissionRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	OptionID      int64  `json:"option_id" binding:"required"`
}

// CreateSubmission records one worker's vote for an option and credits the
// flat submission amount. Settlement is checked asynchronously so the
// request returns as soon as the vote is durable.
func (h *Handler) CreateSubmission(c *gin.Context) {
	taskID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	logger := h.requestLogger(c)

	var req submissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", "Body must carry wallet_address and option_id")
		return
	}
	if !common.IsHexAddress(req.WalletAddress) {
		writeError(c, http.StatusBadRequest, "INVALID_ADDRESS", "wallet_address is not a valid address")
		return
	}
	walletAddress := strings.ToLower(req.WalletAddress)

	submission, err := h.engine.SubmitVote(c.Request.Context(), taskID, walletAddress, req.OptionID)
	if err != nil {
		logger.Warnf("[CreateSubmission] Rejected vote on task %d by %s: %v", taskID, walletAddress, err)
		h.respondError(c, err)
		return
	}

	h.metrics.SubmissionsCreatedTotal.Inc()
	logger.Infof("[CreateSubmission] Worker %d voted for option %d on task %d", submission.WorkerID, submission.OptionID, taskID)

	go h.settleIfReady(taskID)

	c.JSON(http.StatusCreated, submission)
}

// settleIfReady runs the event-triggered settlement path for one task on a
// fresh context, detached from the request.
func (h *Handler) settleIfReady(taskID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	h.engine.CheckAndSettle(ctx, taskID)
}
