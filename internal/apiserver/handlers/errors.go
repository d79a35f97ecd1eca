package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/crowdrank/crowdrank-backend/internal/consensus"
	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/payout"
	"github.com/crowdrank/crowdrank-backend/pkg/pricing"
)

// writeError renders the uniform error body.
func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": message,
		"code":  code,
	})
}

// respondError translates the error taxonomy into HTTP statuses. Unknown
// errors collapse to 500 without leaking their text.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrTaskNotFound):
		writeError(c, http.StatusNotFound, "TASK_NOT_FOUND", "Task not found")
	case errors.Is(err, ledger.ErrOptionNotFound):
		writeError(c, http.StatusNotFound, "OPTION_NOT_FOUND", "Option not found for task")
	case errors.Is(err, ledger.ErrWorkerNotFound):
		writeError(c, http.StatusNotFound, "WORKER_NOT_FOUND", "Worker not found")
	case errors.Is(err, ledger.ErrResultNotFound):
		writeError(c, http.StatusNotFound, "RESULT_NOT_FOUND", "Task has not been settled yet")
	case errors.Is(err, ledger.ErrWithdrawalNotFound):
		writeError(c, http.StatusNotFound, "WITHDRAWAL_NOT_FOUND", "Withdrawal not found")
	case errors.Is(err, ledger.ErrTaskAlreadySettled):
		writeError(c, http.StatusConflict, "TASK_ALREADY_SETTLED", "Task has already been settled")
	case errors.Is(err, ledger.ErrTaskNotOpen):
		writeError(c, http.StatusConflict, "TASK_NOT_OPEN", "Task is not accepting submissions")
	case errors.Is(err, ledger.ErrDuplicateSubmission):
		writeError(c, http.StatusConflict, "DUPLICATE_SUBMISSION", "Worker already reviewed this task")
	case errors.Is(err, consensus.ErrNotReady):
		writeError(c, http.StatusConflict, "TASK_NOT_READY", "Task has not reached the completion threshold")
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(c, http.StatusBadRequest, "INSUFFICIENT_BALANCE", "Pending balance does not cover the amount")
	case errors.Is(err, ledger.ErrInvalidOptionCount):
		writeError(c, http.StatusBadRequest, "INVALID_OPTION_COUNT", "Task needs between 2 and 5 options")
	case errors.Is(err, pricing.ErrInvalidPricingTier):
		writeError(c, http.StatusBadRequest, "INVALID_PRICING_TIER", "No price for that category and review tier")
	case errors.Is(err, payout.ErrPayoutFailed):
		writeError(c, http.StatusBadGateway, "PAYOUT_FAILED", "Payout dispatch failed")
	default:
		h.logger.Errorf("Unhandled error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// parseIDParam reads a positive integer path parameter, answering 400 on
// anything else.
func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "INVALID_ID", "Path parameter "+name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
