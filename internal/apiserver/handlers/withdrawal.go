package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/payout"
)

// withdrawalRequest is the body of POST /api/withdrawals.
type withdrawalRequest struct {
	WorkerID int64 `json:"worker_id" binding:"required"`
	Amount   int64 `json:"amount" binding:"required"`
}

// CreateWithdrawal moves pending balance out to the worker's wallet. The
// response always carries the terminal withdrawal record; a failed payout
// answers 502 with the compensating rollback already applied.
func (h *Handler) CreateWithdrawal(c *gin.Context) {
	logger := h.requestLogger(c)

	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", "Body must carry worker_id and amount")
		return
	}
	if req.Amount <= 0 {
		writeError(c, http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be positive")
		return
	}

	withdrawal, err := h.withdrawals.RequestWithdrawal(c.Request.Context(), req.WorkerID, req.Amount)
	if err != nil {
		if errors.Is(err, payout.ErrPayoutFailed) {
			h.metrics.WithdrawalsTotal.WithLabelValues(string(ledger.WithdrawalStatusFailure)).Inc()
			logger.Warnf("[CreateWithdrawal] Payout failed for worker %d, amount refunded: %v", req.WorkerID, err)
			c.JSON(http.StatusBadGateway, gin.H{
				"error":      "Payout dispatch failed",
				"code":       "PAYOUT_FAILED",
				"withdrawal": withdrawal,
			})
			return
		}
		logger.Warnf("[CreateWithdrawal] Rejected for worker %d: %v", req.WorkerID, err)
		h.respondError(c, err)
		return
	}

	h.metrics.WithdrawalsTotal.WithLabelValues(string(withdrawal.Status)).Inc()
	logger.Infof("[CreateWithdrawal] Worker %d withdrew %d, reference %s", req.WorkerID, req.Amount, withdrawal.Reference)
	c.JSON(http.StatusCreated, withdrawal)
}

// GetWithdrawal returns one withdrawal record.
func (h *Handler) GetWithdrawal(c *gin.Context) {
	withdrawalID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	trackStore := h.metrics.TrackStoreOperation("read", "withdrawals")
	withdrawal, err := h.store.GetWithdrawal(c.Request.Context(), withdrawalID)
	trackStore(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, withdrawal)
}

// ListWorkerWithdrawals returns a worker's withdrawal history, newest first.
func (h *Handler) ListWorkerWithdrawals(c *gin.Context) {
	workerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if _, err := h.store.GetWorker(c.Request.Context(), workerID); err != nil {
		h.respondError(c, err)
		return
	}

	trackStore := h.metrics.TrackStoreOperation("read", "withdrawals")
	withdrawals, err := h.store.ListWithdrawalsForWorker(c.Request.Context(), workerID)
	trackStore(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"worker_id":   workerID,
		"withdrawals": withdrawals,
	})
}
