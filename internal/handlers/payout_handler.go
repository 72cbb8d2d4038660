package handlers

import (
	"errors"
	"net/http"

	"github.com/chainfund/backend/internal/jobs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PayoutHandler exposes operator controls over the payout batch
type PayoutHandler struct {
	payoutJob *jobs.PayoutBatchJob
}

// NewPayoutHandler creates a new payout handler
func NewPayoutHandler(payoutJob *jobs.PayoutBatchJob) *PayoutHandler {
	return &PayoutHandler{payoutJob: payoutJob}
}

// RunBatchRequest is the manual batch trigger request body
type RunBatchRequest struct {
	Limit int `json:"limit"`
}

// RunBatch handles POST /api/admin/payouts/run, triggering a payout batch
// outside the schedule
func (h *PayoutHandler) RunBatch(c *gin.Context) {
	var req RunBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.payoutJob.RunBatch(c.Request.Context(), req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payout batch failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// RequeuePayout handles POST /api/admin/payouts/:id/requeue, moving a failed
// payout back to pending for the next batch run
func (h *PayoutHandler) RequeuePayout(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payout id"})
		return
	}

	if err := h.payoutJob.Requeue(id); err != nil {
		if errors.Is(err, jobs.ErrPayoutNotFailed) {
			c.JSON(http.StatusConflict, gin.H{"error": "payout is not in failed state"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to requeue payout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "payout requeued"})
}
