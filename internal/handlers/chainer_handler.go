package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/chainfund/backend/internal/models"
	"github.com/chainfund/backend/internal/services/referral"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChainerHandler handles chainer enrolment and stats
type ChainerHandler struct {
	referralSvc *referral.ReferralService
	frontendURL string
}

// NewChainerHandler creates a new chainer handler
func NewChainerHandler(referralSvc *referral.ReferralService, frontendURL string) *ChainerHandler {
	return &ChainerHandler{referralSvc: referralSvc, frontendURL: frontendURL}
}

// CreateChainerRequest is the enrolment request body
type CreateChainerRequest struct {
	UserID                uuid.UUID                    `json:"user_id" binding:"required"`
	CommissionDestination models.CommissionDestination `json:"commission_destination"`
	CharityChoiceID       *uuid.UUID                   `json:"charity_choice_id,omitempty"`
}

// CreateChainer handles POST /api/campaigns/:id/chainers
func (h *ChainerHandler) CreateChainer(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
		return
	}

	var req CreateChainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	chainer, err := h.referralSvc.CreateChainer(req.UserID, campaignID, req.CommissionDestination, req.CharityChoiceID)
	if err != nil {
		switch {
		case errors.Is(err, referral.ErrInvalidDestination):
			c.JSON(http.StatusBadRequest, gin.H{"error": "donate_other requires a charity choice"})
		case errors.Is(err, referral.ErrAlreadyChainer):
			c.JSON(http.StatusConflict, gin.H{"error": "already a chainer for this campaign"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create chainer"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"chainer":   chainer,
		"share_url": fmt.Sprintf("%s/c/%s", h.frontendURL, chainer.ReferralCode),
	})
}

// GetChainer handles GET /api/chainers/:id, returning the chainer with
// its live counters
func (h *ChainerHandler) GetChainer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chainer id"})
		return
	}

	chainer, err := h.referralSvc.GetChainer(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chainer not found"})
		return
	}

	c.JSON(http.StatusOK, chainer)
}
