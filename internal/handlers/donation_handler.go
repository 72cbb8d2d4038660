package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/chainfund/backend/internal/models"
	"github.com/chainfund/backend/internal/services/payment"
	"github.com/chainfund/backend/internal/services/referral"
	"github.com/chainfund/backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DonationHandler handles donation creation and lookup
type DonationHandler struct {
	db          *gorm.DB
	referralSvc *referral.ReferralService
	paymentSvc  *payment.PaymentService
	baseURL     string
}

// NewDonationHandler creates a new donation handler
func NewDonationHandler(db *gorm.DB, referralSvc *referral.ReferralService, paymentSvc *payment.PaymentService, baseURL string) *DonationHandler {
	return &DonationHandler{
		db:          db,
		referralSvc: referralSvc,
		paymentSvc:  paymentSvc,
		baseURL:     baseURL,
	}
}

// CreateDonationRequest is the donation initiation request body
type CreateDonationRequest struct {
	CampaignID   uuid.UUID  `json:"campaign_id" binding:"required"`
	DonorID      *uuid.UUID `json:"donor_id,omitempty"`
	DonorEmail   string     `json:"donor_email" binding:"required,email"`
	Amount       float64    `json:"amount" binding:"required,gt=0"`
	ReferralCode string     `json:"referral_code,omitempty"`
}

// CreateDonation handles POST /api/donations. The donation is created in
// pending status and the caller is handed the provider's authorization URL;
// the status only advances when reconciliation verifies the transaction.
func (h *DonationHandler) CreateDonation(c *gin.Context) {
	var req CreateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var campaign models.Campaign
	if err := h.db.First(&campaign, "id = ? AND active = ?", req.CampaignID, true).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}

	donation := models.Donation{
		CampaignID:      campaign.ID,
		DonorID:         req.DonorID,
		DonorEmail:      req.DonorEmail,
		Amount:          req.Amount,
		Currency:        campaign.Currency,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentIntentID: utils.GenerateReference("DON"),
	}

	// A bad referral code never blocks the donation, it just goes
	// unattributed
	if req.ReferralCode != "" {
		chainer, err := h.referralSvc.Attribute(req.DonorID, campaign.ID, req.ReferralCode)
		if err != nil {
			log.Printf("Failed to attribute referral code %s: %v", req.ReferralCode, err)
		} else if chainer != nil {
			chainerID := chainer.ID
			donation.ChainerID = &chainerID
			donation.ReferralCode = chainer.ReferralCode
		}
	}

	if err := h.db.Create(&donation).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create donation"})
		return
	}

	provider, err := h.paymentSvc.Provider(payment.ProviderPaystack)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment provider unavailable"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	callbackURL := fmt.Sprintf("%s/api/payments/callback", h.baseURL)
	authorizationURL, err := provider.InitiateDonation(ctx, &donation, callbackURL)
	if err != nil {
		log.Printf("Failed to initiate payment for donation %s: %v", donation.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to initiate payment"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"donation":          donation,
		"authorization_url": authorizationURL,
	})
}

// GetDonation handles GET /api/donations/:id
func (h *DonationHandler) GetDonation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid donation id"})
		return
	}

	var donation models.Donation
	if err := h.db.First(&donation, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "donation not found"})
		return
	}

	c.JSON(http.StatusOK, donation)
}
