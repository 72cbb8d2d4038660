package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/chainfund/backend/internal/models"
	"github.com/chainfund/backend/internal/services/payment"
	"github.com/chainfund/backend/internal/services/reconcile"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookHandler handles payment provider webhooks and browser callbacks
type WebhookHandler struct {
	db          *gorm.DB
	paymentSvc  *payment.PaymentService
	reconciler  *reconcile.Reconciler
	frontendURL string
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(db *gorm.DB, paymentSvc *payment.PaymentService, reconciler *reconcile.Reconciler, frontendURL string) *WebhookHandler {
	return &WebhookHandler{
		db:          db,
		paymentSvc:  paymentSvc,
		reconciler:  reconciler,
		frontendURL: frontendURL,
	}
}

// HandlePaystackWebhook handles POST /api/webhooks/paystack. The payload is
// only a trigger; the reconciler re-verifies the transaction with the
// provider before changing any state, so replayed or forged deliveries with
// a valid signature cannot corrupt a donation.
func (h *WebhookHandler) HandlePaystackWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	provider, err := h.paymentSvc.Provider(payment.ProviderPaystack)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment provider unavailable"})
		return
	}

	event, err := provider.ParseWebhook(body, c.GetHeader("x-paystack-signature"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		return
	}

	webhook := models.PaymentWebhook{
		Provider:  string(payment.ProviderPaystack),
		Event:     event.Event,
		Reference: event.Reference,
		RawData:   models.JSON(event.Raw),
	}
	if err := h.db.Create(&webhook).Error; err != nil {
		log.Printf("Failed to persist webhook audit record: %v", err)
	}

	donation, err := h.reconciler.Reconcile(c.Request.Context(), event.Reference)
	if err != nil {
		if errors.Is(err, reconcile.ErrDonationNotFound) {
			// Not one of ours; acknowledge so the provider stops
			// redelivering
			c.JSON(http.StatusOK, gin.H{"message": "ignored"})
			return
		}
		log.Printf("Failed to reconcile webhook for %s: %v", event.Reference, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
		return
	}

	h.markWebhookProcessed(webhook.ID)

	c.JSON(http.StatusOK, gin.H{"success": true, "donation": donation})
}

// HandlePaymentCallback handles GET /api/payments/callback, the browser
// redirect after checkout. It always redirects to the frontend, never
// renders JSON.
func (h *WebhookHandler) HandlePaymentCallback(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		reference = c.Query("trxref")
	}
	if reference == "" {
		c.Redirect(http.StatusFound, fmt.Sprintf("%s/donations/failure", h.frontendURL))
		return
	}

	donation, err := h.reconciler.Reconcile(c.Request.Context(), reference)
	if err != nil || donation.PaymentStatus != models.PaymentStatusCompleted {
		c.Redirect(http.StatusFound, fmt.Sprintf("%s/donations/failure?reference=%s", h.frontendURL, reference))
		return
	}

	c.Redirect(http.StatusFound, fmt.Sprintf("%s/donations/success?reference=%s", h.frontendURL, reference))
}

func (h *WebhookHandler) markWebhookProcessed(id uuid.UUID) {
	now := time.Now()
	if err := h.db.Model(&models.PaymentWebhook{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": now}).Error; err != nil {
		log.Printf("Failed to mark webhook processed: %v", err)
	}
}
