package handlers

import (
	"errors"
	"net/http"

	"github.com/chainfund/backend/internal/services/referral"
	"github.com/gin-gonic/gin"
)

// ReferralHandler handles public referral-link traffic
type ReferralHandler struct {
	referralSvc *referral.ReferralService
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(referralSvc *referral.ReferralService) *ReferralHandler {
	return &ReferralHandler{referralSvc: referralSvc}
}

// RedirectReferralLink handles GET /c/:code. It records the click and
// redirects the visitor to the campaign page with the referral code
// attached.
func (h *ReferralHandler) RedirectReferralLink(c *gin.Context) {
	code := c.Param("code")

	target, err := h.referralSvc.RecordClick(
		code,
		c.ClientIP(),
		c.GetHeader("User-Agent"),
		c.GetHeader("Referer"),
	)
	if err != nil {
		if errors.Is(err, referral.ErrInvalidReferralCode) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid referral code"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve referral link"})
		return
	}

	c.Redirect(http.StatusFound, target)
}
