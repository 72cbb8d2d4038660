package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/chainfund/backend/internal/config"
	"github.com/chainfund/backend/internal/handlers"
	"github.com/chainfund/backend/internal/middleware"
)

// Handlers bundles the handlers the router needs
type Handlers struct {
	Referral *handlers.ReferralHandler
	Chainer  *handlers.ChainerHandler
	Donation *handlers.DonationHandler
	Webhook  *handlers.WebhookHandler
	Payout   *handlers.PayoutHandler
}

// SetupRouter builds the Gin engine with all middleware and routes
func SetupRouter(cfg *config.Config, h Handlers) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Referral redirect takes anonymous public traffic, so it gets its own
	// per-IP limiter instead of auth
	clickLimiter := middleware.NewRateLimiter(20, 40)
	router.GET("/c/:code", clickLimiter.IPRateLimiterMiddleware(), h.Referral.RedirectReferralLink)

	api := router.Group("/api")
	{
		api.POST("/donations", h.Donation.CreateDonation)
		api.GET("/donations/:id", h.Donation.GetDonation)

		api.POST("/webhooks/paystack", h.Webhook.HandlePaystackWebhook)
		api.GET("/payments/callback", h.Webhook.HandlePaymentCallback)

		authed := api.Group("")
		authed.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
		{
			authed.POST("/campaigns/:id/chainers", h.Chainer.CreateChainer)
			authed.GET("/chainers/:id", h.Chainer.GetChainer)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.AdminMiddleware())
		{
			admin.POST("/payouts/run", h.Payout.RunBatch)
			admin.POST("/payouts/:id/requeue", h.Payout.RequeuePayout)
		}
	}

	return router
}
