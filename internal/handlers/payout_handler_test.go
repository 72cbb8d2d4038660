package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chainfund/backend/internal/jobs"
	"github.com/chainfund/backend/internal/models"
	"github.com/chainfund/backend/internal/services/payment"
)

func setupPayoutRouter(t *testing.T) (*gorm.DB, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Campaign{},
		&models.Chainer{},
		&models.Donation{},
		&models.CommissionPayout{},
		&models.BankAccount{},
	))
	t.Cleanup(func() { sqlDB.Close() })

	paymentSvc := payment.NewPaymentService(db)
	paymentSvc.RegisterProvider(payment.ProviderPaystack, newFakeGateway())

	handler := NewPayoutHandler(jobs.NewPayoutBatchJob(db, paymentSvc))
	router := gin.New()
	router.POST("/api/admin/payouts/run", handler.RunBatch)
	router.POST("/api/admin/payouts/:id/requeue", handler.RequeuePayout)
	return db, router
}

func seedEligiblePayout(t *testing.T, db *gorm.DB) *models.CommissionPayout {
	campaign := models.Campaign{
		Title:    "Shelter Fund",
		Slug:     fmt.Sprintf("shelter-fund-%s", uuid.New().String()[:8]),
		Currency: models.CurrencyNGN,
		Active:   true,
	}
	require.NoError(t, db.Create(&campaign).Error)

	userID := uuid.New()
	chainer := models.Chainer{
		UserID:                userID,
		CampaignID:            campaign.ID,
		ReferralCode:          fmt.Sprintf("ref%s", uuid.New().String()[:8]),
		CommissionRate:        5.0,
		CommissionDestination: models.DestinationKeep,
	}
	require.NoError(t, db.Create(&chainer).Error)

	require.NoError(t, db.Create(&models.BankAccount{
		UserID:        userID,
		AccountName:   "Payout Recipient",
		AccountNumber: "0123456789",
		BankCode:      "058",
		Currency:      models.CurrencyNGN,
		RecipientCode: fmt.Sprintf("RCP_%s", uuid.New().String()[:8]),
		Verified:      true,
	}).Error)

	donation := models.Donation{
		CampaignID:      campaign.ID,
		DonorEmail:      "donor@example.com",
		Amount:          10000,
		Currency:        models.CurrencyNGN,
		PaymentStatus:   models.PaymentStatusCompleted,
		PaymentIntentID: fmt.Sprintf("DON_%s", uuid.New().String()[:10]),
		ChainerID:       &chainer.ID,
	}
	require.NoError(t, db.Create(&donation).Error)

	payout := models.CommissionPayout{
		ChainerID:   chainer.ID,
		CampaignID:  campaign.ID,
		DonationID:  donation.ID,
		Amount:      500,
		Currency:    models.CurrencyNGN,
		Destination: models.DestinationKeep,
		Status:      models.PayoutStatusPending,
	}
	require.NoError(t, db.Create(&payout).Error)
	return &payout
}

func TestRunBatchResponseShape(t *testing.T) {
	db, router := setupPayoutRouter(t)
	seedEligiblePayout(t, db)

	body := bytes.NewReader([]byte(`{"limit": 10}`))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/payouts/run", body)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	for _, key := range []string{"claimed", "processed", "failed", "results"} {
		assert.Contains(t, resp, key)
	}

	var parsed struct {
		Claimed   int `json:"claimed"`
		Processed int `json:"processed"`
		Failed    int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	assert.Equal(t, 1, parsed.Claimed)
	assert.Equal(t, 1, parsed.Processed)
	assert.Equal(t, 0, parsed.Failed)
}

func TestRequeuePayoutEndpoint(t *testing.T) {
	db, router := setupPayoutRouter(t)
	payout := seedEligiblePayout(t, db)

	t.Run("non-failed payout returns 409", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/admin/payouts/"+payout.ID.String()+"/requeue", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("failed payout is requeued", func(t *testing.T) {
		require.NoError(t, db.Model(&models.CommissionPayout{}).
			Where("id = ?", payout.ID).
			Update("status", models.PayoutStatusFailed).Error)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/admin/payouts/"+payout.ID.String()+"/requeue", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		var got models.CommissionPayout
		require.NoError(t, db.First(&got, "id = ?", payout.ID).Error)
		assert.Equal(t, models.PayoutStatusPending, got.Status)
	})

	t.Run("malformed id returns 400", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/admin/payouts/not-a-uuid/requeue", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
