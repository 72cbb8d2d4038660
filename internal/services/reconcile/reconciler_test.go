package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chainfund/backend/internal/models"
	"github.com/chainfund/backend/internal/services/commission"
	"github.com/chainfund/backend/internal/services/payment"
)

// fakeProvider returns canned verification results per reference
type fakeProvider struct {
	mu      sync.Mutex
	results map[string]*payment.VerificationResult
	verifys int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{results: make(map[string]*payment.VerificationResult)}
}

func (f *fakeProvider) setResult(reference string, status models.PaymentStatus, amount float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[reference] = &payment.VerificationResult{
		Reference: reference,
		Status:    status,
		Amount:    amount,
		Currency:  models.CurrencyNGN,
	}
}

func (f *fakeProvider) VerifyTransaction(ctx context.Context, reference string) (*payment.VerificationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifys++
	result, ok := f.results[reference]
	if !ok {
		return nil, errors.New("transaction not found")
	}
	return result, nil
}

func (f *fakeProvider) InitiateDonation(ctx context.Context, donation *models.Donation, callbackURL string) (string, error) {
	return "https://checkout.example.com/" + donation.PaymentIntentID, nil
}

func (f *fakeProvider) InitiateTransfer(ctx context.Context, req payment.TransferRequest) (string, error) {
	return "TRF_" + req.Reference, nil
}

func (f *fakeProvider) ParseWebhook(body []byte, signature string) (*payment.WebhookEvent, error) {
	return nil, errors.New("not implemented")
}

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Campaign{},
		&models.Chainer{},
		&models.Referral{},
		&models.Donation{},
		&models.CommissionPayout{},
	))

	t.Cleanup(func() {
		sqlDB.Close()
	})

	return db
}

func setupReconciler(t *testing.T) (*gorm.DB, *Reconciler, *fakeProvider) {
	db := setupTestDB(t)

	provider := newFakeProvider()
	paymentSvc := payment.NewPaymentService(db)
	paymentSvc.RegisterProvider(payment.ProviderPaystack, provider)

	reconciler := NewReconciler(db, paymentSvc, commission.NewCommissionService(db))
	return db, reconciler, provider
}

type scenario struct {
	campaign *models.Campaign
	chainer  *models.Chainer
	donorID  uuid.UUID
	donation *models.Donation
}

// createScenario builds an attributed pending donation with a recorded
// referral, mirroring the state after link click plus donation creation
func createScenario(t *testing.T, db *gorm.DB, amount float64) scenario {
	campaign := models.Campaign{
		Title:    "Flood Relief",
		Slug:     fmt.Sprintf("flood-relief-%s", uuid.New().String()[:8]),
		Currency: models.CurrencyNGN,
		Active:   true,
	}
	require.NoError(t, db.Create(&campaign).Error)

	chainer := models.Chainer{
		UserID:                uuid.New(),
		CampaignID:            campaign.ID,
		ReferralCode:          fmt.Sprintf("ref%s", uuid.New().String()[:8]),
		CommissionRate:        5.0,
		CommissionDestination: models.DestinationKeep,
	}
	require.NoError(t, db.Create(&chainer).Error)

	donorID := uuid.New()
	require.NoError(t, db.Create(&models.Referral{
		ReferrerID:   chainer.ID,
		ReferredID:   donorID,
		CampaignID:   campaign.ID,
		ReferralCode: chainer.ReferralCode,
	}).Error)

	donation := models.Donation{
		CampaignID:      campaign.ID,
		DonorID:         &donorID,
		DonorEmail:      "donor@example.com",
		Amount:          amount,
		Currency:        models.CurrencyNGN,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentIntentID: fmt.Sprintf("DON_%s", uuid.New().String()[:10]),
		ChainerID:       &chainer.ID,
		ReferralCode:    chainer.ReferralCode,
	}
	require.NoError(t, db.Create(&donation).Error)

	return scenario{campaign: &campaign, chainer: &chainer, donorID: donorID, donation: &donation}
}

func TestReconcileUnknownReference(t *testing.T) {
	_, reconciler, provider := setupReconciler(t)
	provider.setResult("DON_unknown", models.PaymentStatusCompleted, 100)

	_, err := reconciler.Reconcile(context.Background(), "DON_unknown")
	assert.ErrorIs(t, err, ErrDonationNotFound)
}

func TestReconcileCompleted(t *testing.T) {
	db, reconciler, provider := setupReconciler(t)
	s := createScenario(t, db, 10000)
	provider.setResult(s.donation.PaymentIntentID, models.PaymentStatusCompleted, 10000)

	donation, err := reconciler.Reconcile(context.Background(), s.donation.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, donation.PaymentStatus)
	assert.NotNil(t, donation.ProcessedAt)

	var campaign models.Campaign
	require.NoError(t, db.First(&campaign, "id = ?", s.campaign.ID).Error)
	assert.Equal(t, 10000.0, campaign.AmountRaised)

	var chainer models.Chainer
	require.NoError(t, db.First(&chainer, "id = ?", s.chainer.ID).Error)
	assert.Equal(t, 10000.0, chainer.TotalRaised)
	assert.Equal(t, int64(1), chainer.Conversions)
	assert.Equal(t, 500.0, chainer.CommissionEarned, "5 percent of 10000")

	var referral models.Referral
	require.NoError(t, db.First(&referral, "referrer_id = ? AND referred_id = ?", s.chainer.ID, s.donorID).Error)
	assert.True(t, referral.IsConverted)

	var payout models.CommissionPayout
	require.NoError(t, db.First(&payout, "donation_id = ?", s.donation.ID).Error)
	assert.Equal(t, 500.0, payout.Amount)
	assert.Equal(t, models.PayoutStatusPending, payout.Status)
}

func TestReconcileDuplicateDelivery(t *testing.T) {
	db, reconciler, provider := setupReconciler(t)
	s := createScenario(t, db, 10000)
	provider.setResult(s.donation.PaymentIntentID, models.PaymentStatusCompleted, 10000)

	for i := 0; i < 3; i++ {
		donation, err := reconciler.Reconcile(context.Background(), s.donation.PaymentIntentID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusCompleted, donation.PaymentStatus)
	}

	// Every side effect was applied exactly once
	var campaign models.Campaign
	require.NoError(t, db.First(&campaign, "id = ?", s.campaign.ID).Error)
	assert.Equal(t, 10000.0, campaign.AmountRaised)

	var chainer models.Chainer
	require.NoError(t, db.First(&chainer, "id = ?", s.chainer.ID).Error)
	assert.Equal(t, int64(1), chainer.Conversions)
	assert.Equal(t, 500.0, chainer.CommissionEarned)

	var payouts int64
	require.NoError(t, db.Model(&models.CommissionPayout{}).Where("donation_id = ?", s.donation.ID).Count(&payouts).Error)
	assert.Equal(t, int64(1), payouts)
}

func TestReconcileSettlementRetriedOnRedelivery(t *testing.T) {
	db, reconciler, provider := setupReconciler(t)
	s := createScenario(t, db, 10000)
	provider.setResult(s.donation.PaymentIntentID, models.PaymentStatusCompleted, 10000)

	// Take the payout store away so settlement hits a storage error
	// after the status transition has committed
	require.NoError(t, db.Migrator().DropTable(&models.CommissionPayout{}))

	_, err := reconciler.Reconcile(context.Background(), s.donation.PaymentIntentID)
	require.Error(t, err, "a lost settlement must surface, not be swallowed")

	// The status transition itself committed
	var donation models.Donation
	require.NoError(t, db.First(&donation, "id = ?", s.donation.ID).Error)
	assert.Equal(t, models.PaymentStatusCompleted, donation.PaymentStatus)

	// Storage recovers; the redelivery settles the commission
	require.NoError(t, db.AutoMigrate(&models.CommissionPayout{}))

	got, err := reconciler.Reconcile(context.Background(), s.donation.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, got.PaymentStatus)

	var payouts int64
	require.NoError(t, db.Model(&models.CommissionPayout{}).Where("donation_id = ?", s.donation.ID).Count(&payouts).Error)
	assert.Equal(t, int64(1), payouts)

	var chainer models.Chainer
	require.NoError(t, db.First(&chainer, "id = ?", s.chainer.ID).Error)
	assert.Equal(t, 500.0, chainer.CommissionEarned)

	// Further redeliveries stay no-ops
	_, err = reconciler.Reconcile(context.Background(), s.donation.PaymentIntentID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.CommissionPayout{}).Where("donation_id = ?", s.donation.ID).Count(&payouts).Error)
	assert.Equal(t, int64(1), payouts)
}

func TestReconcileFailed(t *testing.T) {
	db, reconciler, provider := setupReconciler(t)
	s := createScenario(t, db, 10000)
	provider.setResult(s.donation.PaymentIntentID, models.PaymentStatusFailed, 10000)

	donation, err := reconciler.Reconcile(context.Background(), s.donation.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, donation.PaymentStatus)

	// No totals move and no commission is produced for a failed payment
	var campaign models.Campaign
	require.NoError(t, db.First(&campaign, "id = ?", s.campaign.ID).Error)
	assert.Equal(t, 0.0, campaign.AmountRaised)

	var payouts int64
	require.NoError(t, db.Model(&models.CommissionPayout{}).Count(&payouts).Error)
	assert.Equal(t, int64(0), payouts)

	// A later contradictory delivery cannot resurrect the donation
	provider.setResult(s.donation.PaymentIntentID, models.PaymentStatusCompleted, 10000)
	donation, err = reconciler.Reconcile(context.Background(), s.donation.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, donation.PaymentStatus)
}

func TestReconcileStillPending(t *testing.T) {
	db, reconciler, provider := setupReconciler(t)
	s := createScenario(t, db, 10000)
	provider.setResult(s.donation.PaymentIntentID, models.PaymentStatusPending, 10000)

	donation, err := reconciler.Reconcile(context.Background(), s.donation.PaymentIntentID)
	assert.ErrorIs(t, err, ErrVerificationPending)
	assert.Equal(t, models.PaymentStatusPending, donation.PaymentStatus)
}

func TestReconcileTerminalSkipsVerification(t *testing.T) {
	db, reconciler, provider := setupReconciler(t)
	s := createScenario(t, db, 10000)
	provider.setResult(s.donation.PaymentIntentID, models.PaymentStatusCompleted, 10000)

	_, err := reconciler.Reconcile(context.Background(), s.donation.PaymentIntentID)
	require.NoError(t, err)

	before := provider.verifys
	_, err = reconciler.Reconcile(context.Background(), s.donation.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, before, provider.verifys, "a settled donation needs no provider call")
}

func TestReconcileUnattributedDonation(t *testing.T) {
	db, reconciler, provider := setupReconciler(t)

	campaign := models.Campaign{
		Title:    "Library Fund",
		Slug:     fmt.Sprintf("library-fund-%s", uuid.New().String()[:8]),
		Currency: models.CurrencyNGN,
		Active:   true,
	}
	require.NoError(t, db.Create(&campaign).Error)

	donation := models.Donation{
		CampaignID:      campaign.ID,
		DonorEmail:      "donor@example.com",
		Amount:          2500,
		Currency:        models.CurrencyNGN,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentIntentID: fmt.Sprintf("DON_%s", uuid.New().String()[:10]),
	}
	require.NoError(t, db.Create(&donation).Error)
	provider.setResult(donation.PaymentIntentID, models.PaymentStatusCompleted, 2500)

	got, err := reconciler.Reconcile(context.Background(), donation.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, got.PaymentStatus)

	var updated models.Campaign
	require.NoError(t, db.First(&updated, "id = ?", campaign.ID).Error)
	assert.Equal(t, 2500.0, updated.AmountRaised)

	var payouts int64
	require.NoError(t, db.Model(&models.CommissionPayout{}).Count(&payouts).Error)
	assert.Equal(t, int64(0), payouts, "no chainer, no commission")
}
