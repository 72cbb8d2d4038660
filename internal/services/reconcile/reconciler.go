package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chainfund/backend/internal/models"
	"github.com/chainfund/backend/internal/services/commission"
	"github.com/chainfund/backend/internal/services/payment"
	"gorm.io/gorm"
)

var (
	// ErrDonationNotFound means no donation matches the provider reference.
	// Callers acknowledge and drop such events; a redelivered or foreign
	// event must never crash the ingester.
	ErrDonationNotFound = errors.New("donation not found")
	// ErrVerificationPending means the provider has not settled the
	// transaction yet. Retryable: the donation stays pending.
	ErrVerificationPending = errors.New("transaction still pending with provider")
)

// Reconciler ingests provider verification results and drives the
// donation status state machine. Transitions happen through a conditional
// update guarded on the pending status, so concurrent deliveries of the
// same event race safely: exactly one wins, the rest observe a terminal
// donation and report success.
type Reconciler struct {
	db            *gorm.DB
	payments      *payment.PaymentService
	commissions   *commission.CommissionService
	verifyTimeout time.Duration
}

// NewReconciler creates a new reconciler
func NewReconciler(db *gorm.DB, payments *payment.PaymentService, commissions *commission.CommissionService) *Reconciler {
	return &Reconciler{
		db:            db,
		payments:      payments,
		commissions:   commissions,
		verifyTimeout: 15 * time.Second,
	}
}

// Reconcile resolves the donation behind a provider transaction reference
// against the provider's authoritative record and applies the resulting
// status transition. Safe to call any number of times per reference.
func (r *Reconciler) Reconcile(ctx context.Context, reference string) (*models.Donation, error) {
	var donation models.Donation
	if err := r.db.First(&donation, "payment_intent_id = ?", reference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDonationNotFound
		}
		return nil, fmt.Errorf("error finding donation: %w", err)
	}

	// Already settled: a redelivered notification is a success no-op,
	// except that a completed attributed donation re-checks its commission.
	// Settlement is idempotent on the donation ID, so this is how a
	// settlement that failed after the status transition gets retried
	// on the next delivery instead of being lost.
	if donation.PaymentStatus.Terminal() {
		if donation.PaymentStatus == models.PaymentStatusCompleted && donation.ChainerID != nil {
			if err := r.ensureSettled(&donation); err != nil {
				return nil, err
			}
		}
		return &donation, nil
	}

	// The event payload is only a trigger. The provider's verify endpoint
	// is the ground truth for the final status.
	provider, err := r.payments.Provider(payment.ProviderPaystack)
	if err != nil {
		return nil, err
	}

	vctx, cancel := context.WithTimeout(ctx, r.verifyTimeout)
	defer cancel()

	result, err := provider.VerifyTransaction(vctx, reference)
	if err != nil {
		return nil, fmt.Errorf("verification failed: %w", err)
	}

	switch result.Status {
	case models.PaymentStatusCompleted:
		return r.complete(&donation)
	case models.PaymentStatusFailed:
		return r.fail(&donation)
	default:
		return &donation, ErrVerificationPending
	}
}

// complete applies the pending -> completed transition. Only the caller
// that wins the conditional update runs the downstream effects: referral
// conversion, chainer totals and commission settlement.
func (r *Reconciler) complete(donation *models.Donation) (*models.Donation, error) {
	now := time.Now()

	var won bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Donation{}).
			Where("id = ? AND payment_status = ?", donation.ID, models.PaymentStatusPending).
			Updates(map[string]interface{}{
				"payment_status": models.PaymentStatusCompleted,
				"processed_at":   now,
				"updated_at":     now,
			})
		if res.Error != nil {
			return fmt.Errorf("error completing donation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race; the winner already applied all effects.
			return nil
		}
		won = true

		if err := tx.Model(&models.Campaign{}).
			Where("id = ?", donation.CampaignID).
			UpdateColumn("amount_raised", gorm.Expr("amount_raised + ?", donation.Amount)).Error; err != nil {
			return fmt.Errorf("error updating campaign total: %w", err)
		}

		if donation.ChainerID == nil {
			return nil
		}

		if err := tx.Model(&models.Chainer{}).
			Where("id = ?", *donation.ChainerID).
			UpdateColumn("total_raised", gorm.Expr("total_raised + ?", donation.Amount)).Error; err != nil {
			return fmt.Errorf("error updating chainer total: %w", err)
		}

		if donation.DonorID != nil {
			res := tx.Model(&models.Referral{}).
				Where("referrer_id = ? AND referred_id = ? AND campaign_id = ? AND is_converted = ?",
					*donation.ChainerID, *donation.DonorID, donation.CampaignID, false).
				Update("is_converted", true)
			if res.Error != nil {
				return fmt.Errorf("error converting referral: %w", res.Error)
			}
			if res.RowsAffected == 1 {
				if err := tx.Model(&models.Chainer{}).
					Where("id = ?", *donation.ChainerID).
					UpdateColumn("conversions", gorm.Expr("conversions + ?", 1)).Error; err != nil {
					return fmt.Errorf("error incrementing conversions: %w", err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if !won {
		// Duplicate delivery; reload the terminal state the winner wrote.
		var current models.Donation
		if err := r.db.First(&current, "id = ?", donation.ID).Error; err != nil {
			return nil, fmt.Errorf("error reloading donation: %w", err)
		}
		return &current, nil
	}

	donation.PaymentStatus = models.PaymentStatusCompleted
	donation.ProcessedAt = &now

	if donation.ChainerID != nil {
		if err := r.ensureSettled(donation); err != nil {
			return nil, err
		}
	}

	return donation, nil
}

// ensureSettled invokes the commission calculator for a completed
// attributed donation. Settlement is idempotent on the donation ID, so
// callers may invoke it on every delivery. A failure propagates so the
// delivery is retried; a misconfigured destination is logged and skipped
// since no retry can repair it.
func (r *Reconciler) ensureSettled(donation *models.Donation) error {
	var chainer models.Chainer
	if err := r.db.First(&chainer, "id = ?", *donation.ChainerID).Error; err != nil {
		return fmt.Errorf("error finding chainer %s for donation %s: %w", *donation.ChainerID, donation.ID, err)
	}

	if _, err := r.commissions.Settle(donation, &chainer); err != nil {
		if errors.Is(err, commission.ErrInvalidDestination) {
			log.Printf("ERROR: invalid commission destination for chainer %s, skipping payout for donation %s", chainer.ID, donation.ID)
			return nil
		}
		return fmt.Errorf("commission settlement failed for donation %s: %w", donation.ID, err)
	}
	return nil
}

// fail applies the pending -> failed transition. No downstream effects.
func (r *Reconciler) fail(donation *models.Donation) (*models.Donation, error) {
	now := time.Now()

	res := r.db.Model(&models.Donation{}).
		Where("id = ? AND payment_status = ?", donation.ID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentStatusFailed,
			"processed_at":   now,
			"updated_at":     now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("error failing donation: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		// Duplicate delivery; reload the terminal state.
		var current models.Donation
		if err := r.db.First(&current, "id = ?", donation.ID).Error; err != nil {
			return nil, fmt.Errorf("error reloading donation: %w", err)
		}
		return &current, nil
	}

	donation.PaymentStatus = models.PaymentStatusFailed
	donation.ProcessedAt = &now
	return donation, nil
}
