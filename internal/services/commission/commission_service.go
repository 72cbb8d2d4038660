package commission

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chainfund/backend/internal/models"
	"github.com/chainfund/backend/internal/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidDestination means a chainer is configured for donate_other
// without a charity choice. Chainer creation validates this, so hitting it
// here is a data-integrity violation: callers log it and skip the payout,
// they do not fail the reconciliation.
var ErrInvalidDestination = errors.New("invalid commission destination")

// CommissionService computes commissions for completed attributed
// donations and records exactly one payout per donation
type CommissionService struct {
	db *gorm.DB
}

// NewCommissionService creates a new commission service
func NewCommissionService(db *gorm.DB) *CommissionService {
	return &CommissionService{db: db}
}

// RoundAmount rounds a monetary amount to 2 decimals, half up
func RoundAmount(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// routing is the resolved behavior for one commission destination.
// All three destinations flow through this single variant so the
// one-payout-per-donation invariant is enforced in one place.
type routing struct {
	status                models.PayoutStatus
	destinationCampaignID *uuid.UUID
	creditEarned          bool
	redonate              bool
}

func route(chainer *models.Chainer, donation *models.Donation) (routing, error) {
	switch chainer.CommissionDestination {
	case models.DestinationKeep:
		return routing{
			status:       models.PayoutStatusPending,
			creditEarned: true,
		}, nil
	case models.DestinationDonateBack:
		campaignID := donation.CampaignID
		return routing{
			status:                models.PayoutStatusCompleted,
			destinationCampaignID: &campaignID,
			redonate:              true,
		}, nil
	case models.DestinationDonateOther:
		if chainer.CharityChoiceID == nil {
			return routing{}, ErrInvalidDestination
		}
		return routing{
			status:                models.PayoutStatusCompleted,
			destinationCampaignID: chainer.CharityChoiceID,
			redonate:              true,
		}, nil
	default:
		return routing{}, ErrInvalidDestination
	}
}

// Settle computes the commission for a completed donation and records the
// payout. It is keyed on the donation ID, so a repeated call for the same
// donation is a no-op returning the existing payout.
func (s *CommissionService) Settle(donation *models.Donation, chainer *models.Chainer) (*models.CommissionPayout, error) {
	amount := RoundAmount(donation.Amount * chainer.CommissionRate / 100)

	r, err := route(chainer, donation)
	if err != nil {
		return nil, err
	}

	payout := models.CommissionPayout{
		ChainerID:             chainer.ID,
		CampaignID:            donation.CampaignID,
		DonationID:            donation.ID,
		Amount:                amount,
		Currency:              donation.Currency,
		Destination:           chainer.CommissionDestination,
		DestinationCampaignID: r.destinationCampaignID,
		Status:                r.status,
	}
	if r.status == models.PayoutStatusCompleted {
		now := time.Now()
		payout.ProcessedAt = &now
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "donation_id"}},
			DoNothing: true,
		}).Create(&payout)
		if res.Error != nil {
			return fmt.Errorf("error creating commission payout: %w", res.Error)
		}

		// Another caller already settled this donation; no side effects.
		if res.RowsAffected == 0 {
			return errAlreadySettled
		}

		if r.creditEarned {
			if err := tx.Model(&models.Chainer{}).
				Where("id = ?", chainer.ID).
				UpdateColumn("commission_earned", gorm.Expr("commission_earned + ?", amount)).Error; err != nil {
				return fmt.Errorf("error crediting commission: %w", err)
			}
		}

		if r.redonate {
			redonation := models.Donation{
				CampaignID:      *r.destinationCampaignID,
				Amount:          amount,
				Currency:        donation.Currency,
				PaymentStatus:   models.PaymentStatusCompleted,
				PaymentIntentID: utils.GenerateReference("CHN"),
				ProcessedAt:     payout.ProcessedAt,
			}
			if err := tx.Create(&redonation).Error; err != nil {
				return fmt.Errorf("error creating commission redonation: %w", err)
			}
			if err := tx.Model(&models.Campaign{}).
				Where("id = ?", *r.destinationCampaignID).
				UpdateColumn("amount_raised", gorm.Expr("amount_raised + ?", amount)).Error; err != nil {
				return fmt.Errorf("error updating campaign total: %w", err)
			}
		}

		return nil
	})
	if errors.Is(err, errAlreadySettled) {
		var existing models.CommissionPayout
		if findErr := s.db.First(&existing, "donation_id = ?", donation.ID).Error; findErr != nil {
			return nil, fmt.Errorf("error loading existing payout: %w", findErr)
		}
		return &existing, nil
	}
	if err != nil {
		return nil, err
	}

	return &payout, nil
}

var errAlreadySettled = errors.New("commission already settled for donation")
