package referral

import (
	"errors"
	"fmt"
	"log"

	"github.com/chainfund/backend/internal/models"
	"github.com/chainfund/backend/internal/queue"
	"github.com/chainfund/backend/internal/utils"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidReferralCode means no active chainer holds the code
	ErrInvalidReferralCode = errors.New("invalid referral code")
	// ErrInvalidDestination means a chainer configuration violates the
	// destination rules (donate_other without a charity choice)
	ErrInvalidDestination = errors.New("invalid commission destination")
	// ErrAlreadyChainer means the user already holds a referral code for the campaign
	ErrAlreadyChainer = errors.New("user is already a chainer for this campaign")
)

// ClickEventQueue is the slice of the job queue the click tracker needs.
// Downstream analytics must never block the redirect path.
type ClickEventQueue interface {
	Enqueue(jobType queue.JobType, payload interface{}) (string, error)
}

// ClickAnalyticsPayload is the fire-and-forget payload queued per click
type ClickAnalyticsPayload struct {
	ClickID   uuid.UUID `json:"click_id"`
	ChainerID uuid.UUID `json:"chainer_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
}

// ReferralService resolves referral codes, tracks clicks and attributes
// donations to chainers
type ReferralService struct {
	db          *gorm.DB
	clickQueue  ClickEventQueue
	frontendURL string
	defaultRate float64
}

// NewReferralService creates a new referral service. clickQueue may be nil,
// in which case click analytics are skipped.
func NewReferralService(db *gorm.DB, clickQueue ClickEventQueue, frontendURL string, defaultRate float64) *ReferralService {
	return &ReferralService{
		db:          db,
		clickQueue:  clickQueue,
		frontendURL: frontendURL,
		defaultRate: defaultRate,
	}
}

// Resolve maps a referral code to its owning chainer. The lookup is a
// unique-index hit; codes are opaque and case-sensitive.
func (s *ReferralService) Resolve(code string) (*models.Chainer, error) {
	var chainer models.Chainer
	if err := s.db.First(&chainer, "referral_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidReferralCode
		}
		return nil, fmt.Errorf("error resolving referral code: %w", err)
	}
	return &chainer, nil
}

// RecordClick records a visit through a referral link and returns the
// campaign URL to redirect the visitor to. The click counter update is a
// single atomic increment so concurrent clicks never lose updates.
// Tracking failures degrade gracefully: a valid code always redirects.
func (s *ReferralService) RecordClick(code, ipAddress, userAgent, referrer string) (string, error) {
	chainer, err := s.Resolve(code)
	if err != nil {
		return "", err
	}

	click := models.LinkClick{
		ID:        uuid.New(),
		ChainerID: chainer.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Referrer:  referrer,
	}
	if err := s.db.Create(&click).Error; err != nil {
		log.Printf("Failed to record click for chainer %s: %v", chainer.ID, err)
	} else if err := s.db.Model(&models.Chainer{}).
		Where("id = ?", chainer.ID).
		UpdateColumn("clicks", gorm.Expr("clicks + ?", 1)).Error; err != nil {
		log.Printf("Failed to increment click counter for chainer %s: %v", chainer.ID, err)
	}

	if s.clickQueue != nil {
		if _, err := s.clickQueue.Enqueue(queue.JobTypeClickAnalytics, ClickAnalyticsPayload{
			ClickID:   click.ID,
			ChainerID: chainer.ID,
			IPAddress: ipAddress,
			UserAgent: userAgent,
		}); err != nil {
			log.Printf("Failed to queue click analytics for chainer %s: %v", chainer.ID, err)
		}
	}

	return fmt.Sprintf("%s/campaigns/%s?ref=%s", s.frontendURL, chainer.CampaignID, code), nil
}

// Attribute binds a donation draft to the chainer behind a referral code.
// An invalid or mismatched code never blocks the donation: the result is
// simply an unattributed donation (nil chainer, nil error).
//
// For identified donors a Referral row is upserted; TotalReferrals is
// incremented only when the row is created for the first time.
func (s *ReferralService) Attribute(referredID *uuid.UUID, campaignID uuid.UUID, code string) (*models.Chainer, error) {
	if code == "" {
		return nil, nil
	}

	chainer, err := s.Resolve(code)
	if err != nil {
		if errors.Is(err, ErrInvalidReferralCode) {
			log.Printf("Ignoring unknown referral code %q on donation", code)
			return nil, nil
		}
		return nil, err
	}

	if chainer.CampaignID != campaignID {
		log.Printf("Referral code %q belongs to campaign %s, not %s; donation left unattributed", code, chainer.CampaignID, campaignID)
		return nil, nil
	}

	// Anonymous donors still earn the chainer a commission, but there is
	// no referred identity to record.
	if referredID == nil {
		return chainer, nil
	}

	referral := models.Referral{
		ReferrerID:   chainer.ID,
		ReferredID:   *referredID,
		CampaignID:   campaignID,
		ReferralCode: code,
	}
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&referral)
	if res.Error != nil {
		return nil, fmt.Errorf("error creating referral: %w", res.Error)
	}

	// First-ever referral for this (referrer, referred, campaign) tuple.
	// Repeat visits hit the unique index and change nothing.
	if res.RowsAffected == 1 {
		if err := s.db.Model(&models.Chainer{}).
			Where("id = ?", chainer.ID).
			UpdateColumn("total_referrals", gorm.Expr("total_referrals + ?", 1)).Error; err != nil {
			return nil, fmt.Errorf("error incrementing referral counter: %w", err)
		}
	}

	return chainer, nil
}

// CreateChainer enrols a user as a chainer for a campaign, issuing a
// unique referral code. The code is immutable once issued.
func (s *ReferralService) CreateChainer(userID, campaignID uuid.UUID, destination models.CommissionDestination, charityChoiceID *uuid.UUID) (*models.Chainer, error) {
	if destination == "" {
		destination = models.DestinationKeep
	}
	if !destination.Valid() {
		return nil, ErrInvalidDestination
	}
	if destination == models.DestinationDonateOther && charityChoiceID == nil {
		return nil, ErrInvalidDestination
	}

	var campaign models.Campaign
	if err := s.db.First(&campaign, "id = ?", campaignID).Error; err != nil {
		return nil, fmt.Errorf("error finding campaign: %w", err)
	}

	// Backfill a shareable slug on first enrolment against the campaign
	if campaign.Slug == "" {
		campaign.Slug = fmt.Sprintf("%s-%s", slug.Make(campaign.Title), campaign.ID.String()[:8])
		if err := s.db.Model(&campaign).UpdateColumn("slug", campaign.Slug).Error; err != nil {
			return nil, fmt.Errorf("error saving campaign slug: %w", err)
		}
	}

	var existing models.Chainer
	err := s.db.First(&existing, "user_id = ? AND campaign_id = ?", userID, campaignID).Error
	if err == nil {
		return nil, ErrAlreadyChainer
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("error checking existing chainer: %w", err)
	}

	chainer := models.Chainer{
		UserID:                userID,
		CampaignID:            campaignID,
		ReferralCode:          utils.GenerateReferralCode(),
		CommissionRate:        s.defaultRate,
		CommissionDestination: destination,
		CharityChoiceID:       charityChoiceID,
	}
	if err := s.db.Create(&chainer).Error; err != nil {
		return nil, fmt.Errorf("error creating chainer: %w", err)
	}

	return &chainer, nil
}

// GetChainer returns a chainer with its live counters
func (s *ReferralService) GetChainer(id uuid.UUID) (*models.Chainer, error) {
	var chainer models.Chainer
	if err := s.db.First(&chainer, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("error finding chainer: %w", err)
	}
	return &chainer, nil
}

// ReconcileClickCounters recomputes every chainer's denormalized click
// counter from the append-only click log. The counter is eventually
// consistent with the log; this is the convergence pass.
func (s *ReferralService) ReconcileClickCounters() error {
	return s.db.Exec(`
		UPDATE chainers
		SET clicks = (
			SELECT COUNT(*) FROM link_clicks
			WHERE link_clicks.chainer_id = chainers.id
		)
	`).Error
}
