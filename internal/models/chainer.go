package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommissionDestination controls how a chainer's earned commission is routed
type CommissionDestination string

const (
	// DestinationKeep credits the commission to the chainer's own balance
	DestinationKeep CommissionDestination = "keep"
	// DestinationDonateBack redonates the commission to the same campaign
	DestinationDonateBack CommissionDestination = "donate_back"
	// DestinationDonateOther redonates the commission to the chainer's chosen charity
	DestinationDonateOther CommissionDestination = "donate_other"
)

// Valid reports whether d is one of the known destinations
func (d CommissionDestination) Valid() bool {
	switch d {
	case DestinationKeep, DestinationDonateBack, DestinationDonateOther:
		return true
	}
	return false
}

// Chainer represents a user's referral relationship with one campaign.
// The referral code is immutable once issued.
type Chainer struct {
	Base
	UserID                uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_chainer_user_campaign" json:"user_id"`
	User                  User                  `gorm:"foreignKey:UserID" json:"-"`
	CampaignID            uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_chainer_user_campaign" json:"campaign_id"`
	Campaign              Campaign              `gorm:"foreignKey:CampaignID" json:"-"`
	ReferralCode          string                `gorm:"type:varchar(32);uniqueIndex;not null" json:"referral_code"`
	CommissionRate        float64               `gorm:"type:decimal(5,2);not null" json:"commission_rate"` // percent
	CommissionDestination CommissionDestination `gorm:"type:varchar(20);not null;default:'keep'" json:"commission_destination"`
	CharityChoiceID       *uuid.UUID            `gorm:"type:uuid" json:"charity_choice_id,omitempty"`
	TotalRaised           float64               `gorm:"type:decimal(20,2);default:0" json:"total_raised"`
	TotalReferrals        int64                 `gorm:"default:0" json:"total_referrals"`
	Clicks                int64                 `gorm:"default:0" json:"clicks"`
	Conversions           int64                 `gorm:"default:0" json:"conversions"`
	CommissionEarned      float64               `gorm:"type:decimal(20,2);default:0" json:"commission_earned"`
	CommissionPaid        bool                  `gorm:"default:false" json:"commission_paid"`
}

// LinkClick is an append-only record of a visit through a referral link.
// Rows are never mutated; the Clicks counter on Chainer is denormalized
// from this log.
type LinkClick struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ChainerID uuid.UUID `gorm:"type:uuid;not null;index" json:"chainer_id"`
	Chainer   Chainer   `gorm:"foreignKey:ChainerID" json:"-"`
	IPAddress string    `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent string    `gorm:"type:varchar(512)" json:"user_agent"`
	Referrer  string    `gorm:"type:varchar(512)" json:"referrer"`
	ClickedAt time.Time `gorm:"index" json:"clicked_at"`
}

// BeforeCreate assigns the click a UUID
func (c *LinkClick) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.ClickedAt.IsZero() {
		c.ClickedAt = time.Now()
	}
	return nil
}

// Referral binds a referred user to the chainer whose link brought them to
// a campaign. IsConverted flips from false to true exactly once, when the
// referred user completes a qualifying donation.
type Referral struct {
	Base
	ReferrerID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_referral_unique" json:"referrer_id"`
	Referrer     Chainer   `gorm:"foreignKey:ReferrerID" json:"-"`
	ReferredID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_referral_unique" json:"referred_id"`
	CampaignID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_referral_unique" json:"campaign_id"`
	ReferralCode string    `gorm:"type:varchar(32);not null" json:"referral_code"`
	IsConverted  bool      `gorm:"default:false" json:"is_converted"`
}
