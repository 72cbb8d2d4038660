package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatus represents the lifecycle of a commission payout.
// The processing state is the batch claim: it keeps two concurrent batch
// runs from disbursing the same row.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// CommissionPayout records the commission produced by one completed,
// attributed donation. DonationID is unique: at most one payout row can
// ever exist per donation.
type CommissionPayout struct {
	Base
	ChainerID             uuid.UUID             `gorm:"type:uuid;not null;index" json:"chainer_id"`
	Chainer               Chainer               `gorm:"foreignKey:ChainerID" json:"-"`
	CampaignID            uuid.UUID             `gorm:"type:uuid;not null;index" json:"campaign_id"`
	DonationID            uuid.UUID             `gorm:"type:uuid;uniqueIndex;not null" json:"donation_id"`
	Amount                float64               `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency              Currency              `gorm:"type:varchar(3);not null" json:"currency"`
	Destination           CommissionDestination `gorm:"type:varchar(20);not null" json:"destination"`
	DestinationCampaignID *uuid.UUID            `gorm:"type:uuid" json:"destination_campaign_id,omitempty"`
	Status                PayoutStatus          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	TransactionID         string                `gorm:"type:varchar(100)" json:"transaction_id,omitempty"`
	Notes                 string                `gorm:"type:text" json:"notes,omitempty"`
	ProcessedAt           *time.Time            `json:"processed_at,omitempty"`
}
