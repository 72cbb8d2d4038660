package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentStatus represents the status of a donation's payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Terminal reports whether s is a terminal payment status
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// Donation represents a single donation to a campaign. PaymentIntentID is
// the provider's transaction reference and is the idempotency key for
// reconciliation; PaymentStatus only ever moves pending -> completed or
// pending -> failed.
type Donation struct {
	Base
	CampaignID      uuid.UUID     `gorm:"type:uuid;not null;index" json:"campaign_id"`
	Campaign        Campaign      `gorm:"foreignKey:CampaignID" json:"-"`
	DonorID         *uuid.UUID    `gorm:"type:uuid;index" json:"donor_id,omitempty"`
	DonorEmail      string        `gorm:"type:varchar(255)" json:"donor_email"`
	Amount          float64       `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency        Currency      `gorm:"type:varchar(3);not null" json:"currency"`
	PaymentStatus   PaymentStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	PaymentIntentID string        `gorm:"type:varchar(100);uniqueIndex;not null" json:"payment_intent_id"`
	ChainerID       *uuid.UUID    `gorm:"type:uuid;index" json:"chainer_id,omitempty"`
	ReferralCode    string        `gorm:"type:varchar(32)" json:"referral_code,omitempty"`
	ProcessedAt     *time.Time    `json:"processed_at,omitempty"`
}

// PaymentWebhook is the audit record of a webhook received from a payment
// provider, persisted before any reconciliation work happens.
type PaymentWebhook struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Provider    string     `gorm:"type:varchar(20);not null" json:"provider"`
	Event       string     `gorm:"type:varchar(100)" json:"event"`
	Reference   string     `gorm:"type:varchar(100);index" json:"reference"`
	RawData     JSON       `gorm:"type:jsonb" json:"raw_data"`
	Processed   bool       `gorm:"default:false" json:"processed"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeCreate generates a UUID before inserting the webhook record
func (w *PaymentWebhook) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
