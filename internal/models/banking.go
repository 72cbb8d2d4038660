package models

import "github.com/google/uuid"

// BankAccount is the payout-eligibility projection of a chainer's bank
// account. Verification and account-change workflows are owned by the
// compliance service; the batch processor only reads these flags.
type BankAccount struct {
	Base
	UserID        uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User          User      `gorm:"foreignKey:UserID" json:"-"`
	AccountName   string    `gorm:"type:varchar(255)" json:"account_name"`
	AccountNumber string    `gorm:"type:varchar(32)" json:"account_number"`
	BankCode      string    `gorm:"type:varchar(16)" json:"bank_code"`
	Currency      Currency  `gorm:"type:varchar(3);not null" json:"currency"`
	RecipientCode string    `gorm:"type:varchar(100)" json:"recipient_code"` // provider transfer recipient
	Verified      bool      `gorm:"default:false" json:"verified"`
	Locked        bool      `gorm:"default:false" json:"locked"`
	PendingChange bool      `gorm:"default:false" json:"pending_change"`
}
