package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createLedgerTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_ledger_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS chainers (
					id UUID PRIMARY KEY,
					user_id UUID NOT NULL,
					campaign_id UUID NOT NULL,
					referral_code VARCHAR(32) NOT NULL,
					commission_rate DECIMAL(5,2) NOT NULL,
					commission_destination VARCHAR(20) NOT NULL DEFAULT 'keep',
					charity_choice_id UUID,
					total_raised DECIMAL(20,2) NOT NULL DEFAULT 0,
					total_referrals BIGINT NOT NULL DEFAULT 0,
					clicks BIGINT NOT NULL DEFAULT 0,
					conversions BIGINT NOT NULL DEFAULT 0,
					commission_earned DECIMAL(20,2) NOT NULL DEFAULT 0,
					commission_paid BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE,
					CONSTRAINT idx_chainer_user_campaign UNIQUE (user_id, campaign_id)
				)
			`).Error; err != nil {
				return err
			}
			if err := tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_chainers_referral_code ON chainers (referral_code)`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS link_clicks (
					id UUID PRIMARY KEY,
					chainer_id UUID NOT NULL,
					ip_address VARCHAR(45),
					user_agent VARCHAR(512),
					referrer VARCHAR(512),
					clicked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				)
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS referrals (
					id UUID PRIMARY KEY,
					referrer_id UUID NOT NULL,
					referred_id UUID NOT NULL,
					campaign_id UUID NOT NULL,
					referral_code VARCHAR(32) NOT NULL,
					is_converted BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE,
					CONSTRAINT idx_referral_unique UNIQUE (referrer_id, referred_id, campaign_id)
				)
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS donations (
					id UUID PRIMARY KEY,
					campaign_id UUID NOT NULL,
					donor_id UUID,
					donor_email VARCHAR(255),
					amount DECIMAL(20,2) NOT NULL,
					currency VARCHAR(3) NOT NULL,
					payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
					payment_intent_id VARCHAR(100) NOT NULL,
					chainer_id UUID,
					referral_code VARCHAR(32),
					processed_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				)
			`).Error; err != nil {
				return err
			}
			if err := tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_donations_payment_intent_id ON donations (payment_intent_id)`).Error; err != nil {
				return err
			}

			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS commission_payouts (
					id UUID PRIMARY KEY,
					chainer_id UUID NOT NULL,
					campaign_id UUID NOT NULL,
					donation_id UUID NOT NULL UNIQUE,
					amount DECIMAL(20,2) NOT NULL,
					currency VARCHAR(3) NOT NULL,
					destination VARCHAR(20) NOT NULL,
					destination_campaign_id UUID,
					status VARCHAR(20) NOT NULL DEFAULT 'pending',
					transaction_id VARCHAR(100),
					notes TEXT,
					processed_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				)
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			for _, table := range []string{"commission_payouts", "donations", "referrals", "link_clicks", "chainers"} {
				if err := tx.Exec("DROP TABLE IF EXISTS " + table).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createLedgerTablesMigration())
}
