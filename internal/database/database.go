package database

import (
	"fmt"
	"time"

	"github.com/chainfund/backend/internal/config"
	"github.com/chainfund/backend/internal/database/migrations"
	"github.com/chainfund/backend/internal/models"
	"github.com/chainfund/backend/internal/queue"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB initializes the database connection with configuration
func InitDB(dbConfig config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dbConfig.URL), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdle)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Migrate runs the versioned migrations, then lets AutoMigrate pick up
// column and index additions for newer model fields
func Migrate(db *gorm.DB) error {
	if err := migrations.RunMigrations(db); err != nil {
		return err
	}

	return db.AutoMigrate(
		// External projections
		&models.User{},
		&models.Campaign{},
		&models.BankAccount{},

		// Ledger
		&models.Chainer{},
		&models.LinkClick{},
		&models.Referral{},
		&models.Donation{},
		&models.CommissionPayout{},
		&models.PaymentWebhook{},

		// Background jobs
		&queue.Job{},
	)
}
