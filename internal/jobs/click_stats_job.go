package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/chainfund/backend/internal/models"
	"github.com/chainfund/backend/internal/queue"
	"github.com/chainfund/backend/internal/services/referral"
	"gorm.io/gorm"
)

// ClickStatsJob keeps the denormalized click counters converged with the
// append-only click log
type ClickStatsJob struct {
	db          *gorm.DB
	referralSvc *referral.ReferralService
}

// NewClickStatsJob creates a new click stats job
func NewClickStatsJob(db *gorm.DB, referralSvc *referral.ReferralService) *ClickStatsJob {
	return &ClickStatsJob{db: db, referralSvc: referralSvc}
}

// HandleClickAnalytics processes one queued click event off the request
// path: it re-syncs the owning chainer's counter from the click log.
// The operation is idempotent, so redelivery is harmless.
func (j *ClickStatsJob) HandleClickAnalytics(ctx context.Context, job queue.Job) error {
	var payload referral.ClickAnalyticsPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal click analytics payload: %w", err)
	}

	err := j.db.Model(&models.Chainer{}).
		Where("id = ?", payload.ChainerID).
		UpdateColumn("clicks", gorm.Expr(
			"(SELECT COUNT(*) FROM link_clicks WHERE link_clicks.chainer_id = ?)", payload.ChainerID)).Error
	if err != nil {
		return fmt.Errorf("failed to refresh click counter for chainer %s: %w", payload.ChainerID, err)
	}
	return nil
}

// ReconcileAll recomputes every chainer's click counter. Scheduled as a
// recurring sweep.
func (j *ClickStatsJob) ReconcileAll() {
	if err := j.referralSvc.ReconcileClickCounters(); err != nil {
		log.Printf("Click counter reconciliation failed: %v", err)
	}
}
