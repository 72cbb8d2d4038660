package jobs

import (
	"context"
	"encoding/json"
	"log"

	"github.com/chainfund/backend/internal/queue"
)

// PayoutBatchPayload is the payload for a queued payout batch run
type PayoutBatchPayload struct {
	Limit int `json:"limit"`
}

// RegisterJobHandlers registers all background job handlers on the queue
func RegisterJobHandlers(q *queue.Queue, clickStats *ClickStatsJob, payoutBatch *PayoutBatchJob) {
	q.RegisterHandler(queue.JobTypeClickAnalytics, clickStats.HandleClickAnalytics)

	q.RegisterHandler(queue.JobTypeRunPayoutBatch, func(ctx context.Context, job queue.Job) error {
		var payload PayoutBatchPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return err
		}
		result, err := payoutBatch.RunBatch(ctx, payload.Limit)
		if err != nil {
			return err
		}
		log.Printf("Queued payout batch run: claimed=%d processed=%d failed=%d", result.Claimed, result.Processed, result.Failed)
		return nil
	})

	q.RegisterHandler(queue.JobTypeReconcileClickCounters, func(ctx context.Context, job queue.Job) error {
		clickStats.ReconcileAll()
		return nil
	})
}
