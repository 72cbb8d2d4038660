package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobType defines the type of job
type JobType string

const (
	// JobTypeClickAnalytics records downstream click analytics off the request path
	JobTypeClickAnalytics JobType = "record_click_analytics"
	// JobTypeRunPayoutBatch triggers a payout batch run
	JobTypeRunPayoutBatch JobType = "run_payout_batch"
	// JobTypeReconcileClickCounters recomputes denormalized click counters
	JobTypeReconcileClickCounters JobType = "reconcile_click_counters"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents a background job
type Job struct {
	ID         uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RetryCount int             `json:"retry_count" gorm:"default:0"`
	MaxRetries int             `json:"max_retries" gorm:"default:3"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Error      string          `json:"error,omitempty"`
}

// JobHandler is a function that processes a job
type JobHandler func(ctx context.Context, job Job) error

// Queue is a Redis-backed job queue with a database audit record per job
type Queue struct {
	client   *redis.Client
	db       *gorm.DB
	ctx      context.Context
	handlers map[JobType]JobHandler
}

// Redis key prefixes
const (
	queuePrefix   = "queue:"
	delayedSetKey = "queue:delayed"
)

// NewQueue creates a new queue
func NewQueue(client *redis.Client, db *gorm.DB) *Queue {
	q := &Queue{
		client:   client,
		db:       db,
		ctx:      context.Background(),
		handlers: make(map[JobType]JobHandler),
	}

	go q.moveDelayedJobs()

	return q
}

// RegisterHandler registers a handler for a job type
func (q *Queue) RegisterHandler(jobType JobType, handler JobHandler) {
	q.handlers[jobType] = handler
}

// Enqueue adds a job to the queue
func (q *Queue) Enqueue(jobType JobType, payload interface{}) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := Job{
		ID:        uuid.New(),
		Type:      jobType,
		Payload:   payloadBytes,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := q.db.Create(&job).Error; err != nil {
		return "", err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.LPush(q.ctx, queuePrefix+string(jobType), data).Err(); err != nil {
		return "", fmt.Errorf("failed to push job to queue: %w", err)
	}

	return job.ID.String(), nil
}

// Dequeue pops the next job for a job type, blocking up to timeout
func (q *Queue) Dequeue(jobType JobType, timeout time.Duration) (*Job, error) {
	result, err := q.client.BRPop(q.ctx, timeout, queuePrefix+string(jobType)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop job from queue: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	q.updateStatus(&job, JobStatusProcessing, "")
	return &job, nil
}

// Complete marks a job as completed
func (q *Queue) Complete(job *Job) {
	q.updateStatus(job, JobStatusCompleted, "")
}

// Fail marks a job as failed, re-enqueueing it with backoff while retries remain
func (q *Queue) Fail(job *Job, jobErr error) {
	job.RetryCount++
	if job.RetryCount > job.MaxRetries {
		q.updateStatus(job, JobStatusFailed, jobErr.Error())
		log.Printf("Job %s failed permanently after %d retries: %v", job.ID, job.RetryCount-1, jobErr)
		return
	}

	q.updateStatus(job, JobStatusPending, jobErr.Error())

	delay := calculateBackoff(job.RetryCount)
	data, err := json.Marshal(job)
	if err != nil {
		log.Printf("Failed to marshal job %s for retry: %v", job.ID, err)
		return
	}

	score := float64(time.Now().Add(delay).Unix())
	if err := q.client.ZAdd(q.ctx, delayedSetKey, &redis.Z{Score: score, Member: data}).Err(); err != nil {
		log.Printf("Failed to schedule retry for job %s: %v", job.ID, err)
	}
}

// Handler returns the registered handler for a job type
func (q *Queue) Handler(jobType JobType) (JobHandler, bool) {
	handler, ok := q.handlers[jobType]
	return handler, ok
}

func (q *Queue) updateStatus(job *Job, status JobStatus, errMsg string) {
	job.Status = status
	job.UpdatedAt = time.Now()
	job.Error = errMsg

	if err := q.db.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":      status,
		"retry_count": job.RetryCount,
		"error":       errMsg,
		"updated_at":  job.UpdatedAt,
	}).Error; err != nil {
		log.Printf("Failed to update job %s status: %v", job.ID, err)
	}
}

// moveDelayedJobs moves due retries from the delayed set back onto their queues
func (q *Queue) moveDelayedJobs() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		now := fmt.Sprintf("%d", time.Now().Unix())
		entries, err := q.client.ZRangeByScore(q.ctx, delayedSetKey, &redis.ZRangeBy{
			Min: "-inf",
			Max: now,
		}).Result()
		if err != nil {
			log.Printf("Error reading delayed jobs: %v", err)
			continue
		}

		for _, entry := range entries {
			var job Job
			if err := json.Unmarshal([]byte(entry), &job); err != nil {
				q.client.ZRem(q.ctx, delayedSetKey, entry)
				continue
			}

			if err := q.client.LPush(q.ctx, queuePrefix+string(job.Type), entry).Err(); err != nil {
				log.Printf("Error requeueing delayed job %s: %v", job.ID, err)
				continue
			}
			q.client.ZRem(q.ctx, delayedSetKey, entry)
		}
	}
}

// calculateBackoff calculates the backoff duration for a retry.
// Exponential with jitter, base 5s, capped at an hour.
func calculateBackoff(retry int) time.Duration {
	base := 5.0
	max := 3600.0

	seconds := math.Min(max, base*math.Pow(2, float64(retry)))

	jitter := seconds * 0.2
	seconds = seconds - jitter + (rand.Float64() * jitter * 2)

	return time.Duration(seconds) * time.Second
}
