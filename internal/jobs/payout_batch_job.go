package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chainfund/backend/internal/models"
	"github.com/chainfund/backend/internal/services/payment"
	"github.com/chainfund/backend/internal/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrPayoutNotFailed means a requeue was requested for a payout that is
// not in the failed state
var ErrPayoutNotFailed = errors.New("payout is not in failed state")

// PayoutResult describes the outcome for one payout in a batch run
type PayoutResult struct {
	PayoutID      uuid.UUID           `json:"payout_id"`
	ChainerID     uuid.UUID           `json:"chainer_id"`
	Status        models.PayoutStatus `json:"status"`
	TransactionID string              `json:"transaction_id,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// BatchResult summarizes a payout batch run. A claimed payout that is
// neither processed nor failed timed out with an unknown outcome and is
// awaiting operator resolution.
type BatchResult struct {
	Claimed   int            `json:"claimed"`
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`
	Results   []PayoutResult `json:"results"`
}

// PayoutBatchJob disburses pending keep-destination commission payouts to
// chainers' verified bank accounts. Rows are claimed (pending ->
// processing) before any external transfer call, so a second concurrent
// batch run can never pick up the same payout.
type PayoutBatchJob struct {
	db              *gorm.DB
	payments        *payment.PaymentService
	disburseTimeout time.Duration
}

// NewPayoutBatchJob creates a new payout batch job
func NewPayoutBatchJob(db *gorm.DB, payments *payment.PaymentService) *PayoutBatchJob {
	return &PayoutBatchJob{
		db:              db,
		payments:        payments,
		disburseTimeout: 20 * time.Second,
	}
}

// RunBatch selects up to maxItems eligible payouts, claims them and
// disburses each through the payment provider. Disbursement failures mark
// the payout failed and are not retried automatically; they need an
// operator requeue after review.
func (j *PayoutBatchJob) RunBatch(ctx context.Context, maxItems int) (*BatchResult, error) {
	if maxItems <= 0 {
		maxItems = 100
	}

	candidates, err := j.eligiblePayouts(maxItems)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Results: []PayoutResult{}}

	for _, candidate := range candidates {
		// Claim before any external call. Losing the claim means another
		// batch run owns this row.
		res := j.db.Model(&models.CommissionPayout{}).
			Where("id = ? AND status = ?", candidate.ID, models.PayoutStatusPending).
			Update("status", models.PayoutStatusProcessing)
		if res.Error != nil {
			return nil, fmt.Errorf("error claiming payout %s: %w", candidate.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		result.Claimed++

		payoutResult := j.disburse(ctx, &candidate)
		result.Results = append(result.Results, payoutResult)
		switch payoutResult.Status {
		case models.PayoutStatusCompleted:
			result.Processed++
		case models.PayoutStatusFailed:
			result.Failed++
		}
	}

	log.Printf("Payout batch finished: claimed=%d processed=%d failed=%d", result.Claimed, result.Processed, result.Failed)
	return result, nil
}

// eligiblePayouts returns pending keep-destination payouts whose chainer
// has a verified, unlocked bank account with no pending change request,
// oldest first
func (j *PayoutBatchJob) eligiblePayouts(limit int) ([]models.CommissionPayout, error) {
	var payouts []models.CommissionPayout
	err := j.db.
		Joins("JOIN chainers ON chainers.id = commission_payouts.chainer_id").
		Joins("JOIN bank_accounts ON bank_accounts.user_id = chainers.user_id").
		Where("commission_payouts.status = ? AND commission_payouts.destination = ?",
			models.PayoutStatusPending, models.DestinationKeep).
		Where("bank_accounts.verified = ? AND bank_accounts.locked = ? AND bank_accounts.pending_change = ?",
			true, false, false).
		Order("commission_payouts.created_at ASC").
		Limit(limit).
		Find(&payouts).Error
	if err != nil {
		return nil, fmt.Errorf("error selecting eligible payouts: %w", err)
	}
	return payouts, nil
}

// disburse sends one claimed payout to the provider and records the
// terminal outcome
func (j *PayoutBatchJob) disburse(ctx context.Context, payout *models.CommissionPayout) PayoutResult {
	result := PayoutResult{PayoutID: payout.ID, ChainerID: payout.ChainerID}

	account, err := j.payoutAccount(payout.ChainerID)
	if err != nil {
		return j.markFailed(payout, result, err)
	}

	provider, err := j.payments.Provider(payment.ProviderPaystack)
	if err != nil {
		return j.markFailed(payout, result, err)
	}

	tctx, cancel := context.WithTimeout(ctx, j.disburseTimeout)
	defer cancel()

	transferCode, err := provider.InitiateTransfer(tctx, payment.TransferRequest{
		Amount:        payout.Amount,
		Currency:      payout.Currency,
		RecipientCode: account.RecipientCode,
		Reason:        "Chainer commission payout",
		Reference:     utils.GenerateReference("PAYOUT"),
	})
	if err != nil {
		// A timeout is not a rejection: the transfer may have gone
		// through at the provider. The row must not become failed, or a
		// requeue would disburse it twice.
		if errors.Is(err, context.DeadlineExceeded) {
			return j.markTimedOut(payout, result, err)
		}
		return j.markFailed(payout, result, err)
	}

	now := time.Now()
	if err := j.db.Model(&models.CommissionPayout{}).
		Where("id = ? AND status = ?", payout.ID, models.PayoutStatusProcessing).
		Updates(map[string]interface{}{
			"status":         models.PayoutStatusCompleted,
			"transaction_id": transferCode,
			"processed_at":   now,
			"updated_at":     now,
		}).Error; err != nil {
		log.Printf("ERROR: payout %s disbursed (transfer %s) but could not be marked completed: %v", payout.ID, transferCode, err)
		result.Status = models.PayoutStatusProcessing
		result.Error = err.Error()
		return result
	}

	if err := j.db.Model(&models.Chainer{}).
		Where("id = ?", payout.ChainerID).
		UpdateColumn("commission_paid", true).Error; err != nil {
		log.Printf("Failed to flag chainer %s as paid: %v", payout.ChainerID, err)
	}

	result.Status = models.PayoutStatusCompleted
	result.TransactionID = transferCode
	return result
}

// markTimedOut records a disbursement with an unknown outcome. The row
// stays in processing so no batch can claim it again; an operator has to
// verify the transfer with the provider before resolving it.
func (j *PayoutBatchJob) markTimedOut(payout *models.CommissionPayout, result PayoutResult, cause error) PayoutResult {
	now := time.Now()
	if err := j.db.Model(&models.CommissionPayout{}).
		Where("id = ? AND status = ?", payout.ID, models.PayoutStatusProcessing).
		Updates(map[string]interface{}{
			"notes":      "transfer outcome unknown: " + cause.Error(),
			"updated_at": now,
		}).Error; err != nil {
		log.Printf("ERROR: could not record timeout for payout %s: %v", payout.ID, err)
	}

	result.Status = models.PayoutStatusProcessing
	result.Error = cause.Error()
	return result
}

// markFailed records a disbursement failure. Failed payouts stay failed
// until an operator requeues them.
func (j *PayoutBatchJob) markFailed(payout *models.CommissionPayout, result PayoutResult, cause error) PayoutResult {
	now := time.Now()
	if err := j.db.Model(&models.CommissionPayout{}).
		Where("id = ? AND status = ?", payout.ID, models.PayoutStatusProcessing).
		Updates(map[string]interface{}{
			"status":     models.PayoutStatusFailed,
			"notes":      cause.Error(),
			"updated_at": now,
		}).Error; err != nil {
		log.Printf("ERROR: could not mark payout %s failed: %v", payout.ID, err)
	}

	result.Status = models.PayoutStatusFailed
	result.Error = cause.Error()
	return result
}

// payoutAccount returns the verified bank account for a chainer's user
func (j *PayoutBatchJob) payoutAccount(chainerID uuid.UUID) (*models.BankAccount, error) {
	var chainer models.Chainer
	if err := j.db.First(&chainer, "id = ?", chainerID).Error; err != nil {
		return nil, fmt.Errorf("error finding chainer: %w", err)
	}

	var account models.BankAccount
	if err := j.db.First(&account,
		"user_id = ? AND verified = ? AND locked = ? AND pending_change = ?",
		chainer.UserID, true, false, false).Error; err != nil {
		return nil, fmt.Errorf("no eligible bank account for chainer %s: %w", chainerID, err)
	}
	return &account, nil
}

// Requeue resets a failed payout back to pending for the next batch run.
// This is the explicit operator action for disbursement failures.
func (j *PayoutBatchJob) Requeue(payoutID uuid.UUID) error {
	res := j.db.Model(&models.CommissionPayout{}).
		Where("id = ? AND status = ?", payoutID, models.PayoutStatusFailed).
		Updates(map[string]interface{}{
			"status":     models.PayoutStatusPending,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("error requeueing payout: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPayoutNotFailed
	}
	return nil
}
