package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/chainfund/backend/internal/models"
	"gorm.io/gorm"
)

// PaymentProviderName identifies a registered payment provider
type PaymentProviderName string

const (
	ProviderPaystack PaymentProviderName = "paystack"
)

// VerificationResult is the provider-neutral outcome of querying a
// transaction's authoritative status. The webhook payload is only a
// trigger; this result is the ground truth for reconciliation.
type VerificationResult struct {
	Reference string
	Status    models.PaymentStatus
	Amount    float64
	Currency  models.Currency
	PaidAt    *time.Time
}

// TransferRequest describes a disbursement to a chainer's bank account
type TransferRequest struct {
	Amount        float64
	Currency      models.Currency
	RecipientCode string
	Reason        string
	Reference     string
}

// WebhookEvent is a parsed provider webhook delivery
type WebhookEvent struct {
	Event     string
	Reference string
	Raw       map[string]interface{}
}

// PaymentProvider is the capability surface the core needs from a payment
// gateway: collect a donation, verify a transaction, disburse a payout,
// and parse webhook deliveries.
type PaymentProvider interface {
	InitiateDonation(ctx context.Context, donation *models.Donation, callbackURL string) (string, error)
	VerifyTransaction(ctx context.Context, reference string) (*VerificationResult, error)
	InitiateTransfer(ctx context.Context, req TransferRequest) (string, error)
	ParseWebhook(body []byte, signature string) (*WebhookEvent, error)
}

// PaymentService routes payment operations to registered providers
type PaymentService struct {
	db        *gorm.DB
	providers map[PaymentProviderName]PaymentProvider
}

// NewPaymentService creates a new payment service
func NewPaymentService(db *gorm.DB) *PaymentService {
	return &PaymentService{
		db:        db,
		providers: make(map[PaymentProviderName]PaymentProvider),
	}
}

// RegisterProvider registers a payment provider
func (s *PaymentService) RegisterProvider(name PaymentProviderName, provider PaymentProvider) {
	s.providers[name] = provider
}

// Provider returns a registered provider by name
func (s *PaymentService) Provider(name PaymentProviderName) (PaymentProvider, error) {
	provider, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("payment provider not registered: %s", name)
	}
	return provider, nil
}
