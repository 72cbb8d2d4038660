package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/chainfund/backend/internal/models"
	"github.com/chainfund/backend/internal/services/payment"
	"github.com/chainfund/backend/internal/utils"
)

// PaystackProvider implements the payment.PaymentProvider interface for Paystack
type PaystackProvider struct {
	secretKey string
	publicKey string
	baseURL   string
	client    *http.Client
}

// PaystackConfig holds configuration for the Paystack provider
type PaystackConfig struct {
	SecretKey string
	PublicKey string
	BaseURL   string
}

// NewPaystackProvider creates a new Paystack provider
func NewPaystackProvider(config PaystackConfig) *PaystackProvider {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}

	return &PaystackProvider{
		secretKey: config.SecretKey,
		publicKey: config.PublicKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// InitializeRequest represents a request to initialize a transaction
type InitializeRequest struct {
	Amount      int64  `json:"amount"` // Amount in kobo (for NGN) or pesewas (for GHS)
	Email       string `json:"email"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url"`
}

// InitializeResponse represents a response from transaction initialization
type InitializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// VerifyResponse represents a response from Paystack verification
type VerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Amount          int64  `json:"amount"`
		Currency        string `json:"currency"`
		TransactionDate string `json:"transaction_date"`
		Status          string `json:"status"`
		Reference       string `json:"reference"`
		GatewayResponse string `json:"gateway_response"`
		Channel         string `json:"channel"`
		Fees            int64  `json:"fees"`
		PaidAt          string `json:"paid_at"`
	} `json:"data"`
}

// TransferResponse represents a response from transfer initiation
type TransferResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
		Reference    string `json:"reference"`
	} `json:"data"`
}

// WebhookPayload represents a Paystack webhook payload
type WebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID        int    `json:"id"`
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		PaidAt    string `json:"paid_at"`
		Channel   string `json:"channel"`
	} `json:"data"`
}

// InitiateDonation initializes a Paystack transaction for a donation and
// returns the authorization URL the donor is redirected to
func (p *PaystackProvider) InitiateDonation(ctx context.Context, donation *models.Donation, callbackURL string) (string, error) {
	req := InitializeRequest{
		Amount:      int64(math.Round(donation.Amount * 100)), // smallest currency unit
		Email:       donation.DonorEmail,
		Currency:    string(donation.Currency),
		Reference:   donation.PaymentIntentID,
		CallbackURL: callbackURL,
	}

	var resp InitializeResponse
	if err := p.post(ctx, "/transaction/initialize", req, &resp); err != nil {
		return "", err
	}
	if !resp.Status {
		return "", fmt.Errorf("paystack error: %s", resp.Message)
	}

	return resp.Data.AuthorizationURL, nil
}

// VerifyTransaction queries Paystack for the authoritative status of a
// transaction. Callback and webhook payloads are never trusted for the
// final status; this endpoint is.
func (p *PaystackProvider) VerifyTransaction(ctx context.Context, reference string) (*payment.VerificationResult, error) {
	var resp VerifyResponse
	if err := p.get(ctx, "/transaction/verify/"+reference, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, fmt.Errorf("paystack error: %s", resp.Message)
	}

	result := &payment.VerificationResult{
		Reference: resp.Data.Reference,
		Amount:    float64(resp.Data.Amount) / 100,
		Currency:  models.Currency(resp.Data.Currency),
	}

	switch resp.Data.Status {
	case "success":
		result.Status = models.PaymentStatusCompleted
	case "failed", "abandoned", "reversed":
		result.Status = models.PaymentStatusFailed
	default:
		result.Status = models.PaymentStatusPending
	}

	if resp.Data.PaidAt != "" {
		if paidAt, err := time.Parse(time.RFC3339, resp.Data.PaidAt); err == nil {
			result.PaidAt = &paidAt
		}
	}

	return result, nil
}

// InitiateTransfer starts a disbursement to a previously created transfer
// recipient and returns the transfer code
func (p *PaystackProvider) InitiateTransfer(ctx context.Context, req payment.TransferRequest) (string, error) {
	body := map[string]interface{}{
		"source":    "balance",
		"amount":    int64(math.Round(req.Amount * 100)),
		"currency":  string(req.Currency),
		"recipient": req.RecipientCode,
		"reason":    req.Reason,
		"reference": req.Reference,
	}

	var resp TransferResponse
	if err := p.post(ctx, "/transfer", body, &resp); err != nil {
		return "", err
	}
	if !resp.Status {
		return "", fmt.Errorf("paystack error: %s", resp.Message)
	}

	return resp.Data.TransferCode, nil
}

// ParseWebhook validates the x-paystack-signature header against the raw
// body and extracts the event and transaction reference
func (p *PaystackProvider) ParseWebhook(body []byte, signature string) (*payment.WebhookEvent, error) {
	if !utils.VerifyHMAC512(body, signature, p.secretKey) {
		return nil, fmt.Errorf("invalid webhook signature")
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("error parsing webhook payload: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing webhook raw data: %w", err)
	}

	return &payment.WebhookEvent{
		Event:     payload.Event,
		Reference: payload.Data.Reference,
		Raw:       raw,
	}, nil
}

func (p *PaystackProvider) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	return p.do(httpReq, out)
}

func (p *PaystackProvider) get(ctx context.Context, path string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	return p.do(httpReq, out)
}

func (p *PaystackProvider) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}

	return nil
}
