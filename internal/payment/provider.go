package payment

import (
	"context"
	"errors"
	"net/http"
)

// ErrInvalidSignature is returned when a payment proof or webhook signature does not verify.
var ErrInvalidSignature = errors.New("payment: invalid signature")

// IntentRequest captures the information required to open a gateway order.
type IntentRequest struct {
	Receipt  string
	Amount   int64
	Currency string
	Notes    map[string]string
}

// IntentResponse represents the gateway order the client-side checkout widget is opened with.
type IntentResponse struct {
	Provider string `json:"provider"`
	OrderID  string `json:"orderId"`
	KeyID    string `json:"keyId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// Proof is what the checkout widget hands back after a successful payment.
type Proof struct {
	OrderID   string `json:"orderId" validate:"required"`
	PaymentID string `json:"paymentId" validate:"required"`
	Signature string `json:"signature" validate:"required,hexadecimal"`
}

// WebhookVerifyResult contains the normalised data extracted from a webhook notification after signature verification.
type WebhookVerifyResult struct {
	Valid           bool
	Event           string
	OrderID         string
	PaymentID       string
	Amount          int64
	Status          string
	ProviderPayload []byte
	Err             error
}

// Provider abstracts the operations required from an upstream payment gateway.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
	VerifyPayment(p Proof) error
	VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error)
}
