package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/noah-isme/storefront/internal/resilience"
)

const razorpayDefaultBaseURL = "https://api.razorpay.com"

// Razorpay implements Provider against the Razorpay Orders API.
type Razorpay struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	HTTP          resilience.HTTPClient
}

// GatewayError is a non-retryable error reported by the gateway.
type GatewayError struct {
	Status      int
	Code        string
	Description string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %d %s: %s", e.Status, e.Code, e.Description)
}

// Name identifies the provider in metrics and responses.
func (Razorpay) Name() string { return "razorpay" }

// CreateIntent opens a gateway order for the amount in minor units.
func (rp Razorpay) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	if strings.TrimSpace(req.Receipt) == "" {
		return IntentResponse{}, errors.New("receipt is required")
	}
	if req.Amount <= 0 {
		return IntentResponse{}, errors.New("amount must be positive")
	}
	if rp.KeyID == "" || rp.KeySecret == "" {
		return IntentResponse{}, errors.New("payment gateway credentials not configured")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "INR"
	}
	payload, err := json.Marshal(map[string]any{
		"amount":   req.Amount,
		"currency": currency,
		"receipt":  req.Receipt,
		"notes":    req.Notes,
	})
	if err != nil {
		return IntentResponse{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, rp.baseURL()+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return IntentResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(rp.KeyID, rp.KeySecret)

	resp, err := rp.HTTP.Do(ctx, httpReq)
	if err != nil {
		return IntentResponse{}, fmt.Errorf("create gateway order: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return IntentResponse{}, fmt.Errorf("read gateway order: %w", err)
	}
	if resp.StatusCode >= 300 {
		var failure struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &failure)
		return IntentResponse{}, &GatewayError{Status: resp.StatusCode, Code: failure.Error.Code, Description: failure.Error.Description}
	}
	var order struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(body, &order); err != nil {
		return IntentResponse{}, fmt.Errorf("decode gateway order: %w", err)
	}
	if order.ID == "" {
		return IntentResponse{}, errors.New("gateway order without id")
	}
	return IntentResponse{
		Provider: rp.Name(),
		OrderID:  order.ID,
		KeyID:    rp.KeyID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Status:   order.Status,
	}, nil
}

// VerifyPayment checks the checkout signature: hex HMAC-SHA256 of "orderId|paymentId" keyed by
// the key secret.
func (rp Razorpay) VerifyPayment(p Proof) error {
	expected := Sign(rp.KeySecret, p.OrderID+"|"+p.PaymentID)
	provided := strings.ToLower(strings.TrimSpace(p.Signature))
	if expected == "" || provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyWebhook validates the X-Razorpay-Signature header and normalises the payload.
func (rp Razorpay) VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error) {
	expected := Sign(rp.WebhookSecret, string(body))
	provided := strings.TrimSpace(r.Header.Get("X-Razorpay-Signature"))
	if expected == "" || provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return WebhookVerifyResult{Valid: false, Err: ErrInvalidSignature}, nil
	}

	var payload struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity struct {
					ID      string `json:"id"`
					OrderID string `json:"order_id"`
					Amount  int64  `json:"amount"`
					Status  string `json:"status"`
				} `json:"entity"`
			} `json:"payment"`
			Order struct {
				Entity struct {
					ID     string `json:"id"`
					Amount int64  `json:"amount"`
					Status string `json:"status"`
				} `json:"entity"`
			} `json:"order"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}
	payment := payload.Payload.Payment.Entity
	orderID := payment.OrderID
	if orderID == "" {
		orderID = payload.Payload.Order.Entity.ID
	}
	if orderID == "" {
		return WebhookVerifyResult{Valid: false, Err: errors.New("missing order id")}, nil
	}
	amount := payment.Amount
	if amount == 0 {
		amount = payload.Payload.Order.Entity.Amount
	}
	return WebhookVerifyResult{
		Valid:           true,
		Event:           payload.Event,
		OrderID:         orderID,
		PaymentID:       payment.ID,
		Amount:          amount,
		Status:          normaliseRazorpayEvent(payload.Event),
		ProviderPayload: body,
	}, nil
}

func (rp Razorpay) baseURL() string {
	host := strings.TrimRight(strings.TrimSpace(rp.BaseURL), "/")
	if host == "" {
		return razorpayDefaultBaseURL
	}
	return host
}

// Sign returns the lowercase hex HMAC-SHA256 of message. An empty secret yields "".
func Sign(secret, message string) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func normaliseRazorpayEvent(event string) string {
	switch strings.ToLower(strings.TrimSpace(event)) {
	case "payment.captured", "order.paid":
		return "PAID"
	case "payment.authorized":
		return "PENDING"
	case "payment.failed":
		return "FAILED"
	case "refund.processed", "refund.created":
		return "REFUNDED"
	default:
		return "PENDING"
	}
}
