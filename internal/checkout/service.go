package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/payment"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/storage"
)

var (
	// ErrEmptyCart is returned when there is nothing to pay for.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrUnknownOrder is returned when a gateway order does not belong to the session.
	ErrUnknownOrder = errors.New("checkout order not found")
	// ErrPaymentDisabled is returned when no gateway credentials are configured.
	ErrPaymentDisabled = errors.New("checkout payment not configured")
)

const recordPrefix = "checkout:"

// Quote is the priced view of a cart at checkout time.
type Quote struct {
	Pricing  pricing.Summary `json:"pricing"`
	Currency string          `json:"currency"`
	Lines    int             `json:"lines"`
	TotalQty int             `json:"totalQty"`
}

// Intent is returned to the client to open the gateway checkout widget.
type Intent struct {
	payment.IntentResponse
	Receipt string `json:"receipt"`
	Quote   Quote  `json:"quote"`
}

// Record links a gateway order to the session that opened it.
type Record struct {
	OrderID   string    `json:"orderId"`
	SessionID string    `json:"sessionId"`
	Receipt   string    `json:"receipt"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service prices carts, opens gateway orders and clears carts once payment is confirmed.
type Service struct {
	Carts    *cart.Service
	Provider payment.Provider
	Records  cart.Storage
	TaxBps   int
	Shipping pricing.Money
	Currency string
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Quote prices the session's cart.
func (s *Service) Quote(ctx context.Context, session string) (Quote, error) {
	if s == nil || s.Carts == nil {
		return Quote{}, errors.New("checkout service not configured")
	}
	state, err := s.Carts.Get(ctx, session)
	if err != nil {
		return Quote{}, err
	}
	if len(state.Items) == 0 {
		return Quote{}, ErrEmptyCart
	}
	return s.quote(state), nil
}

// CreateIntent opens a gateway order for the cart total and remembers which session it
// belongs to.
func (s *Service) CreateIntent(ctx context.Context, session string) (Intent, error) {
	if s.Provider == nil || s.Records == nil {
		return Intent{}, ErrPaymentDisabled
	}
	q, err := s.Quote(ctx, session)
	if err != nil {
		return Intent{}, err
	}
	amount := pricing.MinorUnits(q.Pricing.Total)
	if amount <= 0 {
		return Intent{}, ErrEmptyCart
	}
	receipt := uuid.NewString()
	resp, err := s.Provider.CreateIntent(ctx, payment.IntentRequest{
		Receipt:  receipt,
		Amount:   amount,
		Currency: q.Currency,
		Notes:    map[string]string{"session": session},
	})
	if err != nil {
		obs.ObserveCheckoutIntent(s.Provider.Name(), "error")
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	rec := Record{
		OrderID:   resp.OrderID,
		SessionID: session,
		Receipt:   receipt,
		Amount:    amount,
		Currency:  q.Currency,
		CreatedAt: s.now(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return Intent{}, err
	}
	if err := s.Records.Save(ctx, recordPrefix+resp.OrderID, data); err != nil {
		obs.ObserveCheckoutIntent(s.Provider.Name(), "error")
		return Intent{}, fmt.Errorf("store checkout record: %w", err)
	}
	obs.ObserveCheckoutIntent(s.Provider.Name(), "created")
	s.Logger.Info().Str("order_id", resp.OrderID).Str("receipt", receipt).Int64("amount", amount).Msg("checkout intent created")
	return Intent{IntentResponse: resp, Receipt: receipt, Quote: q}, nil
}

// Complete verifies the payment proof for an order opened by session and clears the cart.
func (s *Service) Complete(ctx context.Context, session string, proof payment.Proof) (cart.State, error) {
	if s.Provider == nil || s.Records == nil || s.Carts == nil {
		return cart.State{}, ErrPaymentDisabled
	}
	rec, err := s.record(ctx, proof.OrderID)
	if err != nil {
		obs.ObserveCheckoutComplete("unknown_order")
		return cart.State{}, err
	}
	if rec.SessionID != session {
		obs.ObserveCheckoutComplete("unknown_order")
		return cart.State{}, ErrUnknownOrder
	}
	if err := s.Provider.VerifyPayment(proof); err != nil {
		obs.ObserveCheckoutComplete("invalid_signature")
		s.Logger.Warn().Str("order_id", proof.OrderID).Msg("payment proof rejected")
		return cart.State{}, err
	}
	return s.settle(ctx, rec, proof.PaymentID)
}

// HandleWebhook settles a checkout from a verified gateway notification. Unknown orders are
// ignored so the gateway stops retrying.
func (s *Service) HandleWebhook(ctx context.Context, res payment.WebhookVerifyResult) error {
	if res.Status != "PAID" {
		return nil
	}
	rec, err := s.record(ctx, res.OrderID)
	if errors.Is(err, ErrUnknownOrder) {
		s.Logger.Info().Str("order_id", res.OrderID).Msg("webhook for settled or unknown order")
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.settle(ctx, rec, res.PaymentID)
	return err
}

func (s *Service) settle(ctx context.Context, rec Record, paymentID string) (cart.State, error) {
	state, _, err := s.Carts.Dispatch(ctx, rec.SessionID, cart.Clear())
	if err != nil {
		obs.ObserveCheckoutComplete("error")
		return cart.State{}, fmt.Errorf("clear cart: %w", err)
	}
	if err := s.Records.Delete(ctx, recordPrefix+rec.OrderID); err != nil {
		s.Logger.Warn().Err(err).Str("order_id", rec.OrderID).Msg("checkout record cleanup failed")
	}
	obs.ObserveCheckoutComplete("paid")
	s.Logger.Info().Str("order_id", rec.OrderID).Str("payment_id", paymentID).Int64("amount", rec.Amount).Msg("checkout completed")
	return state, nil
}

func (s *Service) record(ctx context.Context, orderID string) (Record, error) {
	if orderID == "" {
		return Record{}, ErrUnknownOrder
	}
	data, err := s.Records.Load(ctx, recordPrefix+orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return Record{}, ErrUnknownOrder
	}
	if err != nil {
		return Record{}, fmt.Errorf("load checkout record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode checkout record: %w", err)
	}
	return rec, nil
}

func (s *Service) quote(state cart.State) Quote {
	currency := s.Currency
	if currency == "" {
		currency = "INR"
	}
	return Quote{
		Pricing:  pricing.Compute(state.PricingItems(), s.TaxBps, s.Shipping),
		Currency: currency,
		Lines:    len(state.Items),
		TotalQty: state.TotalQty,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
