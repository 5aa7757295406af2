package checkout_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/checkout"
	"github.com/noah-isme/storefront/internal/payment"
	"github.com/noah-isme/storefront/internal/storage"
)

const session = "0b5b3a53-27a9-4a5e-9f5b-7f5a4b9f2d10"

type fakeProvider struct {
	payment.Razorpay
	created []payment.IntentRequest
	fail    error
}

func (f *fakeProvider) CreateIntent(_ context.Context, req payment.IntentRequest) (payment.IntentResponse, error) {
	if f.fail != nil {
		return payment.IntentResponse{}, f.fail
	}
	f.created = append(f.created, req)
	return payment.IntentResponse{Provider: "razorpay", OrderID: "order_1", KeyID: "key", Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
}

type fixture struct {
	svc      *checkout.Service
	carts    *cart.Service
	provider *fakeProvider
	mr       *miniredis.Miniredis
	router   http.Handler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := storage.NewRedis(client, time.Hour)
	carts := &cart.Service{Storage: store, Logger: zerolog.Nop()}
	provider := &fakeProvider{Razorpay: payment.Razorpay{KeySecret: "secret", WebhookSecret: "whsec"}}
	svc := &checkout.Service{
		Carts:    carts,
		Provider: provider,
		Records:  store,
		TaxBps:   1000,
		Shipping: 50,
		Currency: "INR",
		Logger:   zerolog.Nop(),
	}
	h := &checkout.Handler{Svc: svc}
	r := chi.NewRouter()
	r.Post("/carts/{session}/checkout/quote", h.Quote)
	r.Post("/carts/{session}/checkout/intent", h.Intent)
	r.Post("/carts/{session}/checkout/complete", h.Complete)
	r.Post("/payments/webhook", h.Webhook)
	return fixture{svc: svc, carts: carts, provider: provider, mr: mr, router: r}
}

func (f fixture) fill(t *testing.T) {
	t.Helper()
	_, _, err := f.carts.Dispatch(context.Background(), session, cart.Add(cart.Product{ID: "p", ProductPrice: 1000, ProductDiscount: 10}, 2))
	require.NoError(t, err)
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Quote(context.Background(), session)
	require.ErrorIs(t, err, checkout.ErrEmptyCart)

	f.fill(t)
	q, err := f.svc.Quote(context.Background(), session)
	require.NoError(t, err)
	require.InDelta(t, 1800, q.Pricing.ItemsTotal, 1e-9)
	require.InDelta(t, 180, q.Pricing.Tax, 1e-9)
	require.InDelta(t, 2030, q.Pricing.Total, 1e-9)
	require.Equal(t, 2, q.TotalQty)
}

func TestIntentThenCompleteClearsCart(t *testing.T) {
	f := newFixture(t)
	f.fill(t)
	ctx := context.Background()

	intent, err := f.svc.CreateIntent(ctx, session)
	require.NoError(t, err)
	require.Equal(t, "order_1", intent.OrderID)
	require.EqualValues(t, 203000, intent.Amount)
	require.Len(t, f.provider.created, 1)
	require.Equal(t, session, f.provider.created[0].Notes["session"])
	require.True(t, f.mr.Exists("checkout:order_1"))

	_, err = f.svc.Complete(ctx, session, payment.Proof{OrderID: "order_1", PaymentID: "pay_1", Signature: "00"})
	require.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = f.svc.Complete(ctx, "11111111-1111-1111-1111-111111111111", payment.Proof{
		OrderID: "order_1", PaymentID: "pay_1", Signature: payment.Sign("secret", "order_1|pay_1"),
	})
	require.ErrorIs(t, err, checkout.ErrUnknownOrder)

	state, err := f.svc.Complete(ctx, session, payment.Proof{
		OrderID: "order_1", PaymentID: "pay_1", Signature: payment.Sign("secret", "order_1|pay_1"),
	})
	require.NoError(t, err)
	require.Equal(t, cart.Empty(), state)
	require.False(t, f.mr.Exists("checkout:order_1"))

	persisted, err := f.carts.Get(ctx, session)
	require.NoError(t, err)
	require.Empty(t, persisted.Items)
}

func TestIntentGatewayFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	f.fill(t)
	f.provider.fail = errors.New("gateway down")

	_, err := f.svc.CreateIntent(context.Background(), session)
	require.Error(t, err)

	state, err := f.carts.Get(context.Background(), session)
	require.NoError(t, err)
	require.Equal(t, 2, state.TotalQty)
}

func TestCheckoutHandlers(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+session+"/checkout/quote", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "CART_EMPTY")

	f.fill(t)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+session+"/checkout/intent", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var intent struct {
		Data struct {
			OrderID string `json:"orderId"`
			Amount  int64  `json:"amount"`
			Receipt string `json:"receipt"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &intent))
	require.Equal(t, "order_1", intent.Data.OrderID)
	require.NotEmpty(t, intent.Data.Receipt)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+session+"/checkout/complete", strings.NewReader(`{"orderId":"order_1"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := `{"orderId":"order_1","paymentId":"pay_1","signature":"` + payment.Sign("secret", "order_1|pay_1") + `"}`
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+session+"/checkout/complete", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"PAID"`)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+session+"/checkout/complete", strings.NewReader(body)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookSettlesCheckout(t *testing.T) {
	f := newFixture(t)
	f.fill(t)
	_, err := f.svc.CreateIntent(context.Background(), session)
	require.NoError(t, err)

	payload := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_7","order_id":"order_1","amount":203000}}}}`

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(payload))
	req.Header.Set("X-Razorpay-Signature", "bad")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(payload))
	req.Header.Set("X-Razorpay-Signature", payment.Sign("whsec", payload))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	state, err := f.carts.Get(context.Background(), session)
	require.NoError(t, err)
	require.Empty(t, state.Items)

	req = httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(payload))
	req.Header.Set("X-Razorpay-Signature", payment.Sign("whsec", payload))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestIntentWithoutProvider(t *testing.T) {
	f := newFixture(t)
	f.fill(t)
	f.svc.Provider = nil

	_, err := f.svc.CreateIntent(context.Background(), session)
	require.ErrorIs(t, err, checkout.ErrPaymentDisabled)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+session+"/checkout/intent", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "PAYMENT_NOT_CONFIGURED")
}
