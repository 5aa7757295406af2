package checkout

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/payment"
	"github.com/noah-isme/storefront/internal/resilience"
)

// Handler exposes checkout endpoints.
type Handler struct {
	Svc *Service
}

// Quote handles POST /carts/{session}/checkout/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	q, err := h.Svc.Quote(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, q)
}

// Intent handles POST /carts/{session}/checkout/intent.
func (h *Handler) Intent(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	out, err := h.Svc.CreateIntent(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

// Complete handles POST /carts/{session}/checkout/complete with the gateway's payment proof.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var proof payment.Proof
	if err := common.DecodeAndValidate(r, &proof); err != nil {
		h.writeError(w, err)
		return
	}
	state, err := h.Svc.Complete(r.Context(), chi.URLParam(r, "session"), proof)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"status": "PAID", "cart": state})
}

// Webhook handles POST /payments/webhook from the gateway.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Svc.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	result, err := h.Svc.Provider.VerifyWebhook(r, body)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to verify webhook", nil)
		return
	}
	if !result.Valid {
		if errors.Is(result.Err, payment.ErrInvalidSignature) {
			common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature mismatch", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "unable to parse webhook", nil)
		return
	}
	if err := h.Svc.HandleWebhook(r.Context(), result); err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"received": true, "status": result.Status})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) {
		return
	}
	var gwErr *payment.GatewayError
	switch {
	case errors.Is(err, cart.ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusConflict, "CART_EMPTY", "cart is empty", nil)
	case errors.Is(err, ErrPaymentDisabled):
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", "payments are not enabled", nil)
	case errors.Is(err, ErrUnknownOrder):
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "checkout order not found", nil)
	case errors.Is(err, payment.ErrInvalidSignature):
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "payment signature mismatch", nil)
	case errors.As(err, &gwErr):
		common.JSONError(w, http.StatusBadGateway, "PAYMENT_REJECTED", "payment gateway rejected the order", map[string]any{"gatewayCode": gwErr.Code})
	case errors.Is(err, resilience.ErrOpenCircuit), errors.Is(err, context.DeadlineExceeded):
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_UNAVAILABLE", "payment gateway unavailable", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout failed", nil)
	}
}
