package cart

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/pricing"
)

// ProductResolver looks up the catalog entry added to a cart.
type ProductResolver interface {
	CartProduct(ctx context.Context, id string) (Product, error)
}

// Handler wires cart services to HTTP.
type Handler struct {
	Svc      *Service
	Products ProductResolver
	TaxBps   int
	Shipping pricing.Money
	Currency string
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=128"`
	Qty       int    `json:"qty" validate:"omitempty,min=1,max=999"`
}

type setQuantityRequest struct {
	Qty *int `json:"qty" validate:"required,min=0,max=999"`
}

// Create mints a session and returns its empty cart.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	session := h.Svc.NewSession()
	view := h.view(Empty())
	view["sessionId"] = session
	common.Data(w, http.StatusCreated, view)
}

// Get returns cart contents and pricing preview.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	state, err := h.Svc.Get(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, h.view(state))
}

// AddItem resolves the product from the catalog and adds it to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Products == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload addItemRequest
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	session := chi.URLParam(r, "session")
	if _, err := h.Svc.Key(session); err != nil {
		h.writeError(w, err)
		return
	}
	product, err := h.Products.CartProduct(r.Context(), strings.TrimSpace(payload.ProductID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.dispatch(w, r, session, Add(product, payload.Qty))
}

// SetQuantity sets a line's quantity; zero removes the line.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var payload setQuantityRequest
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	h.lineAction(w, r, func(id string) Action { return SetQuantity(id, *payload.Qty) })
}

// Increase adds one unit to a line.
func (h *Handler) Increase(w http.ResponseWriter, r *http.Request) {
	h.lineAction(w, r, Increase)
}

// Decrease removes one unit from a line.
func (h *Handler) Decrease(w http.ResponseWriter, r *http.Request) {
	h.lineAction(w, r, Decrease)
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.lineAction(w, r, Remove)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, chi.URLParam(r, "session"), Clear())
}

// Logout ends a shopping session. The cart does not outlive it.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	if _, _, err := h.Svc.Dispatch(r.Context(), chi.URLParam(r, "session"), Clear()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lineAction dispatches an action on an existing line. Actions on absent lines report 404 so
// clients can tell a stale view from success.
func (h *Handler) lineAction(w http.ResponseWriter, r *http.Request, build func(string) Action) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	session := chi.URLParam(r, "session")
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "product id required", nil)
		return
	}
	state, err := h.Svc.Get(r.Context(), session)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if state.Find(productID) < 0 {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "item not in cart", nil)
		return
	}
	h.dispatch(w, r, session, build(productID))
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, session string, a Action) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	state, changed, err := h.Svc.Dispatch(r.Context(), session, a)
	if err != nil {
		h.writeError(w, err)
		return
	}
	view := h.view(state)
	view["changed"] = changed
	common.Data(w, http.StatusOK, view)
}

func (h *Handler) view(state State) map[string]any {
	currency := h.Currency
	if currency == "" {
		currency = "INR"
	}
	return map[string]any{
		"items":      state.Items,
		"totalQty":   state.TotalQty,
		"totalPrice": state.TotalPrice,
		"pricing":    pricing.Compute(state.PricingItems(), h.TaxBps, h.Shipping),
		"currency":   currency,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) {
		return
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		common.JSONError(w, http.StatusServiceUnavailable, "CART_BUSY", "cart is busy, retry shortly", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to update cart", nil)
	}
}
