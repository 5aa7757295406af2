package catalog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/common"
)

// Handler exposes public and admin catalog endpoints.
type Handler struct {
	service *Service
	logger  zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
	Logger  zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service, logger: cfg.Logger}
}

// Products handles GET /api/v1/products with filters, sorting, and pagination.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	params, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.service.ListProducts(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.NewPagination(result.Page, result.Limit, int(result.Total)),
	})
}

// ProductDetail handles GET /api/v1/products/{id}.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	product, err := h.service.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, product)
}

type invalidateRequest struct {
	IDs []string `json:"ids" validate:"omitempty,max=500,dive,required"`
}

// Invalidate handles POST /api/v1/admin/catalog/invalidate. An empty id list drops the whole
// cache.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	var payload invalidateRequest
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.service.Invalidate(r.Context(), payload.IDs...); err != nil {
		h.logger.Error().Err(err).Strs("ids", payload.IDs).Msg("catalog invalidation failed")
		h.writeError(w, err)
		return
	}
	scope := "all"
	if len(payload.IDs) > 0 {
		scope = "ids"
	}
	h.logger.Info().Str("scope", scope).Int("count", len(payload.IDs)).Msg("catalog cache invalidated")
	common.Data(w, http.StatusOK, map[string]any{"scope": scope, "ids": payload.IDs})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) {
		return
	}
	h.logger.Error().Err(err).Msg("catalog request failed")
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
