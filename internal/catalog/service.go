package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/common"
)

// Service orchestrates catalog reads, filtering, and caching.
type Service struct {
	source       Source
	cache        *Cache
	defaultPage  int
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Source       Source
	Cache        *Cache
	DefaultPage  int
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query    string
	Category string
	MinPrice *float64
	MaxPrice *float64
	InStock  *bool
	Sort     string
	Page     int
	Limit    int
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []Product
	Total int64
	Page  int
	Limit int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	defaultPage := cfg.DefaultPage
	if defaultPage < 1 {
		defaultPage = 1
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		source:       cfg.Source,
		cache:        cfg.Cache,
		defaultPage:  defaultPage,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{
		Page:  s.defaultPage,
		Limit: s.defaultLimit,
	}
	params.Query = strings.TrimSpace(values.Get("q"))
	params.Category = strings.TrimSpace(values.Get("category"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}

	limit := s.defaultLimit
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		limit = l
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	params.Limit = limit

	if v := strings.TrimSpace(values.Get("minPrice")); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return params, badRequest("minPrice", "minPrice must be a number", err)
		}
		params.MinPrice = &parsed
	}
	if v := strings.TrimSpace(values.Get("maxPrice")); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return params, badRequest("maxPrice", "maxPrice must be a number", err)
		}
		params.MaxPrice = &parsed
	}
	if params.MinPrice != nil && params.MaxPrice != nil && *params.MinPrice > *params.MaxPrice {
		return params, badRequest("price", "minPrice cannot be greater than maxPrice", fmt.Errorf("invalid price range"))
	}

	if v := strings.TrimSpace(values.Get("inStock")); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return params, badRequest("inStock", "inStock must be true or false", err)
		}
		params.InStock = &b
	}

	params.Sort = normalizeSort(values.Get("sort"))
	return params, nil
}

// ListProducts filters, sorts and pages the catalog. Price filters apply to the discounted
// unit price.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ProductListResult, error) {
	all, err := s.all(ctx)
	if err != nil {
		return ProductListResult{}, err
	}
	query := strings.ToLower(params.Query)
	filtered := make([]Product, 0, len(all))
	for _, p := range all {
		if query != "" && !strings.Contains(strings.ToLower(p.Title), query) && !strings.Contains(strings.ToLower(p.Slug), query) {
			continue
		}
		if params.Category != "" && !strings.EqualFold(p.Category, params.Category) {
			continue
		}
		if params.MinPrice != nil && p.UnitPrice < *params.MinPrice {
			continue
		}
		if params.MaxPrice != nil && p.UnitPrice > *params.MaxPrice {
			continue
		}
		if params.InStock != nil && p.InStock != *params.InStock {
			continue
		}
		filtered = append(filtered, p)
	}

	switch params.Sort {
	case "price:asc":
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].UnitPrice < filtered[j].UnitPrice })
	case "price:desc":
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].UnitPrice > filtered[j].UnitPrice })
	case "title:asc":
		sort.SliceStable(filtered, func(i, j int) bool { return strings.ToLower(filtered[i].Title) < strings.ToLower(filtered[j].Title) })
	case "title:desc":
		sort.SliceStable(filtered, func(i, j int) bool { return strings.ToLower(filtered[i].Title) > strings.ToLower(filtered[j].Title) })
	}

	page, limit := params.Page, params.Limit
	if page < 1 {
		page = s.defaultPage
	}
	if limit < 1 {
		limit = s.defaultLimit
	}
	start := (page - 1) * limit
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return ProductListResult{
		Items: filtered[start:end],
		Total: int64(len(filtered)),
		Page:  page,
		Limit: limit,
	}, nil
}

// Product returns one catalog entry. Unknown ids produce a NOT_FOUND AppError.
func (s *Service) Product(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, badRequest("id", "product id is required", nil)
	}
	p, err := Lookup(ctx, s.cache, productKey(id), func(ctx context.Context) (Product, error) {
		p, err := s.source.Get(ctx, id)
		if err != nil {
			return Product{}, err
		}
		return withDerived(p), nil
	})
	if errors.Is(err, ErrProductNotFound) {
		return Product{}, common.NewAppError("NOT_FOUND", "product not found", http.StatusNotFound, err)
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// CartProduct resolves the value a cart line is built from. Out-of-stock products cannot be
// added.
func (s *Service) CartProduct(ctx context.Context, id string) (cart.Product, error) {
	p, err := s.Product(ctx, id)
	if err != nil {
		return cart.Product{}, err
	}
	if !p.InStock {
		return cart.Product{}, common.NewAppError("OUT_OF_STOCK", "product is out of stock", http.StatusConflict, nil)
	}
	return p.CartProduct(), nil
}

// Invalidate drops cached entries for the given product ids, or everything when none are given.
func (s *Service) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return s.cache.InvalidateAll(ctx)
	}
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, listKey)
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}
	return s.cache.Invalidate(ctx, keys...)
}

// Ping checks the source can be read.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.source.All(ctx)
	return err
}

const listKey = keyPrefix + "products"

func productKey(id string) string {
	return keyPrefix + "product:" + id
}

func (s *Service) all(ctx context.Context) ([]Product, error) {
	products, err := Lookup(ctx, s.cache, listKey, func(ctx context.Context) ([]Product, error) {
		rows, err := s.source.All(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Product, 0, len(rows))
		for _, p := range rows {
			out = append(out, withDerived(p))
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "y":
		return true, nil
	case "false", "0", "no", "n":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean: %s", value)
	}
}

func normalizeSort(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "price:asc", "price:desc", "title:asc", "title:desc":
		return s
	default:
		return ""
	}
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
