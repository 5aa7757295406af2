package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/checkout"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/health"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/ratelimit"
	"github.com/noah-isme/storefront/internal/security"
)

// RouterOptions toggles the cross-cutting middleware that depends on process-level setup.
type RouterOptions struct {
	Tracing     bool
	HTTPMetrics *obs.HTTPMetrics
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// Router mounts the public API, admin routes and ops endpoints.
func (d *Dependencies) Router(opts RouterOptions) http.Handler {
	cfg := d.Config

	cartHandler := &cart.Handler{
		Svc:      d.Carts,
		Products: d.Catalog,
		TaxBps:   cfg.TaxRateBps,
		Shipping: pricing.Money(cfg.ShippingFlat),
		Currency: cfg.Currency,
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: d.Catalog, Logger: d.Logger})
	checkoutHandler := &checkout.Handler{Svc: d.Checkout}
	healthHandler := health.Handler{Probes: d.Probes()}

	limit := ratelimit.Handler{
		Backend: d.Limiter,
		Rule:    ratelimit.Rule{Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
		Key:     ratelimit.ByClientIP("cart"),
		OnError: func(r *http.Request, err error) {
			d.Logger.Warn().Err(err).Str("path", r.URL.Path).Msg("rate limiter unavailable, letting request through")
		},
	}.Middleware
	idem := common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL}.Middleware
	admin := security.BasicAuth{User: cfg.AdminUser, Hash: cfg.AdminHash, Logger: d.Logger}.Middleware

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.Headers{HSTS: hstsFor(cfg.AppEnv), NoStore: true}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Total-Count", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.ProductDetail)

		v.Group(func(m chi.Router) {
			m.Use(limit)
			m.Post("/carts", cartHandler.Create)
			m.Route("/carts/{session}", func(c chi.Router) {
				c.Get("/", cartHandler.Get)
				c.Delete("/", cartHandler.Clear)
				c.Post("/items", cartHandler.AddItem)
				c.Put("/items/{productId}", cartHandler.SetQuantity)
				c.Delete("/items/{productId}", cartHandler.RemoveItem)
				c.Post("/items/{productId}/increase", cartHandler.Increase)
				c.Post("/items/{productId}/decrease", cartHandler.Decrease)

				c.Post("/checkout/quote", checkoutHandler.Quote)
				c.With(idem).Post("/checkout/intent", checkoutHandler.Intent)
				c.Post("/checkout/complete", checkoutHandler.Complete)
			})
			m.Delete("/sessions/{session}", cartHandler.Logout)
		})

		v.Post("/payments/webhook", checkoutHandler.Webhook)

		v.Route("/admin", func(a chi.Router) {
			a.Use(admin)
			a.Post("/catalog/invalidate", catalogHandler.Invalidate)
		})
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// hstsFor enables a one-year HSTS policy in production only.
func hstsFor(env string) time.Duration {
	if env == "production" {
		return 365 * 24 * time.Hour
	}
	return 0
}
