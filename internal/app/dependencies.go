package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/checkout"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/health"
	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/payment"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/ratelimit"
	"github.com/noah-isme/storefront/internal/resilience"
	"github.com/noah-isme/storefront/internal/storage"
)

// Backend is a cart storage backend that can also be probed for readiness.
type Backend interface {
	cart.Storage
	Ping(ctx context.Context) error
}

// Options tunes dependency construction beyond what config carries.
type Options struct {
	// Redis, when set, is used instead of dialing cfg.RedisURL. Tests pass a miniredis client.
	Redis *redis.Client
	// InstrumentRedis enables redisotel tracing and metrics on a dialed client.
	InstrumentRedis bool
}

// Dependencies holds the services shared by the HTTP surface.
type Dependencies struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Redis   *redis.Client
	DB      *pgxpool.Pool
	Storage Backend

	Carts    *cart.Service
	Catalog  *catalog.Service
	Checkout *checkout.Service
	Limiter  ratelimit.Backend

	closers []func() error
}

// Build connects backends and assembles services from cfg. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (deps *Dependencies, err error) {
	d := &Dependencies{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	if err := d.connectRedis(ctx, opts); err != nil {
		return nil, err
	}
	if err := d.openStorage(ctx); err != nil {
		return nil, err
	}

	var locker cart.Locker = lock.NewLocal()
	if d.Redis != nil && cfg.CartStorage == config.StorageRedis {
		locker = lock.Locker{Client: d.Redis, Prefix: "lock:"}
	}
	d.Carts = &cart.Service{
		Storage:   d.Storage,
		Locker:    locker,
		KeyPrefix: cfg.CartKeyPrefix,
		LockTTL:   cfg.CartLockTTL,
		Logger:    logger.With().Str("component", "cart").Logger(),
	}

	if err := d.buildCatalog(ctx); err != nil {
		return nil, err
	}

	d.Checkout = &checkout.Service{
		Carts:    d.Carts,
		Provider: d.paymentProvider(),
		Records:  d.Storage,
		TaxBps:   cfg.TaxRateBps,
		Shipping: pricing.Money(cfg.ShippingFlat),
		Currency: cfg.Currency,
		Logger:   logger.With().Str("component", "checkout").Logger(),
	}

	if d.Redis != nil {
		d.Limiter = ratelimit.SlidingWindow{Client: d.Redis, Prefix: "ratelimit:"}
	} else {
		d.Limiter = ratelimit.NewMemory()
	}
	return d, nil
}

func (d *Dependencies) connectRedis(ctx context.Context, opts Options) error {
	if opts.Redis != nil {
		d.Redis = opts.Redis
		return nil
	}
	if d.Config.RedisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(d.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	d.closers = append(d.closers, client.Close)
	if opts.InstrumentRedis {
		if err := redisotel.InstrumentTracing(client); err != nil {
			d.Logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			d.Logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	d.Redis = client
	return nil
}

func (d *Dependencies) openStorage(ctx context.Context) error {
	switch d.Config.CartStorage {
	case config.StorageRedis:
		if d.Redis == nil {
			return errors.New("redis storage selected but no redis client")
		}
		d.Storage = storage.NewRedis(d.Redis, d.Config.CartTTL)
	case config.StorageFile:
		f, err := storage.NewFile(d.Config.CartStateDir)
		if err != nil {
			return fmt.Errorf("open file storage: %w", err)
		}
		d.Storage = f
	case config.StorageSQLite:
		db, err := storage.OpenSQLite(ctx, d.Config.CartSQLite)
		if err != nil {
			return fmt.Errorf("open sqlite storage: %w", err)
		}
		d.closers = append(d.closers, db.Close)
		d.Storage = db
	default:
		return fmt.Errorf("unknown cart storage %q", d.Config.CartStorage)
	}
	d.Logger.Info().Str("backend", d.Config.CartStorage).Msg("cart storage ready")
	return nil
}

func (d *Dependencies) buildCatalog(ctx context.Context) error {
	var source catalog.Source = catalog.YAMLSource{Path: d.Config.CatalogFile}
	if d.Config.DatabaseURL != "" {
		poolConfig, err := pgxpool.ParseConfig(d.Config.DatabaseURL)
		if err != nil {
			return fmt.Errorf("parse database config: %w", err)
		}
		poolConfig.ConnConfig.Tracer = obs.PGXTracer{Logger: d.Logger, SlowQuery: 250 * time.Millisecond}
		if poolConfig.ConnConfig.RuntimeParams == nil {
			poolConfig.ConnConfig.RuntimeParams = map[string]string{}
		}
		poolConfig.ConnConfig.RuntimeParams["application_name"] = "storefront-api"
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		d.closers = append(d.closers, func() error { pool.Close(); return nil })
		d.DB = pool
		source = catalog.PostgresSource{DB: pool}
	}

	var remote *catalog.RemoteCache
	if d.Redis != nil {
		remote = catalog.NewRemoteCache(d.Redis, d.Config.CatalogCacheTTL)
	}
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Source: source,
		Cache:  catalog.NewCache(d.Config.CatalogCacheTTL, remote, d.Logger.With().Str("component", "catalog").Logger()),
	})
	if err != nil {
		return err
	}
	d.Catalog = svc
	return nil
}

func (d *Dependencies) paymentProvider() payment.Provider {
	pc := d.Config.Payment
	if !pc.Enabled() {
		d.Logger.Warn().Msg("payment gateway credentials missing; checkout intents disabled")
		return nil
	}
	breaker := resilience.NewBreaker("razorpay", pc.BreakerFailures, pc.BreakerCooldown).
		WithLogger(d.Logger)
	return payment.Razorpay{
		KeyID:         pc.KeyID,
		KeySecret:     pc.KeySecret,
		WebhookSecret: pc.WebhookSecret,
		BaseURL:       pc.BaseURL,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: pc.MaxAttempts,
			Timeout:     pc.Timeout,
		},
	}
}

// Probes returns the readiness checks for the configured backends.
func (d *Dependencies) Probes() map[string]health.Probe {
	probes := map[string]health.Probe{
		"storage": d.Storage.Ping,
		"catalog": d.Catalog.Ping,
	}
	if d.Redis != nil && d.Config.CartStorage != config.StorageRedis {
		probes["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	return probes
}

// Close releases every connection Build opened, in reverse order.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
