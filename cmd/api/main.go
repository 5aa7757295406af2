package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/app"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/health"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/resilience"
	"github.com/noah-isme/storefront/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(nil)

	tracing := cfg.Obs.TracingEnabled
	if tracing {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "storefront-api",
			Environment:   cfg.AppEnv,
			Exporter:      cfg.Obs.TracingExporter,
			Endpoint:      cfg.Obs.OTLPEndpoint,
			SamplingRatio: cfg.Obs.SamplingRatio,
		})
		if err != nil {
			logger.Error().Err(err).Msg("tracing disabled")
			tracing = false
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					logger.Error().Err(err).Msg("flush traces")
				}
			}()
		}
	}

	buildCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	deps, err := app.Build(buildCtx, cfg, logger, app.Options{InstrumentRedis: cfg.Obs.MetricsEnabled || tracing})
	cancel()
	if err != nil {
		return fmt.Errorf("initialise dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	opts := app.RouterOptions{Tracing: tracing}
	if cfg.Obs.MetricsEnabled {
		opts.HTTPMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, cfg.Obs.MetricsBuckets, nil)
		opts.Metrics = promhttp.Handler()
	}

	root := chi.NewRouter()
	if cfg.Obs.PprofEnabled {
		guard := security.BasicAuth{User: cfg.AdminUser, Hash: cfg.AdminHash, Realm: "storefront-pprof", Logger: logger}
		root.Mount("/debug/pprof", guard.Middleware(pprofMux()))
	}
	root.Mount("/", deps.Router(opts))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("storage", cfg.CartStorage).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Fail readiness first so load balancers stop routing before the listener closes.
	health.SetReady(false)
	logger.Info().Dur("drain", cfg.Obs.ShutdownDrain).Msg("shutdown requested")
	time.Sleep(cfg.Obs.ShutdownDrain)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func pprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
