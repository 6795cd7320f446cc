// Command stockpilot runs the bundle inventory reconciliation service: it
// receives order webhooks from the commerce platform and applies the matching
// stock adjustments for each bundle component.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bundleworks/stockpilot/pkg/api"
	"github.com/bundleworks/stockpilot/pkg/auth"
	"github.com/bundleworks/stockpilot/pkg/config"
	"github.com/bundleworks/stockpilot/pkg/observability"
	"github.com/bundleworks/stockpilot/pkg/reconcile"
	"github.com/bundleworks/stockpilot/pkg/shopify"
	"github.com/bundleworks/stockpilot/pkg/store"

	_ "github.com/lib/pq" // Postgres driver for the durable dedup backend
)

func main() {
	profilePath := flag.String("config", os.Getenv("STOCKPILOT_PROFILE"), "optional YAML config profile")
	flag.Parse()

	cfg := config.Load()
	if *profilePath != "" {
		if err := config.LoadProfile(*profilePath, cfg); err != nil {
			log.Fatalf("config profile: %v", err)
		}
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "stockpilot",
		ServiceVersion: "1.0.0",
		Environment:    os.Getenv("ENVIRONMENT"),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTELEnabled,
		Insecure:       true,
	})
	if err != nil {
		log.Fatalf("observability: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	dedup, cleanup, err := newDeduplicator(ctx, cfg)
	if err != nil {
		log.Fatalf("dedup backend: %v", err)
	}
	defer cleanup()
	if cfg.DedupBackend != "redis" {
		// Redis entries expire via per-key TTL; the other backends need the
		// periodic sweep to bound growth.
		reconcile.StartSweeper(ctx, dedup, cfg.SweepInterval, logger)
	}
	logger.Info("dedup backend ready", "backend", cfg.DedupBackend)

	results, resultDB, err := store.Open(cfg.ResultDBPath)
	if err != nil {
		log.Fatalf("result store: %v", err)
	}
	defer func() { _ = resultDB.Close() }()

	catalog := shopify.NewClient(shopify.Options{
		ShopDomain: cfg.ShopDomain,
		Token:      cfg.AdminToken,
		APIVersion: cfg.APIVersion,
		Timeout:    cfg.CallTimeout,
		RPS:        cfg.GraphQLRPS,
		Burst:      cfg.GraphQLBurst,
	})

	if cfg.AppURL != "" {
		callback := strings.TrimSuffix(cfg.AppURL, "/") + "/webhooks/orders"
		if err := catalog.EnsureSubscriptions(ctx, callback); err != nil {
			// The app still serves already-subscribed topics; registration
			// is retried on next boot.
			logger.Error("webhook subscription registration failed", "error", err)
		}
	}

	reconciler := reconcile.New(dedup, catalog,
		reconcile.WithRecorder(results),
		reconcile.WithObservability(obs),
		reconcile.WithLogger(logger.With("component", "reconciler")),
	)

	webhookVerifier := auth.NewWebhookVerifier(cfg.APISecret)
	sessionValidator := auth.NewSessionValidator(cfg.APIKey, cfg.APISecret, cfg.ShopDomain)
	rateLimiter := api.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer rateLimiter.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", api.HealthHandler)

	webhookHandler := api.NewWebhookHandler(reconciler)
	mux.Handle("POST /webhooks/orders", webhookVerifier.Middleware(
		http.HandlerFunc(webhookHandler.Handle)))

	opsMux := http.NewServeMux()
	api.NewOpsHandler(results, reconciler).Register(opsMux)
	mux.Handle("/ops/", auth.NewMiddleware(sessionValidator)(opsMux))

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.Chain(mux,
			auth.RequestIDMiddleware,
			rateLimiter.Middleware,
			api.LoggingMiddleware(logger),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("stockpilot listening", "addr", server.Addr, "shop", cfg.ShopDomain)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// newDeduplicator selects the idempotency backend. Memory is the default;
// redis and postgres survive restarts and shared deployments.
func newDeduplicator(ctx context.Context, cfg *config.Config) (reconcile.Deduplicator, func(), error) {
	switch cfg.DedupBackend {
	case "redis":
		d := reconcile.NewRedisDeduplicator(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SweepInterval)
		return d, func() { _ = d.Close() }, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		d := reconcile.NewPostgresDeduplicator(db, cfg.SweepInterval)
		if err := d.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return d, func() { _ = db.Close() }, nil
	default:
		return reconcile.NewMemoryDeduplicator(), func() {}, nil
	}
}
