// Package main is the entry point for the storefront scanner service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	catalogapp "github.com/teuchmannluca/storefront-scanner/business/catalog/app"
	pricingapp "github.com/teuchmannluca/storefront-scanner/business/pricing/app"
	"github.com/teuchmannluca/storefront-scanner/business/pricing/infra/mws"
	scanapp "github.com/teuchmannluca/storefront-scanner/business/scan/app"
	"github.com/teuchmannluca/storefront-scanner/business/scan/infra/identity"
	"github.com/teuchmannluca/storefront-scanner/business/scan/infra/postgres"
	"github.com/teuchmannluca/storefront-scanner/business/scan/infra/rest"
	"github.com/teuchmannluca/storefront-scanner/internal/apm"
	"github.com/teuchmannluca/storefront-scanner/internal/config"
	"github.com/teuchmannluca/storefront-scanner/internal/health"
	"github.com/teuchmannluca/storefront-scanner/internal/logger"
	"github.com/teuchmannluca/storefront-scanner/internal/marketplace"
	"github.com/teuchmannluca/storefront-scanner/internal/metrics"
	"github.com/teuchmannluca/storefront-scanner/internal/ratelimit"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("storefront-scanner %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(os.Stderr, logger.Level(cfg.App.LogLevel), cfg.App.Name)
	log.Info(ctx, "starting storefront scanner",
		"version", version,
		"environment", cfg.App.Environment)

	// Observability
	traceProvider := apm.NewTraceProvider(apm.Options{Provider: apm.EmptyProvider})
	if cfg.Telemetry.Enabled {
		provider := apm.ConsoleProvider
		if cfg.Telemetry.OTLPEndpoint != "" {
			provider = apm.OTLPProvider
		}
		traceProvider = apm.NewTraceProvider(apm.Options{
			Provider:    provider,
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
		})
		log.Info(ctx, "tracing initialized", "provider", string(provider))

		go func() {
			if err := metrics.Serve(cfg.Telemetry.PrometheusPort); err != nil {
				log.Warn(ctx, "metrics server stopped", "error", err)
			}
		}()
		log.Info(ctx, "prometheus metrics server started", "port", cfg.Telemetry.PrometheusPort)
	}
	defer func() {
		if err := traceProvider.Stop(); err != nil {
			log.Warn(ctx, "stopping trace provider", "error", err)
		}
	}()

	// Storage
	store, err := postgres.New(ctx, postgres.Config{
		URL:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	log.Info(ctx, "database ready")

	// Marketplace registry and quota gate
	registry := marketplace.DefaultRegistry(cfg.Scan.HomeMarketplace, cfg.Scan.ExchangeRatesDecimal())
	gate := ratelimit.NewGate(map[ratelimit.Class]ratelimit.ClassConfig{
		ratelimit.ClassPricing: {MinInterval: cfg.Quota.PricingInterval, Burst: cfg.Quota.PricingBurst},
		ratelimit.ClassFees:    {MinInterval: cfg.Quota.FeesInterval, Burst: cfg.Quota.FeesBurst},
	})

	// Provider client
	provider, err := mws.NewClient(mws.ClientConfig{
		BaseURL:        cfg.Provider.BaseURL,
		APIKey:         cfg.Provider.APIKey,
		RequestTimeout: cfg.Provider.RequestTimeout,
	}, registry, log)
	if err != nil {
		return fmt.Errorf("failed to create provider client: %w", err)
	}

	// Scan pipeline
	caller := pricingapp.NewCaller(gate, pricingapp.CallerConfig{
		PricingCooldown: cfg.Quota.PricingCooldown,
		FeesCooldown:    cfg.Quota.FeesCooldown,
	}, log)
	calc := scanapp.NewCalculator(registry,
		cfg.Scan.ServiceFeePercentDecimal(),
		cfg.Scan.MinProfitDecimal())
	orch := scanapp.NewOrchestrator(
		store, store, provider, provider, caller, gate,
		catalogapp.NewDeduplicator(log), calc,
		cfg.Scan.HomeMarketplace,
		scanapp.OrchestratorConfig{
			BatchSize:           cfg.Scan.BatchSize,
			ForeignMarketplaces: cfg.Scan.ForeignMarketplaces,
			EventBuffer:         cfg.Scan.EventBuffer,
		},
		log,
	)

	creds, err := identity.ParseCredentials(cfg.Server.APITokens)
	if err != nil {
		return fmt.Errorf("invalid api token configuration: %w", err)
	}
	if len(creds) == 0 {
		log.Warn(ctx, "no api tokens configured, all scan requests will be rejected")
	}
	verifier := identity.NewStaticVerifier(creds)

	// Health server
	healthServer := health.NewServer(cfg.Server.HealthPort, version)
	healthServer.RegisterCheck("database", func(ctx context.Context) (bool, string) {
		if err := store.Ping(ctx); err != nil {
			return false, err.Error()
		}
		return true, ""
	})
	healthServer.RegisterCheck("provider", func(ctx context.Context) (bool, string) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, cfg.Provider.BaseURL, nil)
		if err != nil {
			return false, err.Error()
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false, err.Error()
		}
		resp.Body.Close()
		return true, ""
	})
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.Server.HealthPort)
	}
	defer healthServer.Stop(context.Background())

	// API server
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	rest.NewHandler(orch, verifier, log).Routes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "api server started", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "api server shutdown", "error", err)
	}
	return nil
}
