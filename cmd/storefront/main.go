// File: cmd/storefront/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-checkout/internal/application"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/domain/ports/repository"
	"storefront-checkout/internal/infra/apiclient"
	"storefront-checkout/internal/infra/diagnostics"
	"storefront-checkout/internal/infra/i18n"
	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/infra/metrics"
	"storefront-checkout/internal/infra/payment"
	red "storefront-checkout/internal/infra/redis"
	"storefront-checkout/internal/infra/security"
	"storefront-checkout/internal/infra/session"
	"storefront-checkout/internal/infra/web"
	"storefront-checkout/internal/infra/worker"
	"storefront-checkout/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, debug level)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Encryption ----
	encKey := cfg.Session.EncryptionKey
	if encKey == "" {
		logger.Warn().Msg("session.encryption_key not set; falling back to dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	sealer, err := security.NewSealer(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("sealer")
	}

	// ---- Session + attempt stores ----
	var (
		sessions repository.SessionStore
		attempts repository.AttemptStore
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		attempts = red.NewAttemptStore(redisClient, cfg.Redis.TTL)
		if cfg.Session.Backend == "redis" {
			sessions = red.NewSessionStore(redisClient, sealer, cfg.Redis.TTL)
		}
	}
	if sessions == nil {
		sessions = session.NewFileStore(cfg.Session.Path, sealer)
	}
	logger.Info().Str("backend", cfg.Session.Backend).Bool("attempt_mirror", attempts != nil).Msg("stores ready")

	// ---- Infra ----
	redirect := session.NewLoginRedirector(cfg.Session.LoginURL, logger)
	diag := diagnostics.New(cfg.Diagnostics.Capacity, logger)
	api := apiclient.New(apiclient.Options{
		PrimaryURL:     cfg.Backend.PrimaryURL,
		SecondaryURL:   cfg.Backend.SecondaryURL,
		AttemptTimeout: cfg.Backend.AttemptTimeout,
		Dev:            cfg.Runtime.Dev,
	}, sessions, redirect, logger)

	pool := worker.NewPool(cfg.Workers, logger)
	pool.Start(ctx)
	defer pool.Stop()

	// ---- Payment provider ----
	var (
		provider adapter.PaymentProvider
		host     web.CheckoutHost
	)
	switch cfg.Payment.Provider {
	case "manual":
		p := payment.NewManualProvider(cfg.HTTP.PublicURL, cfg.Payment.SessionTTL, logger)
		provider, host = p, p
		logger.Warn().Msg("manual payment provider in use; no money moves")
	default:
		p := payment.NewRazorpayProvider(payment.RazorpayConfig{
			KeyID:      cfg.Payment.KeyID,
			PublicURL:  cfg.HTTP.PublicURL,
			SessionTTL: cfg.Payment.SessionTTL,
		}, logger)
		provider, host = p, p
	}
	logger.Info().Str("provider", provider.Name()).Str("public_url", cfg.HTTP.PublicURL).Msg("payment provider ready")

	// ---- Use cases ----
	tracker := usecase.NewPurchaseTracker(attempts, diag, logger)
	if err := tracker.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not restore purchase attempts")
	}
	catalogUC := usecase.NewCatalogUseCase(api, diag, logger)
	discountUC := usecase.NewDiscountUseCase(api, diag, logger)
	profileUC := usecase.NewProfileUseCase(api, sessions, diag, logger)
	verifyUC := usecase.NewVerificationUseCase(api, tracker, profileUC, pool, diag, cfg.Backend.VerifyTimeout, logger)
	checkoutUC := usecase.NewCheckoutUseCase(api, sessions, redirect, tracker, provider, verifyUC, diag, usecase.CheckoutConfig{
		Currency:    cfg.Payment.Currency,
		CompanyName: cfg.Payment.CompanyName,
		ThemeColor:  cfg.Payment.ThemeColor,
		TotalCount:  cfg.Payment.TotalCount,
	}, logger)

	// ---- Facade ----
	translator, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Locale)
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}
	storefront := application.NewStorefront(catalogUC, checkoutUC, profileUC, discountUC, tracker, nil, sessions, redirect, diag, translator, logger)

	// ---- HTTP server ----
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           web.NewServer(storefront, host, 0, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("storefront listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	if n := len(tracker.Snapshot()); n > 0 {
		logger.Info().Int("attempts", n).Msg("purchase attempts left as mirrored")
	}
	cancel()
}
