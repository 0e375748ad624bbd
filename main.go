package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"multichain-wallet-api/internal/aggregator"
	"multichain-wallet-api/internal/api"
	"multichain-wallet-api/internal/auth"
	"multichain-wallet-api/internal/cache"
	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/logos"
	"multichain-wallet-api/internal/notify"
	"multichain-wallet-api/internal/platform"
	"multichain-wallet-api/internal/providers"
	"multichain-wallet-api/internal/ratelimit"
	"multichain-wallet-api/internal/reconcile"
	"multichain-wallet-api/internal/store"
	"multichain-wallet-api/internal/utxo"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Shared cache for UTXO data and logo resolution
	sharedCache, err := cache.New(cfg.CacheSize)
	if err != nil {
		logger.Fatalf("Failed to create cache: %v", err)
	}

	// Initialize services
	directory := providers.NewDirectory(cfg, logger)
	quoteAggregator := aggregator.New(cfg, logger, directory.Quoters)
	utxoService := utxo.NewService(cfg, sharedCache, logger)
	logoResolver := logos.NewResolver(sharedCache, cfg.LogoCacheTTL)
	rateLimiter := ratelimit.NewLimiter(cfg, logger)
	authService := auth.NewService(cfg)

	// Reconciliation is only available when a database is configured
	var reconcileJob *reconcile.Job
	var recordStore *store.Store
	if cfg.DatabaseURL != "" {
		recordStore, err = store.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}

		var dispatcher reconcile.Dispatcher = &notify.LogDispatcher{Logger: logger}
		if cfg.NotifyWebhookURL != "" {
			dispatcher = notify.NewWebhookDispatcher(cfg.NotifyWebhookURL, cfg.NotifyWebhookTimeout, logger)
		}

		chainSources := make(map[string]reconcile.ChainSource)
		for _, chainCfg := range cfg.UTXOChains {
			if client, err := utxoService.Client(chainCfg.Chain); err == nil {
				chainSources[chainCfg.Chain] = client
			}
		}

		reconcileJob = reconcile.NewJob(recordStore, directory.Checkers, chainSources, dispatcher, logger)
		if cfg.ReconcileInterval > 0 {
			reconcileJob.Start(cfg.ReconcileInterval, reconcile.Options{MaxRows: cfg.ReconcileMaxRows})
		}
	} else {
		logger.Warn("DATABASE_URL not set; reconciliation routes will answer 503")
	}

	// Initialize HTTP handlers
	handlers := api.NewHandlers(api.HandlerConfig{
		Configuration: cfg,
		Logger:        logger,
		Aggregator:    quoteAggregator,
		Directory:     directory,
		UTXOService:   utxoService,
		LogoResolver:  logoResolver,
		RateLimiter:   rateLimiter,
		AuthService:   authService,
		ReconcileJob:  reconcileJob,
	})

	// Setup Gin router
	router := handlers.SetupRoutes()

	// Setup HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting wallet API on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Create a shutdown context that works across platforms
	shutdownCtx, stop := platform.NewShutdownContext(context.Background())
	defer stop()
	<-shutdownCtx.Done()

	logger.Info("Shutting down server...")

	// Stop background goroutines
	rateLimiter.Stop()
	if reconcileJob != nil {
		reconcileJob.Stop()
	}

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	if recordStore != nil {
		recordStore.Close()
	}

	logger.Info("Server exited")
}
