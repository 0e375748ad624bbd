// Command sweep runs a single reconciliation pass from the command line,
// useful for operating the sweep outside an HTTP cron trigger.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"multichain-wallet-api/internal/cache"
	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/notify"
	"multichain-wallet-api/internal/providers"
	"multichain-wallet-api/internal/reconcile"
	"multichain-wallet-api/internal/store"
	"multichain-wallet-api/internal/utxo"
)

func main() {
	maxRows := flag.Int("max-rows", 0, "cap on records per sweep (default from config)")
	userID := flag.String("user", "", "scope the sweep to one user id")
	includeFresh := flag.Bool("include-fresh", false, "also sweep records not yet due")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall sweep timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required for a reconciliation sweep")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	recordStore, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer recordStore.Close()

	sharedCache, err := cache.New(cfg.CacheSize)
	if err != nil {
		logger.Fatalf("Failed to create cache: %v", err)
	}

	directory := providers.NewDirectory(cfg, logger)
	utxoService := utxo.NewService(cfg, sharedCache, logger)

	chainSources := make(map[string]reconcile.ChainSource)
	for _, chainCfg := range cfg.UTXOChains {
		if client, err := utxoService.Client(chainCfg.Chain); err == nil {
			chainSources[chainCfg.Chain] = client
		}
	}

	job := reconcile.NewJob(recordStore, directory.Checkers, chainSources, &notify.LogDispatcher{Logger: logger}, logger)

	rows := cfg.ReconcileMaxRows
	if *maxRows > 0 {
		rows = *maxRows
	}

	summary, err := job.Run(ctx, reconcile.Options{
		MaxRows:      rows,
		UserID:       *userID,
		IncludeFresh: *includeFresh,
	})
	if err != nil {
		logger.Fatalf("Sweep failed: %v", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(summary)
}
