// Package main is the entry point for the Quartermaster capital allocation
// service. It arbitrates shared capital across concurrent trading bots:
// every buy signal passes through one gate that enforces target weights,
// drift bands, the cash reserve and per-bot caps, and every decision is
// recorded in an append-only ledger.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/quartermaster/internal/clients/broker"
	"github.com/aristath/quartermaster/internal/clients/pricefeed"
	"github.com/aristath/quartermaster/internal/config"
	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/modules/allocator"
	"github.com/aristath/quartermaster/internal/modules/decisionlog"
	"github.com/aristath/quartermaster/internal/modules/gate"
	"github.com/aristath/quartermaster/internal/modules/guard"
	"github.com/aristath/quartermaster/internal/modules/statestore"
	"github.com/aristath/quartermaster/internal/modules/targets"
	"github.com/aristath/quartermaster/internal/modules/valuation"
	"github.com/aristath/quartermaster/internal/scheduler"
	"github.com/aristath/quartermaster/internal/server"
	"github.com/aristath/quartermaster/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("targets", cfg.TargetsPath).
		Msg("Starting Quartermaster")

	// Decision ledger. Append-only, so the durable-writes profile.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "decisions.db"),
		Profile: database.ProfileLedger,
		Name:    "decisions",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open decision ledger")
	}
	defer ledgerDB.Close()

	if err := ledgerDB.Migrate(decisionlog.Schema); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate decision ledger")
	}

	// Target weights, bands and bot caps. Fail fast on an invalid file.
	registry, err := targets.New(cfg.TargetsPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load targets config")
	}

	store, err := statestore.New(cfg.DataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state store")
	}

	prices := pricefeed.NewClient(pricefeed.Config{
		BaseURL:  cfg.PriceFeedURL,
		CacheTTL: cfg.PriceCacheTTL,
		Timeout:  cfg.PriceFeedTimeout,
	}, log)

	allocGuard := guard.New(guard.Config{
		LockPath:       filepath.Join(cfg.DataDir, "allocator.lock"),
		AcquireTimeout: cfg.LockTimeout,
		StaleAfter:     cfg.LockStaleAfter,
	}, log)

	calc := valuation.Calculator{ExcludeIdleCash: cfg.ExcludeIdleCash}
	allocationGate := gate.New(registry, calc, gate.Config{
		SafetyReserveUsdc: cfg.SafetyReserveUsdc,
		MinOrderUsdc:      cfg.MinOrderUsdc,
	}, log)

	decisionRepo := decisionlog.NewRepository(ledgerDB.Conn(), log)
	recorder := decisionlog.NewRecorder(decisionRepo, log)

	orders := broker.NewClient(broker.Config{
		BaseURL: cfg.BrokerURL,
		Timeout: cfg.BrokerTimeout,
	}, log)

	allocService := allocator.New(allocGuard, store, prices, registry, allocationGate, orders, recorder, log)

	// Background maintenance. Six-field cron specs, seconds first.
	sched := scheduler.New(log)
	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{"0 0 * * * *", scheduler.NewWALCheckpointJob(ledgerDB, log)},
		{"0 30 3 * * *", scheduler.NewPruneDecisionsJob(decisionRepo, cfg.DecisionRetentionDays, log)},
		{"0 */15 * * * *", scheduler.NewDriftReportJob(allocService, registry, calc, log)},
	}
	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			log.Fatal().Err(err).Str("job", j.job.Name()).Msg("Failed to register job")
		}
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:          log,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		Registry:     registry,
		Allocator:    allocService,
		Valuation:    calc,
		DecisionRepo: decisionRepo,
		LedgerDB:     ledgerDB,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	sched.Stop()

	// Leave the ledger compact for the next start.
	if err := ledgerDB.WALCheckpoint(context.Background(), "TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("Final ledger checkpoint failed")
	}

	log.Info().Msg("Quartermaster stopped")
}
