package main

import (
	"context"
	"os"

	"rimborsi/internal/backend"
	"rimborsi/internal/cli"
	applog "rimborsi/internal/log"
	"rimborsi/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting rimborsi-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger.Logger)
	result, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	payouts, err := factory.CreateLedger(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize payout ledger", "error", err, "ledger", cfg.LedgerBackend)
		os.Exit(1)
	}

	exporter := worker.NewExportWorker(result.Store, payouts, cfg.SyncBatchSize, cfg.SyncInterval, logger)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(context.Context) {
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	// Without a broker the worker still reconciles on every tick.
	var source worker.MessageSource
	if result.Events != nil {
		source = result.Events
	} else {
		logger.Warn("No AMQP connection, exporting from periodic reconciliation only")
	}

	if err := exporter.Run(ctx, source); err != nil {
		logger.Error("Export worker stopped", "error", err)
		if result.Cleanup != nil {
			_ = result.Cleanup()
		}
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
}
