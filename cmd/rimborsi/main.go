package main

import (
	"context"
	"net/http"
	"os"

	"rimborsi/internal/backend"
	"rimborsi/internal/budget"
	"rimborsi/internal/cache"
	"rimborsi/internal/cli"
	apphttp "rimborsi/internal/http"
	applog "rimborsi/internal/log"
	"rimborsi/internal/middleware/ratelimit"
	"rimborsi/internal/services"
	"rimborsi/internal/workflow"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	result, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	validator := budget.NewValidator(result.Store,
		result.BudgetSink(logger.WithComponent(applog.ComponentBudget)),
		logger.WithComponent(applog.ComponentBudget).Logger)
	machine := workflow.NewMachine(logger.WithComponent(applog.ComponentWorkflow).Logger)
	service := services.NewExpenseService(result.Store, machine, validator, result.Publisher())

	cacheManager := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Service:        service,
		Users:          result.Store,
		Logger:         logger,
		ActorCacheSize: cfg.ActorCacheSize,
		ActorCacheTTL:  cfg.ActorCacheTTL,
		CacheManager:   cacheManager,
		RateLimit:      ratelimit.DefaultConfig(),
		Ready:          result.Ready,
	})
	cacheManager.StartCleanup(cfg.ActorCacheTTL)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Stop()
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	logger.Info("Starting rimborsi server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"messaging", result.Events != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
