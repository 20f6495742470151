package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cambista/internal/backend"
	"cambista/internal/cache"
	"cambista/internal/cli"
	applog "cambista/internal/log"
	"cambista/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := cli.SetupLogger(cfg.LogLevel)
	logger.Info("Starting cambista-worker", applog.FieldOperation, applog.OpStartup)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger.Logger, "Invalid backend configuration", err)
	}
	if bcfg.Export == backend.NoExport {
		cli.Fatal(logger.Logger, "Worker has nothing to do", errors.New("EXPORT_BACKEND is none"))
	}

	res, err := backend.NewFactory(logger).Create(context.Background(), bcfg)
	if err != nil {
		cli.Fatal(logger.Logger, "Failed to initialize backend", err)
	}

	// Sweep expired memory tier entries (only when a TTL is configured)
	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache))
	for _, c := range res.Repository.Cleaners() {
		caches.Register(c)
	}
	caches.StartCleanup(cfg.MemoryCacheTTL)

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func() {
		logger.Info("Shutting down worker...", applog.FieldOperation, applog.OpShutdown)
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Warn("Cleanup failed", applog.FieldError, err)
		}
	})

	reports := worker.NewReportWorker(res.Repository, res.Exporter, bcfg.Report,
		logger.WithComponent(applog.ComponentWorker))

	// On startup, bring the running month up to date
	if _, err := reports.ExportCurrentMonth(ctx); err != nil {
		logger.Error("Startup export failed", applog.FieldError, err)
		// Don't exit - continue with normal operation
	}

	if res.Publisher != nil {
		go func() {
			if err := res.Publisher.Consume(ctx, reports.HandleMutation); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
			}
		}()
	} else {
		logger.Info("Skipping AMQP message consumption - no broker available")
	}

	// Periodic catch-up for events that never arrived
	go func() {
		ticker := time.NewTicker(cfg.ExportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := reports.ExportCurrentMonth(ctx); err != nil {
					logger.Error("Periodic export failed", applog.FieldError, err)
				}
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
