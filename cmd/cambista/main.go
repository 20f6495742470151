package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cambista/internal/backend"
	"cambista/internal/cli"
	applog "cambista/internal/log"
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

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger.Logger, "Invalid backend configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx = applog.WithContext(ctx, logger)

	res, err := backend.NewFactory(logger).Create(ctx, bcfg)
	if err != nil {
		stop()
		cli.Fatal(logger.Logger, "Failed to initialize backend", err)
	}

	a := &app{
		repo:       res.Repository,
		exporter:   res.Exporter,
		reportOpts: bcfg.Report,
		in:         os.Stdin,
		out:        os.Stdout,
		errOut:     os.Stderr,
		now:        time.Now,
		logger:     logger,
	}
	code := a.run(ctx, os.Args[1:])

	stop()
	if err := res.Cleanup(); err != nil {
		logger.Warn("Cleanup failed", applog.FieldError, err)
	}
	os.Exit(code)
}
