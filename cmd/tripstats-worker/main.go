package main

import (
	"context"
	"errors"
	"os"
	"time"

	"tripstats/internal/backend"
	"tripstats/internal/cli"
	applog "tripstats/internal/log"
	"tripstats/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting tripstats-worker")

	// The worker reads what the server wrote, so it needs a shared store.
	if t := backend.BackendType(cfg.DataBackend); !t.Persistent() {
		logger.Error("Worker requires a persistent backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("Worker requires AMQP_URL")
		os.Exit(1)
	}

	store := cli.OpenStore(context.Background(), logger, cfg)
	amqpClient := cli.ConnectAMQP(logger, cfg)
	reports := cli.ReportWriter(context.Background(), logger, cfg)

	reportWorker := worker.NewReportWorker(store.Store, reports)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		logger.Info("Shutting down worker...")
	})

	go func() {
		err := amqpClient.ConsumeTripEvents(ctx, reportWorker.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)

	if err := amqpClient.Close(); err != nil {
		logger.Warn("AMQP close error", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Warn("Store close error", "error", err)
	}
	logger.Info("Worker shutdown complete")
}
