package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"tripstats/internal/cache"
	"tripstats/internal/cli"
	apphttp "tripstats/internal/http"
	applog "tripstats/internal/log"
	"tripstats/internal/services"
	"tripstats/internal/trips"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	store := cli.OpenStore(context.Background(), logger, cfg)

	var publisher services.Publisher
	amqpClient := cli.ConnectAMQP(logger, cfg)
	if amqpClient != nil {
		publisher = amqpClient
	}

	svcCfg := services.DefaultTripServiceConfig()
	svcCfg.Concurrency = cfg.IngestConcurrency
	svcCfg.TopN = cfg.TopN
	svcCfg.CacheSize = cfg.SummaryCacheSize
	svcCfg.CacheTTL = cfg.SummaryCacheTTL
	svc := services.NewTripService(store.Store, publisher, svcCfg, logger)

	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	caches.Register(svc.SummaryCache())
	caches.StartCleanup(cfg.SummaryCacheTTL)

	ready, _ := store.Store.(trips.Pinger)
	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		Ready:          ready,
		Logger:         logger,
	})

	// Multi-file uploads take longer than typical requests.
	srv.ReadTimeout = 60 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 120 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
		if err := store.Close(); err != nil {
			logger.Warn("Store close error", "error", err)
		}
	})

	logger.Info("Starting tripstats server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
