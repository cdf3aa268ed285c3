// Package cli provides common CLI initialization utilities shared by
// cmd/tripstats and cmd/tripstats-worker.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tripstats/internal/amqp"
	"tripstats/internal/backend"
	"tripstats/internal/config"
	applog "tripstats/internal/log"
	"tripstats/internal/sheets"
	gsheet "tripstats/internal/sheets/google"
	sheetmem "tripstats/internal/sheets/memory"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// SetupLogger builds the process logger from LOG_LEVEL / LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	logger := applog.FromSettings(cfg.LogLevel, cfg.LogFormat, component)
	applog.SetDefault(logger)
	return logger
}

// OpenStore creates the configured trip store.
// Returns the store or exits the process on failure.
func OpenStore(ctx context.Context, logger *applog.Logger, cfg *config.Config) *backend.Result {
	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger)
	result, err := factory.CreateStore(ctx, backend.FromAppConfig(cfg))
	if err != nil {
		logger.Error("Failed to initialize trip store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return result
}

// ConnectAMQP dials the broker when AMQP_URL is set. A nil client means
// events are disabled.
func ConnectAMQP(logger *applog.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - no AMQP_URL provided")
		return nil
	}
	log := logger.WithComponent(applog.ComponentAMQP)
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		log.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	log.Info("AMQP client connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

// ReportWriter returns the Google Sheets writer when a spreadsheet is
// configured and an in-memory writer otherwise.
func ReportWriter(ctx context.Context, logger *applog.Logger, cfg *config.Config) sheets.ReportWriter {
	if !cfg.SheetsEnabled() {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, reports kept in memory")
		return sheetmem.New()
	}

	creds := gsheet.CredentialsFromEnv()
	creds.OAuthClientJSON = cfg.GoogleOAuthClientJSON
	creds.OAuthClientFile = cfg.GoogleOAuthClientFile
	creds.OAuthTokenJSON = cfg.GoogleOAuthTokenJSON
	creds.OAuthTokenFile = cfg.GoogleOAuthTokenFile

	client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, creds)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has finished.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			logger.Info("Context cancelled")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
