// Package cli holds the start-up steps shared by cmd/smartbudget and
// cmd/alert-worker.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartbudget/internal/amqp"
	"smartbudget/internal/analytics"
	"smartbudget/internal/backend"
	"smartbudget/internal/config"
	"smartbudget/internal/log"
	"smartbudget/internal/ports"
	"smartbudget/internal/services"
)

// SetupLogger builds the process logger at the configured level and makes it
// the slog default.
func SetupLogger(level, component string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	logger := log.New(log.Config{
		Level:     lvl,
		Component: component,
		Handler:   slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}),
	})
	if err != nil {
		logger.Warn("Unknown log level, using info", "log_level", level)
	}
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and sets up logging from it.
// It exits the process when the configuration is unusable.
func LoadAndValidateConfig(component string) (*config.Config, *log.Logger) {
	cfg, err := config.Load()
	if err != nil {
		SetupLogger("info", component).Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := SetupLogger(cfg.LogLevel, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// OpenBackend creates the configured store or exits the process.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err, "valid", backend.GetBackendTypeStrings())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", bc.Type)
		os.Exit(1)
	}
	return res
}

// ConnectAMQP dials the broker when one is configured. A nil client means
// messaging is disabled; callers must handle it.
func ConnectAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP not configured, evaluation requests stay in-process")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without messaging", "error", err)
		return nil
	}
	logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

// Publisher returns client as a services.Publisher, or nil when messaging is
// disabled.
func Publisher(client *amqp.Client) services.Publisher {
	if client == nil {
		return nil
	}
	return client
}

// NewAlertService wires the evaluator with the configured thresholds.
func NewAlertService(cfg *config.Config, store ports.Store, pub services.Publisher) *services.AlertService {
	return services.NewAlertService(store, analytics.NewEvaluator(cfg.Thresholds()), pub, services.AlertOptions{
		StoreTimeout:  cfg.StoreTimeout,
		Lookback:      cfg.AnomalyLookback,
		DefaultBudget: cfg.DefaultBudget(),
	})
}
