package main

import (
	"context"
	"errors"
	"os"
	"time"

	"smartbudget/internal/cli"
	"smartbudget/internal/ports"
	gsheet "smartbudget/internal/sheets/google"
	"smartbudget/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig("worker")
	logger.Info("Starting alert-worker")

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()
	store := cli.OpenBackend(bootCtx, logger, cfg)

	var exporter ports.AlertExporter
	if cfg.AlertLogEnabled() {
		alertLog, err := gsheet.New(bootCtx, gsheet.Options{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			Sheet:              cfg.GoogleAlertSheet,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			OAuthClientFile:    cfg.GoogleOAuthClientFile,
			OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets alert log", "error", err)
			os.Exit(1)
		}
		exporter = alertLog
		logger.Info("Google Sheets alert log enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleAlertSheet)
	} else {
		logger.Info("Google Sheets alert log disabled - no spreadsheet ID provided")
	}

	amqpClient := cli.ConnectAMQP(logger, cfg)
	alerts := cli.NewAlertService(cfg, store.Store, cli.Publisher(amqpClient))

	evaluationWorker := worker.NewEvaluationWorker(alerts, store.Store, exporter, worker.Config{
		SweepInterval: cfg.SweepInterval,
		Concurrency:   cfg.SweepConcurrency,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		if err := evaluationWorker.Stop(ctx); err != nil {
			logger.Warn("Evaluation sweep did not stop cleanly", "error", err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
		if store.Cleanup != nil {
			if err := store.Cleanup(); err != nil {
				logger.Warn("Store close error", "error", err)
			}
		}
	})

	if err := evaluationWorker.Start(ctx); err != nil {
		logger.Error("Failed to start evaluation sweep", "error", err)
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeEvaluationRequests(ctx, evaluationWorker.HandleEvaluationRequest)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
		}()
	} else {
		logger.Info("Skipping AMQP consumption - relying on the periodic sweep")
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
