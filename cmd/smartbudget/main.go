package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"smartbudget/internal/cache"
	"smartbudget/internal/cli"
	"smartbudget/internal/core"
	apphttp "smartbudget/internal/http"
	"smartbudget/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig("server")

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	store := cli.OpenBackend(bootCtx, logger, cfg)
	bootCancel()

	amqpClient := cli.ConnectAMQP(logger, cfg)
	publisher := cli.Publisher(amqpClient)

	statsCache := cache.NewLRUCache[core.Statistics](cfg.StatisticsCacheSize, cfg.StatisticsCacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(statsCache)
	cacheManager.StartCleanup(time.Minute)

	expenses := services.NewExpenseService(store.Store, publisher, statsCache, cfg.StoreTimeout)
	alerts := cli.NewAlertService(cfg, store.Store, publisher)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Expenses:       expenses,
		Alerts:         alerts,
		Ready:          store.Ready,
		StatsCacheSize: statsCache.Size,
		TrustedProxies: cfg.TrustedProxyCIDRs(),
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Stop()
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

	logger.Info("Starting smartbudget server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
