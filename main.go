package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-journal/config"
	"trading-journal/internal/api"
	"trading-journal/internal/auth"
	"trading-journal/internal/cache"
	"trading-journal/internal/dashboard"
	"trading-journal/internal/events"
	"trading-journal/internal/logging"
	"trading-journal/internal/messaging"
	"trading-journal/internal/storage"
	"trading-journal/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	ctx := context.Background()

	// Overlay secrets from Vault before anything connects
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal("Failed to create Vault client", "error", err)
	}
	if vaultClient.IsEnabled() {
		secrets, err := vaultClient.LoadSecrets(ctx)
		if err != nil {
			logger.Fatal("Failed to load secrets from Vault", "error", err)
		}
		cfg.ApplySecrets(secrets)
		logger.Info("Secrets loaded from Vault", "count", len(secrets))
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open record store", "backend", cfg.StorageConfig.Backend, "error", err)
	}
	defer store.Close()
	logger.Info("Record store ready", "backend", cfg.StorageConfig.Backend)

	// Dashboard cache: ristretto in process, Redis behind it when enabled
	var (
		dashCache   *cache.DashboardCache
		cacheHealth api.HealthReporter
		respCache   dashboard.ResponseCache
	)
	if cfg.CacheConfig.Enabled {
		var remote *cache.CacheService
		if cfg.RedisConfig.Enabled {
			remote, err = cache.NewCacheService(cfg.RedisConfig)
			if err != nil {
				logger.WithError(err).Warn("Redis unavailable, continuing with the local cache only")
				remote = nil
			}
		}
		dashCache, err = cache.NewDashboardCache(cfg.CacheConfig, remote)
		if err != nil {
			logger.Fatal("Failed to create dashboard cache", "error", err)
		}
		defer dashCache.Close()
		cacheHealth = dashCache
		respCache = dashCache
		logger.Info("Dashboard cache enabled", "redis", remote != nil, "ttl", cfg.CacheConfig.TTL.String())
	}

	// Initialize event bus
	eventBus := events.NewEventBus()
	eventBus.Subscribe(func(ev events.Event) {
		logging.WithComponent("events").Warn("component error",
			"source", ev.Data["source"], "message", ev.Data["message"], "error", ev.Data["error"])
	}, events.EventError)

	if cfg.KafkaConfig.Enabled {
		feed, err := messaging.NewChangeFeed(cfg.KafkaConfig)
		if err != nil {
			logger.Fatal("Failed to create Kafka change feed", "error", err)
		}
		feed.Attach(eventBus)
		defer feed.Close()
		logger.Info("Kafka change feed attached", "topic", cfg.KafkaConfig.Topic)
	}

	authService, err := auth.NewService(store.Users(), auth.ConfigFrom(cfg.AuthConfig))
	if err != nil {
		logger.Fatal("Failed to create auth service", "error", err)
	}

	loc, _ := cfg.DashboardConfig.Location()
	platformStart, _ := cfg.DashboardConfig.PlatformStart()
	defaultTimeframe, err := dashboard.ParseTimeframe(cfg.DashboardConfig.DefaultTimeframe)
	if err != nil {
		logger.Fatal("Invalid default dashboard timeframe", "error", err)
	}
	aggregator := dashboard.NewAggregator(dashboard.Options{
		Location:         loc,
		PlatformStart:    platformStart,
		Thresholds:       cfg.DashboardConfig.IntensityThresholds,
		DefaultTimeframe: defaultTimeframe,
	})
	dashboardService := dashboard.NewService(store, aggregator, respCache)

	server := api.NewServer(cfg.ServerConfig, store, dashboardService, authService, eventBus, cacheHealth)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	// Graceful shutdown
	timeout := time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error shutting down web server")
	}

	logger.Info("Shutdown complete")
}
