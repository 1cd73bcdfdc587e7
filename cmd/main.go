/**
 * @description
 * This is the main entry point for the subscription-service.
 * It initializes and wires together all the components of the application:
 * configuration, database connection, the RevenueCat client, the subscription
 * facade, the entitlement push consumer, the cron scheduler, and the HTTP
 * router. Finally, it starts the HTTP server to listen for incoming requests.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calorietracker/subscription-service/internal/api"
	"github.com/calorietracker/subscription-service/internal/app"
	"github.com/calorietracker/subscription-service/internal/config"
	"github.com/calorietracker/subscription-service/internal/store"
	"github.com/calorietracker/subscription-service/pkg/rabbitmq"
	"github.com/calorietracker/subscription-service/pkg/revenuecat"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load application configuration from environment variables
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Fail fast on a bad vendor key. In non-production profiles this is a
	// warning only, so sandbox builds keep working.
	if err := cfg.ValidateAPIKey(); err != nil {
		logger.Error("vendor api key validation failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Establish connection to the PostgreSQL database with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to work with PgBouncer transaction pooling
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Initialize application layers
	repository := store.NewRepository(dbpool)
	vendorClient := revenuecat.NewClient(cfg.RevenueCatAPIBaseURL, cfg.APIKeyForPlatform(), cfg.VendorLogVerbose())
	facade := app.NewFacade(vendorClient, repository, cfg, logger)

	paywall := revenuecat.NewPaywall(vendorClient)
	presenter := app.NewVendorPresenter(paywall, facade)
	paywallController := app.NewPaywallController(presenter, facade, logger)

	// Attach the entitlement push listener when RabbitMQ is configured. The
	// service still works without it; the cron refresh covers missed pushes.
	var eventConsumer *rabbitmq.Consumer
	if cfg.RabbitMQURL != "" {
		eventConsumer, err = rabbitmq.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("rabbitmq unavailable; continuing without push updates", "error", err)
		} else {
			handler := app.NewEntitlementEventConsumer(facade)
			if handler != nil {
				err = eventConsumer.Consume("revenuecat.events", cfg.EntitlementEventQueue, []string{"entitlement.#"}, handler.HandleMessage)
				if err != nil {
					logger.Warn("failed to start entitlement consumer", "error", err)
				} else {
					logger.Info("entitlement push consumer started", "queue", cfg.EntitlementEventQueue)
				}
			}
			defer eventConsumer.Close()
		}
	}

	// Start the cron scheduler for periodic refresh and the monthly usage sweep
	scheduler := app.NewScheduler(facade, repository, logger, cfg)
	scheduler.Start()
	logger.Info("scheduler started")

	handler := api.NewHandler(facade, paywallController)
	router := api.NewRouter(handler, cfg.ClerkJWKSURL)

	// Configure and start the HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort, "profile", cfg.BuildProfile, "platform", cfg.Platform)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an OS signal
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	// Stop background work first so no vendor call lands on a closing facade.
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	facade.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
