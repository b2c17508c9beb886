package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rsclabs/valve-backend/internal/api"
	"github.com/rsclabs/valve-backend/internal/api/middleware"
	"github.com/rsclabs/valve-backend/internal/config"
	"github.com/rsclabs/valve-backend/internal/database"
	"github.com/rsclabs/valve-backend/internal/events"
	"github.com/rsclabs/valve-backend/internal/logger"
	"github.com/rsclabs/valve-backend/internal/relay"
	"github.com/rsclabs/valve-backend/internal/services"
)

// Build information (set via ldflags)
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)

func main() {
	var showVersion = flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		log.Printf("RSC Valve Backend\n")
		log.Printf("Version: %s\n", Version)
		log.Printf("Commit: %s\n", CommitHash)
		log.Printf("Built: %s\n", BuildTime)
		return
	}

	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	appLogger, err := logger.New(cfg.Mode)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer appLogger.Sync()

	db, err := database.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		appLogger.Fatal("failed to initialize database", "error", err)
	}
	defer db.Close()

	resolver, err := relay.NewResolver(cfg.Relays)
	if err != nil {
		appLogger.Fatal("failed to initialize relay clients", "error", err)
	}

	contractService := services.NewContractService(db.DB, appLogger)
	deploymentService := services.NewDeploymentService(db.DB, resolver, appLogger)
	reconciler := services.NewReconcilerService(db.DB, services.ReconcilerTopics{
		Deployed:     cfg.DeployedTopic,
		DeployFailed: cfg.DeployFailedTopic,
	}, appLogger)

	consumer, err := events.NewConsumer(events.ConsumerConfig{
		Brokers:      cfg.KafkaBrokers,
		GroupID:      cfg.ConsumerGroup,
		OnchainTopic: cfg.OnchainTopic,
		RelayerTopic: cfg.RelayerTopic,
	}, reconciler, appLogger)
	if err != nil {
		appLogger.Fatal("failed to initialize consumer", "error", err)
	}
	defer consumer.Close()

	producer, err := events.NewProducer(db.DB, cfg.KafkaBrokers, cfg.OutboxInterval, appLogger)
	if err != nil {
		appLogger.Fatal("failed to initialize producer", "error", err)
	}
	defer producer.Close()

	auth, err := middleware.NewJWTAuth(cfg.JWTPublicKey)
	if err != nil {
		appLogger.Fatal("failed to initialize auth middleware", "error", err)
	}
	server := api.NewServer(contractService, deploymentService, auth)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Run(ctx); err != nil {
			appLogger.Error("consumer stopped", "error", err)
		}
	}()
	go producer.Run(ctx)
	go func() {
		appLogger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.Listen(cfg.HTTPAddr); err != nil {
			appLogger.Error("http server stopped", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.Info("shutting down")
	cancel()
	if err := server.Shutdown(); err != nil {
		appLogger.Error("http shutdown failed", "error", err)
	}
}
