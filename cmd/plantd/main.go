package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plant-monitor-backend/config"
	"plant-monitor-backend/internal/api"
	"plant-monitor-backend/internal/credential"
	"plant-monitor-backend/internal/db"
	"plant-monitor-backend/internal/device"
	"plant-monitor-backend/internal/metrics"
	"plant-monitor-backend/internal/provisioning"
	"plant-monitor-backend/internal/queue"
	"plant-monitor-backend/internal/store"
	"plant-monitor-backend/internal/sweeper"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "plantd ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	metrics.Init()

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	creds, err := credential.NewService(appStore, credential.WithHasher(credential.NewBcryptHasher(cfg.Auth.BcryptCost)))
	if err != nil {
		logger.Fatalf("failed to initialize credential service: %v", err)
	}
	provisioner := provisioning.NewService(appStore, creds)
	commands := queue.NewService(appStore,
		queue.WithExpiryPolicy(expiryPolicy(cfg.Queue.Expiry)),
		queue.WithLimits(cfg.Queue.PollLimit, cfg.Queue.HistoryLimit),
		queue.WithWateringDuration(cfg.Queue.WateringDurationSeconds),
	)
	devices := device.NewService(appStore, cfg.Sweeper.OfflineAfter)

	// Expire overdue commands and reap silent devices in the background
	sweep := sweeper.New(cfg.Sweeper, commands, devices)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweep.Run(ctx)
	}()

	// Initialize router
	handler := api.NewHandler(appStore, creds, provisioner, commands, devices)
	router := api.NewRouter(cfg, handler)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server Shutdown: %v", err)
	}

	cancel()
	select {
	case <-sweepDone:
	case <-shutdownCtx.Done():
		logger.Println("sweeper did not stop before the shutdown deadline")
	}

	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Println("Server gracefully stopped")
}

func expiryPolicy(cfg config.ExpiryConfig) queue.ExpiryPolicy {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return queue.ExpiryPolicy{
		EmergencyStop:       seconds(cfg.EmergencyStopSeconds),
		ManualWatering:      seconds(cfg.ManualWateringSeconds),
		UpdateConfiguration: seconds(cfg.ConfigurationSeconds),
		Default:             seconds(cfg.DefaultSeconds),
	}
}
