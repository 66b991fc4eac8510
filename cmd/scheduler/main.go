package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/backend"
	"github.com/murmurhq/murmur/internal/publication"
	"github.com/murmurhq/murmur/pkg/config"
	"github.com/murmurhq/murmur/pkg/logging"
	"github.com/murmurhq/murmur/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Murmur Scheduler")

	if cfg.Store.Driver == "memory" {
		logger.Fatal("The scheduler needs a shared store; the API server promotes posts itself when store_driver is memory")
	}

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be, err := backend.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open backend", zap.Error(err))
	}
	defer be.Close(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		publication.NewPromoter(be.Store, &cfg.Scheduler).Run(ctx)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler...")
	cancel()
	<-done
	logger.Info("Scheduler exited")
}
