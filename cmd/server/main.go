package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/api"
	"github.com/murmurhq/murmur/internal/backend"
	"github.com/murmurhq/murmur/internal/engagement"
	"github.com/murmurhq/murmur/internal/feed"
	"github.com/murmurhq/murmur/internal/media"
	"github.com/murmurhq/murmur/internal/profile"
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
	logger.Info("Starting Murmur API Server")

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("MURMUR_JWT_SECRET is required")
	}

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	ctx := context.Background()
	be, err := backend.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open backend", zap.Error(err))
	}
	defer be.Close(ctx)

	mediaStore, err := openMedia(&cfg.Media)
	if err != nil {
		logger.Fatal("Failed to initialize media store", zap.Error(err))
	}

	profiles := profile.NewService(be.Store, profile.NewFanout(be.Store, be.Cache, &cfg.Fanout), be.Cache)
	checks := make(map[string]api.HealthCheck, len(be.Checks))
	for name, fn := range be.Checks {
		checks[name] = fn
	}
	router := api.NewRouter(api.Deps{
		Config:     cfg,
		Engagement: engagement.NewService(be.Store, be.Store, mediaStore),
		Feed:       feed.NewService(be.Store, profiles, be.Bus, cfg.Feed.PageSize),
		Profiles:   profiles,
		Media:      mediaStore,
		Checks:     checks,
	})

	// the memory store is private to this process, so nothing else can promote its posts
	if cfg.Store.Driver == "memory" {
		promoterCtx, stopPromoter := context.WithCancel(ctx)
		defer stopPromoter()
		go publication.NewPromoter(be.Store, &cfg.Scheduler).Run(promoterCtx)
	}

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	router.SetupRoutes(engine)

	// Create HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func openMedia(cfg *config.MediaConfig) (media.Store, error) {
	if cfg.CloudinaryURL == "" {
		logging.GetLogger().Warn("No Cloudinary URL configured; media is kept in memory")
		return media.NewMemory(), nil
	}
	return media.NewCloudinary(cfg)
}
