package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/thinkxlife/brain/internal/analytics"
	"github.com/thinkxlife/brain/internal/brain"
	"github.com/thinkxlife/brain/internal/config"
	"github.com/thinkxlife/brain/internal/i18n"
	"github.com/thinkxlife/brain/internal/middleware"
	"github.com/thinkxlife/brain/internal/provider"
	"github.com/thinkxlife/brain/internal/security"
	"github.com/thinkxlife/brain/internal/server"
	"github.com/thinkxlife/brain/internal/session"
	"github.com/thinkxlife/brain/internal/storage"
	"github.com/thinkxlife/brain/internal/strategy"
	"github.com/thinkxlife/brain/pkg/logger"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting ThinkxLife Brain...")

	// Initialize storage
	storageManager, err := storage.NewManager(&cfg.Storage, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	if storageManager.GetRedisClient() != nil {
		log.Info("Redis repository active")
	} else {
		log.Info("In-memory repository active")
	}

	// Initialize providers
	registry, failures := provider.NewRegistryFromConfig(&cfg.Providers, log)
	for name, ferr := range failures {
		log.WithError(ferr).WithField("provider", name).Error("Failed to initialize provider")
	}
	log.WithField("providers", registry.Names()).Info("Providers registered")

	// Initialize i18n
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Initialize metrics
	metrics := middleware.NewMetrics()

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Initialize the engine
	engine := brain.New(
		cfg,
		security.NewGate(&cfg.Security, metrics, log),
		session.NewStore(&cfg.Session, log),
		session.NewContextStore(&cfg.Context, log),
		registry,
		analytics.NewAggregator(),
		strategy.NewRegistry(),
		storageManager,
		localizer,
		metrics,
		log,
	)

	srv := server.New(&cfg.Server, engine, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start periodic cleanup
	go runCleanup(ctx, engine, cfg.Session.CleanupInterval, log)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.WithError(err).Error("HTTP server failed")
	case <-sigChan:
		log.Info("Shutdown signal received")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to shut down HTTP server cleanly")
	}

	engine.Close()
	log.Info("Brain stopped")
}

// runCleanup sweeps expired sessions, stale contexts, and idle rate-limit
// windows at a fixed interval.
func runCleanup(ctx context.Context, engine *brain.Brain, interval time.Duration, log *logrus.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.Cleanup()
		}
	}
}
