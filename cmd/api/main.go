package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/portfolio-bff/internal/api/router"
	"github.com/wolfman30/portfolio-bff/internal/app/bootstrap"
	"github.com/wolfman30/portfolio-bff/internal/appointments"
	appconfig "github.com/wolfman30/portfolio-bff/internal/config"
	"github.com/wolfman30/portfolio-bff/internal/http/handlers"
	"github.com/wolfman30/portfolio-bff/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting portfolio-bff admin API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	store, closeStore := buildStore(ctx, cfg, logger)
	defer closeStore()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}
	tracker := bootstrap.BuildProgressTracker(redisClient, cfg)

	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin endpoints will reject every request")
	}

	r := router.New(&router.Config{
		Logger:             logger,
		AdminAppointments:  handlers.NewAdminAppointmentsHandler(store, tracker, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildStore uses Postgres when DATABASE_URL is set and an empty in-memory store otherwise.
func buildStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (appointments.Store, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; serving an empty in-memory appointment store")
		return appointments.NewMemoryStore(), func() {}
	}
	store, pool, err := bootstrap.BuildPostgresStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	return store, pool.Close
}
