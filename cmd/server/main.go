// cmd/server/main.go
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

	"github.com/joho/godotenv"

	"segment-cache/internal/cache"
	"segment-cache/internal/config"
	"segment-cache/internal/handler"
	"segment-cache/internal/store"
	"segment-cache/internal/store/postgres"
	customLogger "segment-cache/pkg/logger"
)

const version = "1.0.0"

func main() {
	// Simple health check for Docker - just make HTTP request to existing server
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8081"
		}
		if err := healthcheck(fmt.Sprintf("http://localhost:%s/health", port)); err != nil {
			os.Exit(1)
		}
		return
	}

	// Load environment variables from .env file (development only)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	appLogger := customLogger.NewLogger()
	defer appLogger.Sync()
	appLogger.Infow("Starting segment cache")

	cfg, err := config.LoadConfig()
	if err != nil {
		appLogger.Fatalw("Failed to load configuration", "error", err)
	}

	backend := newStore(cfg, appLogger)

	segmentCache := cache.New(backend, appLogger,
		cache.WithDefaultTTL(cfg.DefaultTTL),
		cache.WithSweepSchedule(cfg.SweepSchedule),
	)

	if err := initializeWithRetry(segmentCache, appLogger); err != nil {
		appLogger.Fatalw("Failed to initialize cache", "backend", cfg.Backend, "error", err)
	}

	adminHandler := handler.NewAdminHandler(segmentCache, appLogger, version)
	router := handler.NewRouter(adminHandler, cfg, appLogger)

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	// Start server in a goroutine for graceful shutdown
	go func() {
		appLogger.Infow("Admin server starting", "port", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalw("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Infow("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Errorw("Server forced to shutdown", "error", err)
	}

	if err := segmentCache.Shutdown(ctx); err != nil {
		appLogger.Errorw("Error stopping cache backend", "error", err)
	}

	appLogger.Infow("Server exited successfully")
}

// healthcheck reports whether the admin server at url answers 200
func healthcheck(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

// newStore builds the backend selected by CACHE_BACKEND
func newStore(cfg *config.Config, log *customLogger.Logger) store.Store {
	switch cfg.Backend {
	case config.BackendRedis:
		return store.NewRedisStore(store.RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, log)
	case config.BackendBolt:
		return store.NewBoltStore(cfg.BoltPath, log)
	case config.BackendPostgres:
		return postgres.NewEntryStore(cfg.PostgresDSN(), log)
	default:
		return store.NewMemoryStore()
	}
}

// initializeWithRetry starts the cache, retrying while the backend is unavailable.
// A failed Initialize leaves the cache Unstarted, so calling it again is safe.
func initializeWithRetry(c *cache.Cache, log *customLogger.Logger) error {
	const maxRetries = 5

	var err error
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = c.Initialize(ctx)
		cancel()

		if err == nil {
			return nil
		}

		log.Warnw("Failed to start cache backend, retrying...", "attempt", i+1, "error", err)
		time.Sleep(5 * time.Second)
	}

	return fmt.Errorf("cache backend unavailable after %d attempts: %w", maxRetries, err)
}
