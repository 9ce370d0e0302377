package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/armscan/internal/api"
	"github.com/timmy/armscan/internal/app"
	"github.com/timmy/armscan/internal/config"
	"github.com/timmy/armscan/internal/logger"
)

func main() {
	appLogger := app.NewLogger("armscan-api")
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	engine, err := app.NewEngine(cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize recognition engine")
	}
	defer engine.Close()

	// Warm the index in the background so the first request does not pay for the build
	go func() {
		if _, err := engine.Index.Get(context.Background()); err != nil {
			appLogger.WithError(err).Warn("Initial index build failed")
		}
	}()

	router := api.SetupRouter(&api.Services{
		Recognizer: engine.Recognition,
		Index:      engine.Index,
		Catalogs:   engine.Catalogs,
	}, &cfg.Server, appLogger)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Recognitions may take a while; give in-flight requests time to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
