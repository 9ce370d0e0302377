package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/armscan/internal/app"
	"github.com/timmy/armscan/internal/bot"
	"github.com/timmy/armscan/internal/config"
	"github.com/timmy/armscan/internal/logger"
	"github.com/timmy/armscan/internal/service"
)

func main() {
	appLogger := app.NewLogger("armscan-bot")
	defer logger.Sync()

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

	dispatcher := service.NewDispatcher(engine.Recognition, &service.DispatcherConfig{
		Workers:   cfg.Recognition.Workers,
		QueueSize: cfg.Recognition.QueueSize,
	})
	// queued recognitions finish and reply before the engine closes
	defer dispatcher.Close()

	telegram, err := bot.NewTelegram(&bot.Config{
		Token:             cfg.Bot.Token,
		EmergencyContacts: cfg.Bot.EmergencyContacts,
	}, dispatcher)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to start telegram bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if _, err := engine.Index.Get(ctx); err != nil {
			appLogger.WithError(err).Warn("Initial index build failed")
		}
	}()

	if err := telegram.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.WithError(err).Error("Telegram bot stopped")
	}
	appLogger.Info("Bot exited")
}
