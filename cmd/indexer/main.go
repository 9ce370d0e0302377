package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/armscan/internal/app"
	"github.com/timmy/armscan/internal/config"
	"github.com/timmy/armscan/internal/corpus"
	"github.com/timmy/armscan/internal/logger"
	"github.com/timmy/armscan/internal/storage"
)

func main() {
	appLogger := app.NewLogger("armscan-indexer")
	defer logger.Sync()

	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	syncCorpus := flag.Bool("sync", false, "Mirror the reference corpus from object storage before building")
	publish := flag.Bool("publish", false, "Upload local reference images missing from object storage")
	rebuild := flag.Bool("rebuild", false, "Discard the cached index and build from scratch")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldCorpus: cfg.Index.CorpusPath,
		"sync":             *syncCorpus,
		"publish":          *publish,
		"rebuild":          *rebuild,
	}).Info("Starting indexer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	if *syncCorpus || *publish {
		if !cfg.Storage.Enabled {
			appLogger.Fatal("Object storage is disabled; set storage.enabled to use -sync or -publish")
		}
		objectStorage, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}

		if *syncCorpus {
			stats, err := corpus.Sync(ctx, objectStorage, cfg.Storage.Prefix, cfg.Index.CorpusPath)
			if err != nil {
				appLogger.WithError(err).Fatal("Failed to sync corpus")
			}
			appLogger.WithFields(logger.Fields{
				"transferred": stats.Transferred,
				"skipped":     stats.Skipped,
				"failed":      stats.Failed,
			}).Info("Corpus sync completed")
		}

		if *publish {
			listing, err := corpus.Scan(cfg.Index.CorpusPath)
			if err != nil {
				appLogger.WithError(err).Fatal("Failed to scan corpus")
			}
			stats, err := corpus.Publish(ctx, objectStorage, cfg.Storage.Prefix, listing)
			if err != nil {
				appLogger.WithError(err).Fatal("Failed to publish corpus")
			}
			appLogger.WithFields(logger.Fields{
				"local":       listing.Len(),
				"transferred": stats.Transferred,
				"skipped":     stats.Skipped,
				"failed":      stats.Failed,
			}).Info("Corpus publish completed")
		}
	}

	engine, err := app.NewEngine(cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize recognition engine")
	}
	defer engine.Close()

	if *rebuild {
		if err := engine.Index.Invalidate(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to clear cached index")
		}
	}

	if _, err := engine.Index.Get(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to build reference index")
	}

	stats := engine.Index.Stats()
	appLogger.WithFields(logger.Fields{
		"entries":     stats.Entries,
		"labels":      stats.Labels,
		"skipped":     stats.Skipped,
		"source":      stats.Source,
		"encoder":     stats.EncoderID,
		"fingerprint": stats.Fingerprint,
	}).Info("Reference index ready")
}
