// Package app wires configuration into the recognition engine shared by every binary.
package app

import (
	"errors"
	"fmt"

	"github.com/timmy/armscan/internal/config"
	"github.com/timmy/armscan/internal/domain"
	"github.com/timmy/armscan/internal/encoder"
	"github.com/timmy/armscan/internal/logger"
	"github.com/timmy/armscan/internal/repository"
	"github.com/timmy/armscan/internal/service"
)

// Engine owns the process-wide encoder, index and recognition service.
type Engine struct {
	Encoder     encoder.ImageEncoder
	Store       service.IndexStore
	Catalogs    *service.CatalogProvider
	Index       *service.IndexService
	Recognition *service.RecognitionService

	closers []func() error
}

// NewEngine loads the encoder backbone and connects the configured index store.
// Parameters:
//   - cfg: validated application configuration.
// Returns:
//   - *Engine: ready to recognize; the caller owns Close.
//   - error: non-nil if the encoder or store cannot be initialised.
func NewEngine(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{}
	enc, err := encoder.New(&cfg.Encoder)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encoder: %w", err)
	}
	e.Encoder = enc
	e.closers = append(e.closers, enc.Close)

	store, err := e.newIndexStore(cfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Store = store

	e.Catalogs = service.NewCatalogProvider(cfg.Catalog.Path)
	e.Index, err = service.NewIndexService(enc, store, e.Catalogs, &service.IndexConfig{
		CorpusPath:   cfg.Index.CorpusPath,
		Shape:        domain.IndexShape(cfg.Index.Shape),
		VerifyCorpus: cfg.Index.VerifyCorpus,
		Workers:      cfg.Index.Workers,
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Recognition = service.NewRecognitionService(enc, e.Index, e.Catalogs)

	logger.GetDefault().WithFields(logger.Fields{
		"encoder":          enc.Fingerprint(),
		"shape":            cfg.Index.Shape,
		"store":            cfg.Index.Store,
		logger.FieldCorpus: e.Index.CorpusPath(),
	}).Info("Recognition engine ready")
	return e, nil
}

func (e *Engine) newIndexStore(cfg *config.Config) (service.IndexStore, error) {
	switch cfg.Index.Store {
	case config.IndexStoreQdrant:
		repo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Qdrant repository: %w", err)
		}
		e.closers = append(e.closers, repo.Close)
		return repo, nil
	case config.IndexStoreMemory:
		return service.NewMemoryIndexStore(), nil
	default:
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		e.closers = append(e.closers, sqlDB.Close)
		return repository.NewReferenceRepository(db), nil
	}
}

// Close releases the store connection and the encoder backbone.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// NewLogger builds the process logger from LOG_* variables and installs it as default.
func NewLogger(service string) *logger.Logger {
	envCfg := logger.LoadFromEnv()
	if envCfg.ServiceName == "armscan" {
		envCfg.ServiceName = service
	}
	l := logger.NewFromEnv(envCfg)
	logger.SetDefaultLogger(l)
	return l
}
