package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/armscan/internal/corpus"
	"github.com/timmy/armscan/internal/domain"
	"github.com/timmy/armscan/internal/encoder"
	"github.com/timmy/armscan/internal/logger"
	"golang.org/x/sync/singleflight"
)

// LabelLogitScale is the factor joint encoders apply to label-set cosine scores.
const LabelLogitScale = 100

// IndexConfig holds configuration for the index service
type IndexConfig struct {
	CorpusPath   string
	Shape        domain.IndexShape
	VerifyCorpus bool // rebuild when the corpus listing no longer matches the cache
	Workers      int
}

// IndexService owns the process-wide reference index.
// The image-corpus index is built at most once per process and cached in an IndexStore;
// the label-set index is re-encoded from the catalog on every call.
type IndexService struct {
	encoder    encoder.ImageEncoder
	store      IndexStore
	catalogs   *CatalogProvider
	corpusPath string
	shape      domain.IndexShape
	verify     bool
	workers    int

	group   singleflight.Group
	mu      sync.RWMutex
	current *domain.ReferenceIndex

	// generation advances on Invalidate; builds from an older generation are discarded
	generation uint64
}

// NewIndexService creates a new index service.
// Parameters:
//   - enc: shared encoder; must implement encoder.TextEncoder for the label-set shape.
//   - store: cache for built indexes; nil keeps builds in memory only.
//   - catalogs: catalog source for the label-set shape.
//   - cfg: corpus location, shape and build parallelism.
// Returns:
//   - *IndexService: service with nothing loaded yet.
//   - error: non-nil if the label-set shape is requested with a vision-only encoder.
func NewIndexService(enc encoder.ImageEncoder, store IndexStore, catalogs *CatalogProvider, cfg *IndexConfig) (*IndexService, error) {
	shape := cfg.Shape
	if shape == "" {
		shape = domain.IndexShapeCorpus
	}
	if shape == domain.IndexShapeLabels {
		if _, ok := enc.(encoder.TextEncoder); !ok {
			return nil, fmt.Errorf("label-set index requires a text-capable encoder, got %s", enc.Fingerprint())
		}
	}
	if store == nil {
		store = NewMemoryIndexStore()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	corpusPath := filepath.Clean(cfg.CorpusPath)
	if abs, err := filepath.Abs(corpusPath); err == nil {
		corpusPath = abs
	}

	return &IndexService{
		encoder:    enc,
		store:      store,
		catalogs:   catalogs,
		corpusPath: corpusPath,
		shape:      shape,
		verify:     cfg.VerifyCorpus,
		workers:    workers,
	}, nil
}

// CorpusPath returns the absolute corpus root the index is keyed by.
func (s *IndexService) CorpusPath() string {
	return s.corpusPath
}

// Get returns the reference index, building it on first use.
// Concurrent callers during a cold start share a single build.
func (s *IndexService) Get(ctx context.Context) (*domain.ReferenceIndex, error) {
	if s.shape == domain.IndexShapeLabels {
		return s.labelIndex(ctx)
	}

	s.mu.RLock()
	idx, gen := s.current, s.generation
	s.mu.RUnlock()
	if idx != nil {
		return idx, nil
	}

	// the build outlives any single caller
	buildCtx := context.WithoutCancel(ctx)
	key := s.corpusPath + "#" + strconv.FormatUint(gen, 10)
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		s.mu.RLock()
		idx := s.current
		s.mu.RUnlock()
		if idx != nil {
			return idx, nil
		}

		idx, err := s.loadOrBuild(buildCtx)
		if err != nil {
			return nil, err
		}
		// an empty corpus is rescanned on the next call
		if len(idx.Entries) > 0 {
			s.mu.Lock()
			if s.generation == gen {
				s.current = idx
			}
			s.mu.Unlock()
		}
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.CtxDebug(ctx, "Joined in-flight index build")
	}
	return v.(*domain.ReferenceIndex), nil
}

// Invalidate drops the in-memory index and clears the persisted cache.
func (s *IndexService) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	s.current = nil
	s.generation++
	s.mu.Unlock()

	if err := s.store.Clear(ctx, s.corpusPath); err != nil {
		return fmt.Errorf("failed to clear index cache: %w", err)
	}
	return nil
}

// Rebuild discards any cached index and builds a fresh one.
// Builds already in flight belong to the previous generation and are not joined.
func (s *IndexService) Rebuild(ctx context.Context) (*domain.ReferenceIndex, error) {
	if err := s.Invalidate(ctx); err != nil {
		return nil, err
	}
	return s.Get(ctx)
}

// Stats describes the index currently held in memory.
func (s *IndexService) Stats() domain.IndexStats {
	stats := domain.IndexStats{
		Shape:     s.shape,
		EncoderID: s.encoder.Fingerprint(),
	}

	if s.shape == domain.IndexShapeLabels {
		if cat, err := s.catalogs.Get(); err == nil {
			stats.Entries = cat.Len()
			stats.Labels = cat.Len()
			stats.Loaded = true
		}
		return stats
	}

	s.mu.RLock()
	idx := s.current
	s.mu.RUnlock()
	if idx == nil {
		return stats
	}

	built := idx.Build.CreatedAt
	stats.Entries = len(idx.Entries)
	stats.Labels = len(idx.Labels())
	stats.Skipped = idx.Build.Skipped
	stats.Fingerprint = idx.Build.Fingerprint
	stats.BuiltAt = &built
	stats.Source = idx.Source
	stats.Loaded = true
	return stats
}

func (s *IndexService) loadOrBuild(ctx context.Context) (*domain.ReferenceIndex, error) {
	ctx = logger.WithField(ctx, logger.FieldCorpus, s.corpusPath)

	cached, err := s.store.Load(ctx, s.corpusPath)
	switch {
	case errors.Is(err, domain.ErrCacheMiss):
		logger.CtxInfo(ctx, "No cached reference index, building")
	case err != nil:
		logger.FromContext(ctx).WithError(err).Warn("Failed to load cached reference index, building")
	case cached.Build.EncoderID != s.encoder.Fingerprint():
		logger.FromContext(ctx).WithFields(logger.Fields{
			"cached_encoder":  cached.Build.EncoderID,
			"current_encoder": s.encoder.Fingerprint(),
		}).Warn("Cached reference index was built by another encoder, rebuilding")
	default:
		if !s.verify {
			logger.With(logger.Fields{logger.FieldCount: len(cached.Entries)}).Info(ctx, "Loaded cached reference index")
			return cached, nil
		}
		listing, err := corpus.Scan(s.corpusPath)
		if err != nil {
			return nil, fmt.Errorf("failed to scan corpus: %w", err)
		}
		if listing.Fingerprint() == cached.Build.Fingerprint {
			logger.With(logger.Fields{logger.FieldCount: len(cached.Entries)}).Info(ctx, "Loaded verified reference index")
			return cached, nil
		}
		logger.CtxWarn(ctx, "Reference corpus changed since the cached build, rebuilding")
		return s.build(ctx, listing)
	}

	listing, err := corpus.Scan(s.corpusPath)
	if err != nil {
		return nil, fmt.Errorf("failed to scan corpus: %w", err)
	}
	return s.build(ctx, listing)
}

type encodeResult struct {
	position int
	vector   domain.Embedding
	err      error
}

// build encodes every reference image and persists the result.
// Unreadable images are skipped; entries keep the listing's walk order.
func (s *IndexService) build(ctx context.Context, listing *corpus.Listing) (*domain.ReferenceIndex, error) {
	start := time.Now()
	images := listing.Images

	jobs := make(chan int, s.workers*2)
	results := make(chan encodeResult, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range jobs {
				vec, err := s.encoder.EncodeImage(ctx, images[pos].Path)
				results <- encodeResult{position: pos, vector: vec, err: err}
			}
		}()
	}

	vectors := make([]domain.Embedding, len(images))
	skipped := 0
	done := make(chan struct{})
	go func() {
		for r := range results {
			if r.err != nil {
				skipped++
				logger.FromContext(ctx).WithFields(logger.Fields{
					logger.FieldPath:  images[r.position].Path,
					logger.FieldLabel: images[r.position].Label,
				}).WithError(fmt.Errorf("%w: %w", domain.ErrReferenceImageUnreadable, r.err)).Warn("Skipping reference image")
				continue
			}
			vectors[r.position] = r.vector
		}
		close(done)
	}()

	for pos := range images {
		jobs <- pos
	}
	close(jobs)
	wg.Wait()
	close(results)
	<-done

	idx := &domain.ReferenceIndex{
		Build: domain.IndexBuild{
			ID:          uuid.NewString(),
			CorpusPath:  s.corpusPath,
			Fingerprint: listing.Fingerprint(),
			EncoderID:   s.encoder.Fingerprint(),
			Shape:       domain.IndexShapeCorpus,
			Skipped:     skipped,
			CreatedAt:   time.Now(),
		},
		LogitScale: 1,
		Source:     domain.IndexSourceBuild,
	}
	for pos, vec := range vectors {
		if vec == nil {
			continue
		}
		idx.Entries = append(idx.Entries, domain.ReferenceEntry{
			BuildID:  idx.Build.ID,
			Position: pos,
			Label:    images[pos].Label,
			Path:     images[pos].Path,
			Vector:   domain.Vector(vec),
		})
	}
	idx.Build.EntryCount = len(idx.Entries)
	if len(idx.Entries) > 0 {
		idx.Build.Dim = len(idx.Entries[0].Vector)
	}

	logger.With(logger.Fields{
		"skipped": skipped,
		"labels":  len(idx.Labels()),
	}).WithCount(len(idx.Entries)).WithDuration(time.Since(start).Milliseconds()).Info(ctx, "Reference index built")

	if len(idx.Entries) == 0 {
		return idx, nil
	}
	if err := s.store.Save(ctx, idx); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to persist reference index")
	}
	return idx, nil
}

// labelIndex embeds the catalog's prompt texts, one entry per label in catalog order.
func (s *IndexService) labelIndex(ctx context.Context) (*domain.ReferenceIndex, error) {
	cat, err := s.catalogs.Get()
	if err != nil {
		return nil, err
	}

	labels := cat.Labels()
	idx := &domain.ReferenceIndex{
		Build: domain.IndexBuild{
			EncoderID:  s.encoder.Fingerprint(),
			Shape:      domain.IndexShapeLabels,
			EntryCount: len(labels),
			CreatedAt:  time.Now(),
		},
		LogitScale: LabelLogitScale,
		Source:     domain.IndexSourceBuild,
	}
	if len(labels) == 0 {
		return idx, nil
	}

	vectors, err := s.encoder.(encoder.TextEncoder).EncodeText(ctx, cat.PromptTexts())
	if err != nil {
		return nil, fmt.Errorf("failed to encode label texts: %w", err)
	}
	if len(vectors) != len(labels) {
		return nil, fmt.Errorf("failed to encode label texts: got %d embeddings for %d labels", len(vectors), len(labels))
	}

	for i, label := range labels {
		idx.Entries = append(idx.Entries, domain.ReferenceEntry{
			Position: i,
			Label:    label,
			Vector:   domain.Vector(vectors[i]),
		})
	}
	idx.Build.Dim = vectors[0].Dim()
	return idx, nil
}
