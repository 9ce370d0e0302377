package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/armscan/internal/domain"
	"gorm.io/gorm"
)

// entryBatchSize bounds the rows per INSERT when saving a build.
const entryBatchSize = 200

// ReferenceRepository persists built reference indexes in the relational store.
// Only the latest build per corpus is kept.
type ReferenceRepository struct {
	db *gorm.DB
}

// NewReferenceRepository creates a new ReferenceRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ReferenceRepository: repository instance bound to db.
func NewReferenceRepository(db *gorm.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// Save replaces any previous build for the same corpus with idx.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - idx: built index; Build.ID must be set.
// Returns:
//   - error: non-nil if the transaction fails.
func (r *ReferenceRepository) Save(ctx context.Context, idx *domain.ReferenceIndex) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteBuilds(tx, idx.Build.CorpusPath); err != nil {
			return err
		}

		build := idx.Build
		if err := tx.Create(&build).Error; err != nil {
			return fmt.Errorf("failed to save index build: %w", err)
		}
		if len(idx.Entries) == 0 {
			return nil
		}

		entries := make([]domain.ReferenceEntry, len(idx.Entries))
		for i, e := range idx.Entries {
			e.ID = 0
			e.BuildID = build.ID
			entries[i] = e
		}
		if err := tx.CreateInBatches(entries, entryBatchSize).Error; err != nil {
			return fmt.Errorf("failed to save reference entries: %w", err)
		}
		return nil
	})
}

// Load returns the latest build for corpusPath with its entries in walk order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - corpusPath: corpus the build was made from.
// Returns:
//   - *domain.ReferenceIndex: persisted index.
//   - error: domain.ErrCacheMiss if nothing is stored.
func (r *ReferenceRepository) Load(ctx context.Context, corpusPath string) (*domain.ReferenceIndex, error) {
	var build domain.IndexBuild
	err := r.db.WithContext(ctx).
		Where("corpus_path = ?", corpusPath).
		Order("created_at DESC").
		First(&build).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load index build: %w", err)
	}

	var entries []domain.ReferenceEntry
	if err := r.db.WithContext(ctx).
		Where("build_id = ?", build.ID).
		Order("position ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load reference entries: %w", err)
	}

	return &domain.ReferenceIndex{
		Build:      build,
		Entries:    entries,
		LogitScale: 1,
		Source:     domain.IndexSourceStore,
	}, nil
}

// Clear removes every stored build for corpusPath.
func (r *ReferenceRepository) Clear(ctx context.Context, corpusPath string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteBuilds(tx, corpusPath)
	})
}

func deleteBuilds(tx *gorm.DB, corpusPath string) error {
	var ids []string
	if err := tx.Model(&domain.IndexBuild{}).
		Where("corpus_path = ?", corpusPath).
		Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("failed to list index builds: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("build_id IN ?", ids).Delete(&domain.ReferenceEntry{}).Error; err != nil {
		return fmt.Errorf("failed to delete reference entries: %w", err)
	}
	if err := tx.Where("id IN ?", ids).Delete(&domain.IndexBuild{}).Error; err != nil {
		return fmt.Errorf("failed to delete index builds: %w", err)
	}
	return nil
}
