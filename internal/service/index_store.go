package service

import (
	"context"
	"sync"

	"github.com/timmy/armscan/internal/domain"
)

// IndexStore persists built reference indexes between process runs.
type IndexStore interface {
	// Load returns the latest index built for corpusPath, or domain.ErrCacheMiss.
	Load(ctx context.Context, corpusPath string) (*domain.ReferenceIndex, error)
	// Save replaces whatever is stored for the index's corpus.
	Save(ctx context.Context, idx *domain.ReferenceIndex) error
	// Clear removes the stored index for corpusPath.
	Clear(ctx context.Context, corpusPath string) error
}

// MemoryIndexStore keeps indexes in process memory only.
type MemoryIndexStore struct {
	mu      sync.RWMutex
	indexes map[string]*domain.ReferenceIndex
}

// NewMemoryIndexStore creates an empty in-memory store.
func NewMemoryIndexStore() *MemoryIndexStore {
	return &MemoryIndexStore{indexes: make(map[string]*domain.ReferenceIndex)}
}

func (s *MemoryIndexStore) Load(ctx context.Context, corpusPath string) (*domain.ReferenceIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.indexes[corpusPath]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	out := *idx
	out.Entries = append([]domain.ReferenceEntry(nil), idx.Entries...)
	out.Source = domain.IndexSourceStore
	return &out, nil
}

func (s *MemoryIndexStore) Save(ctx context.Context, idx *domain.ReferenceIndex) error {
	stored := *idx
	stored.Entries = append([]domain.ReferenceEntry(nil), idx.Entries...)

	s.mu.Lock()
	s.indexes[idx.Build.CorpusPath] = &stored
	s.mu.Unlock()
	return nil
}

func (s *MemoryIndexStore) Clear(ctx context.Context, corpusPath string) error {
	s.mu.Lock()
	delete(s.indexes, corpusPath)
	s.mu.Unlock()
	return nil
}
