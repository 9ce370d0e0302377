package service

import (
	"sync"

	"github.com/timmy/armscan/internal/catalog"
)

// CatalogProvider loads the weapon catalog on first use.
// Only a successful load is cached, so a fixed file is picked up on the next call.
type CatalogProvider struct {
	path string

	mu  sync.Mutex
	cat *catalog.Catalog
}

// NewCatalogProvider creates a provider reading the catalog file at path.
func NewCatalogProvider(path string) *CatalogProvider {
	return &CatalogProvider{path: path}
}

// StaticCatalog wraps an already loaded catalog.
func StaticCatalog(c *catalog.Catalog) *CatalogProvider {
	return &CatalogProvider{cat: c}
}

// Get returns the catalog, loading it if needed.
// Errors wrap domain.ErrCatalogUnavailable.
func (p *CatalogProvider) Get() (*catalog.Catalog, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cat != nil {
		return p.cat, nil
	}
	c, err := catalog.Load(p.path)
	if err != nil {
		return nil, err
	}
	p.cat = c
	return c, nil
}
