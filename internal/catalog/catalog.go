// Package catalog loads the weapon and munition reference catalog.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/timmy/armscan/internal/domain"
)

// Catalog is an immutable, ordered set of weapon records keyed by label.
type Catalog struct {
	records []domain.WeaponRecord
	byLabel map[string]int
}

// Load reads a JSON array of weapon records.
// Parameters:
//   - path: catalog file path.
// Returns:
//   - *Catalog: records in file order.
//   - error: wraps domain.ErrCatalogUnavailable when the file is missing or malformed.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", domain.ErrCatalogUnavailable, path, err)
	}

	var records []domain.WeaponRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", domain.ErrCatalogUnavailable, path, err)
	}

	return New(records)
}

// New builds a catalog from records, defaulting each label to its name.
func New(records []domain.WeaponRecord) (*Catalog, error) {
	c := &Catalog{
		records: make([]domain.WeaponRecord, 0, len(records)),
		byLabel: make(map[string]int, len(records)),
	}
	for i, r := range records {
		r.Label = strings.TrimSpace(r.Label)
		if r.Label == "" {
			r.Label = strings.TrimSpace(r.DisplayName)
		}
		if r.Label == "" {
			return nil, fmt.Errorf("%w: record %d has no label or name", domain.ErrCatalogUnavailable, i)
		}
		if _, dup := c.byLabel[r.Label]; dup {
			return nil, fmt.Errorf("%w: duplicate label %q", domain.ErrCatalogUnavailable, r.Label)
		}
		c.byLabel[r.Label] = len(c.records)
		c.records = append(c.records, r)
	}
	return c, nil
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	return len(c.records)
}

// Records returns a copy of the records in insertion order.
func (c *Catalog) Records() []domain.WeaponRecord {
	return append([]domain.WeaponRecord(nil), c.records...)
}

// Lookup returns the record for label, or nil if the catalog does not know it.
func (c *Catalog) Lookup(label string) *domain.WeaponRecord {
	i, ok := c.byLabel[label]
	if !ok {
		return nil
	}
	r := c.records[i]
	return &r
}

// Labels returns the labels in insertion order.
func (c *Catalog) Labels() []string {
	labels := make([]string, len(c.records))
	for i, r := range c.records {
		labels[i] = r.Label
	}
	return labels
}

// PromptTexts returns the zero-shot text for every label, aligned with Labels.
// The English display name is what joint text/image models were trained on.
func (c *Catalog) PromptTexts() []string {
	texts := make([]string, len(c.records))
	for i, r := range c.records {
		if r.DisplayName != "" {
			texts[i] = r.DisplayName
		} else {
			texts[i] = r.Label
		}
	}
	return texts
}
