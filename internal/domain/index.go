package domain

import "time"

// IndexShape selects how the reference index is populated.
type IndexShape string

const (
	// IndexShapeCorpus holds one embedding per reference image, grouped by label folder.
	IndexShapeCorpus IndexShape = "corpus"
	// IndexShapeLabels holds one text embedding per catalog label (zero-shot).
	IndexShapeLabels IndexShape = "labels"
)

// IndexSource reports where an in-memory index came from.
type IndexSource string

const (
	IndexSourceBuild IndexSource = "build"
	IndexSourceStore IndexSource = "store"
)

// IndexBuild is the persisted header of a built reference index.
type IndexBuild struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	CorpusPath  string     `gorm:"type:text;not null;index:idx_index_builds_corpus" json:"corpus_path"`
	Fingerprint string     `gorm:"type:text" json:"fingerprint"`
	EncoderID   string     `gorm:"type:text;not null" json:"encoder_id"`
	Shape       IndexShape `gorm:"type:text;not null" json:"shape"`
	Dim         int        `json:"dim"`
	EntryCount  int        `json:"entry_count"`
	Skipped     int        `json:"skipped"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TableName returns the database table name for IndexBuild.
func (IndexBuild) TableName() string {
	return "index_builds"
}

// ReferenceEntry is one reference image embedding.
// Position preserves the corpus walk order, which fixes tie-breaking.
type ReferenceEntry struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	BuildID  string `gorm:"type:text;not null;index:idx_reference_entries_build" json:"-"`
	Position int    `gorm:"not null" json:"position"`
	Label    string `gorm:"type:text;not null" json:"label"`
	Path     string `gorm:"type:text;not null" json:"path"`
	Vector   Vector `gorm:"not null" json:"-"`
}

// TableName returns the database table name for ReferenceEntry.
func (ReferenceEntry) TableName() string {
	return "reference_entries"
}

// ReferenceIndex is the in-memory set of candidates the matcher scores against.
type ReferenceIndex struct {
	Build   IndexBuild
	Entries []ReferenceEntry
	// LogitScale is the factor the encoder's native score carries; 1 means plain cosine.
	// Thresholds apply to cosine, so the scale only affects reported logits.
	LogitScale float64
	Source     IndexSource
}

// Labels returns the distinct labels in first-appearance order.
func (idx *ReferenceIndex) Labels() []string {
	seen := make(map[string]struct{}, len(idx.Entries))
	var labels []string
	for _, e := range idx.Entries {
		if _, ok := seen[e.Label]; ok {
			continue
		}
		seen[e.Label] = struct{}{}
		labels = append(labels, e.Label)
	}
	return labels
}

// IndexStats summarises the index held by the service.
type IndexStats struct {
	Shape       IndexShape  `json:"shape"`
	Entries     int         `json:"entries"`
	Labels      int         `json:"labels"`
	Skipped     int         `json:"skipped"`
	EncoderID   string      `json:"encoder_id"`
	Fingerprint string      `json:"fingerprint,omitempty"`
	BuiltAt     *time.Time  `json:"built_at,omitempty"`
	Source      IndexSource `json:"source,omitempty"`
	Loaded      bool        `json:"loaded"`
}
