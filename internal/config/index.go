package config

import "fmt"

// Reference index shapes.
const (
	IndexShapeCorpus = "corpus" // one embedding per reference image
	IndexShapeLabels = "labels" // zero-shot over catalog label text
)

// Reference index stores.
const (
	IndexStoreDatabase = "database"
	IndexStoreQdrant   = "qdrant"
	IndexStoreMemory   = "memory"
)

type IndexConfig struct {
	CorpusPath   string `mapstructure:"corpus_path"`
	Shape        string `mapstructure:"shape"`
	Store        string `mapstructure:"store"`
	VerifyCorpus bool   `mapstructure:"verify_corpus"`
	Workers      int    `mapstructure:"workers"`
}

// Validate checks the index shape and store against the selected encoder.
func (c *IndexConfig) Validate(enc *EncoderConfig) error {
	switch c.Shape {
	case IndexShapeCorpus:
		if c.CorpusPath == "" {
			return fmt.Errorf("index: corpus_path is required for shape %q", c.Shape)
		}
	case IndexShapeLabels:
		if !enc.SupportsText() {
			return fmt.Errorf("index: shape %q needs a text-capable encoder, got %q", c.Shape, enc.Strategy)
		}
	default:
		return fmt.Errorf("index: unknown shape %q", c.Shape)
	}

	switch c.Store {
	case IndexStoreDatabase, IndexStoreQdrant, IndexStoreMemory:
	default:
		return fmt.Errorf("index: unknown store %q", c.Store)
	}
	return nil
}
