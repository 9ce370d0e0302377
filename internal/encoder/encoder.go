// Package encoder turns images (and, for joint models, label text) into embeddings.
package encoder

import (
	"context"
	"fmt"
	"math"

	"github.com/timmy/armscan/internal/config"
	"github.com/timmy/armscan/internal/domain"
)

// ImageEncoder embeds image files. Implementations load their backbone once
// and are safe for concurrent use.
type ImageEncoder interface {
	// EncodeImage embeds the image at path.
	// Returns an error wrapping domain.ErrInvalidImage when the file is missing or undecodable.
	EncodeImage(ctx context.Context, path string) (domain.Embedding, error)

	// Fingerprint identifies the model and preprocessing pipeline.
	// Embeddings with different fingerprints are not comparable.
	Fingerprint() string

	Close() error
}

// TextEncoder is implemented by joint encoders that place label text in the image space.
type TextEncoder interface {
	ImageEncoder
	EncodeText(ctx context.Context, texts []string) ([]domain.Embedding, error)
}

// New creates the encoder selected by cfg.Strategy.
// Parameters:
//   - cfg: validated encoder configuration.
// Returns:
//   - ImageEncoder: ready to use; the caller owns Close.
//   - error: non-nil if the backbone cannot be loaded.
func New(cfg *config.EncoderConfig) (ImageEncoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()

	switch cfg.Strategy {
	case config.StrategyONNX:
		return NewONNXEncoder(cfg)
	case config.StrategyJina:
		return NewJinaEncoder(cfg), nil
	case config.StrategyThumbnail:
		return NewThumbnailEncoder(cfg.Mean, cfg.Std), nil
	default:
		return nil, fmt.Errorf("unknown encoder strategy %q", cfg.Strategy)
	}
}

// normalize scales v to unit length in place. Zero vectors are left unchanged.
func normalize(v []float32) domain.Embedding {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		v[i] = float32(float64(x) * inv)
	}
	return v
}

func pipelineID(size int, mean, std []float64) string {
	return fmt.Sprintf("%d/%v/%v", size, mean, std)
}
