package encoder

import (
	"context"

	"github.com/timmy/armscan/internal/domain"
)

// thumbnailGrid is the side of the downsampled image the thumbnail encoder embeds.
const thumbnailGrid = 16

// ThumbnailEncoder embeds an image as its normalised 16x16 RGB thumbnail.
// It needs no model files, which makes it the lightweight backbone for
// small corpora and for tests.
type ThumbnailEncoder struct {
	mean []float64
	std  []float64
}

// NewThumbnailEncoder creates a thumbnail encoder with the given channel statistics.
func NewThumbnailEncoder(mean, std []float64) *ThumbnailEncoder {
	return &ThumbnailEncoder{
		mean: append([]float64(nil), mean...),
		std:  append([]float64(nil), std...),
	}
}

// EncodeImage implements ImageEncoder.
func (e *ThumbnailEncoder) EncodeImage(ctx context.Context, path string) (domain.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tensor, err := preprocess(path, thumbnailGrid, e.mean, e.std)
	if err != nil {
		return nil, err
	}
	return normalize(tensor), nil
}

// Fingerprint implements ImageEncoder.
func (e *ThumbnailEncoder) Fingerprint() string {
	return "thumbnail/v1/" + pipelineID(thumbnailGrid, e.mean, e.std)
}

// Close implements ImageEncoder.
func (e *ThumbnailEncoder) Close() error {
	return nil
}
