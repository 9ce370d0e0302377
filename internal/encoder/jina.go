package encoder

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/armscan/internal/config"
	"github.com/timmy/armscan/internal/domain"
)

// JinaEncoder embeds images and label text in one space through the Jina
// CLIP embeddings API.
type JinaEncoder struct {
	client     *resty.Client
	endpoint   string
	model      string
	dimensions int
}

// NewJinaEncoder creates a joint text/image encoder.
func NewJinaEncoder(cfg *config.EncoderConfig) *JinaEncoder {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	return &JinaEncoder{
		client:     client,
		endpoint:   strings.TrimSuffix(cfg.BaseURL, "/") + "/embeddings",
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// jinaInput is one element of a mixed image/text batch.
type jinaInput struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type jinaRequest struct {
	Model         string      `json:"model"`
	Dimensions    int         `json:"dimensions,omitempty"`
	Normalized    bool        `json:"normalized"`
	EmbeddingType string      `json:"embedding_type,omitempty"`
	Input         []jinaInput `json:"input"`
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Detail string `json:"detail,omitempty"`
}

// EncodeImage implements ImageEncoder. The file is decoded locally first so
// unreadable images fail fast with domain.ErrInvalidImage.
func (e *JinaEncoder) EncodeImage(ctx context.Context, path string) (domain.Embedding, error) {
	if _, err := loadImage(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", domain.ErrInvalidImage, path, err)
	}

	out, err := e.embed(ctx, []jinaInput{{Image: base64.StdEncoding.EncodeToString(data)}})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EncodeText implements TextEncoder.
func (e *JinaEncoder) EncodeText(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	if len(texts) == 0 {
		return []domain.Embedding{}, nil
	}
	inputs := make([]jinaInput, len(texts))
	for i, t := range texts {
		inputs[i] = jinaInput{Text: t}
	}
	return e.embed(ctx, inputs)
}

func (e *JinaEncoder) embed(ctx context.Context, inputs []jinaInput) ([]domain.Embedding, error) {
	req := jinaRequest{
		Model:         e.model,
		Dimensions:    e.dimensions,
		Normalized:    true,
		EmbeddingType: "float",
		Input:         inputs,
	}

	var resp jinaResponse
	httpResp, err := e.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		ForceContentType("application/json").
		Post(e.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call Jina API: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		if resp.Detail != "" {
			return nil, fmt.Errorf("Jina API error: %s", resp.Detail)
		}
		return nil, fmt.Errorf("Jina API error: status %d", httpResp.StatusCode())
	}

	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(resp.Data), len(inputs))
	}

	// Sort by index to ensure correct order
	out := make([]domain.Embedding, len(inputs))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, fmt.Errorf("Jina API returned out-of-range index %d", item.Index)
		}
		out[item.Index] = normalize(item.Embedding)
	}
	return out, nil
}

// Fingerprint implements ImageEncoder.
func (e *JinaEncoder) Fingerprint() string {
	return fmt.Sprintf("jina/%s/%d", e.model, e.dimensions)
}

// Close implements ImageEncoder.
func (e *JinaEncoder) Close() error {
	return nil
}
