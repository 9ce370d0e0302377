package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/timmy/armscan/internal/catalog"
	"github.com/timmy/armscan/internal/domain"
)

// stubEncoder returns fixed embeddings keyed by file path or text.
type stubEncoder struct {
	mu      sync.Mutex
	images  map[string]domain.Embedding
	texts   map[string]domain.Embedding
	id      string
	calls   atomic.Int32
	onImage func(path string)
}

func newStubEncoder() *stubEncoder {
	return &stubEncoder{
		images: make(map[string]domain.Embedding),
		texts:  make(map[string]domain.Embedding),
		id:     "stub/v1",
	}
}

func (e *stubEncoder) set(path string, v domain.Embedding) {
	e.mu.Lock()
	e.images[path] = v
	e.mu.Unlock()
}

func (e *stubEncoder) EncodeImage(ctx context.Context, path string) (domain.Embedding, error) {
	e.calls.Add(1)
	if e.onImage != nil {
		e.onImage(path)
	}
	e.mu.Lock()
	v, ok := e.images[path]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidImage, path)
	}
	return v, nil
}

func (e *stubEncoder) Fingerprint() string { return e.id }

func (e *stubEncoder) Close() error { return nil }

// stubTextEncoder adds label-text embeddings to stubEncoder.
type stubTextEncoder struct {
	*stubEncoder
}

func (e stubTextEncoder) EncodeText(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	out := make([]domain.Embedding, len(texts))
	for i, t := range texts {
		v, ok := e.texts[t]
		if !ok {
			return nil, fmt.Errorf("no embedding for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

// withSimilarity returns a unit vector whose cosine with axis(0) is s.
func withSimilarity(s float64) domain.Embedding {
	return domain.Embedding{float32(s), float32(math.Sqrt(1 - s*s)), 0}
}

func axis(i int) domain.Embedding {
	v := make(domain.Embedding, 3)
	v[i] = 1
	return v
}

// writeCorpus creates root/<label>/<file> placeholders and registers vectors on enc.
func writeCorpus(t *testing.T, root string, enc *stubEncoder, files map[string]domain.Embedding) {
	t.Helper()
	for rel, vec := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(rel), 0o644); err != nil {
			t.Fatal(err)
		}
		if vec != nil {
			enc.set(path, vec)
		}
	}
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]domain.WeaponRecord{
		{Label: "AK-47", DisplayName: "AK-47", LocalizedName: "Автомат Калашникова АК-47", Type: "автомат", Category: "стрілецька зброя", Country: "СРСР", Caliber: "7.62×39 мм"},
		{Label: "F-1", DisplayName: "F-1 grenade", LocalizedName: "Граната Ф-1", Type: "ручна граната", Category: "гранати", Country: "СРСР", Caliber: "—"},
		{Label: "TM-62", DisplayName: "TM-62 mine", LocalizedName: "Міна ТМ-62", Type: "протитанкова міна", Category: "mines", Country: "СРСР"},
	})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	return c
}
