package embedding

import (
	"context"
	"math"
	"path/filepath"
	"strings"
)

// MockEmbedder is a deterministic embedder for tests. Text embeddings are derived
// from the text hash; image embeddings are derived from the filename stem after
// verifying the file decodes, so an image and a text query equal to its stem land
// on the same vector.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of
// the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedImage decodes the image at path (so unreadable files fail the same way the
// real embedder fails) and returns a deterministic embedding of its filename stem.
func (e *MockEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	if _, err := LoadImage(path); err != nil {
		return nil, err
	}
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return e.fromKey(stem), nil
}

// EmbedText returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.fromKey(text), nil
}

func (e *MockEmbedder) fromKey(key string) []float32 {
	h := float64(HashString(key) % 1000003)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(h*float64(i+1))*0.1 + 0.01)
	}
	// Normalize to unit length for cosine similarity
	var sum float64
	for _, v := range emb {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range emb {
			emb[i] *= float32(norm)
		}
	}
	return emb
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
