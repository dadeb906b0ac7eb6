// Package embedding maps card images and text queries into one shared vector
// space using a CLIP dual encoder run through ONNX, optionally composed with a
// fine-tuned low-rank adapter.
package embedding

import "context"

// Embedder produces unit-normalized vector embeddings for images and text. Image
// and text embeddings share one vector space, so their inner product is a
// meaningful cross-modal similarity.
type Embedder interface {
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// ModelConfig holds the settings needed to construct a CLIP embedder.
type ModelConfig struct {
	ImageModelPath string
	TextModelPath  string
	Dimensions     int
	ImageSize      int
	MaxTokens      int
	CacheSize      int
}
