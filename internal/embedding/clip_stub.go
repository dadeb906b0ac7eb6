//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// CLIPEmbedder stub type when built without CGO (see clip.go for the real
// implementation).
type CLIPEmbedder struct{}

// ResolveDevice returns CPU when built without CGO.
func ResolveDevice() Device {
	return DeviceCPU
}

// NewCLIPEmbedder returns an error when built without CGO (ONNX not available).
func NewCLIPEmbedder(_ ModelConfig, _ string, _ Device, _ *zap.Logger) (*CLIPEmbedder, error) {
	return nil, errNoCGO
}

var errNoCGO = errors.New("CLIP embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// EmbedImage always fails on the stub.
func (e *CLIPEmbedder) EmbedImage(_ context.Context, _ string) ([]float32, error) {
	return nil, errNoCGO
}

// EmbedText always fails on the stub.
func (e *CLIPEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	return nil, errNoCGO
}

// Dimensions returns zero on the stub.
func (e *CLIPEmbedder) Dimensions() int { return 0 }

// Close is a no-op on the stub.
func (e *CLIPEmbedder) Close() error { return nil }
