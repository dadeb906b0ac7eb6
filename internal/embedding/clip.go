//go:build cgo
// +build cgo

// ONNX-backed CLIP dual encoder (requires CGO and the onnxruntime library).
package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/tarotvision/tarotvision/internal/adapter"
	"github.com/tarotvision/tarotvision/pkg/utils"
)

// CLIPEmbedder runs the CLIP image and text encoders through ONNX Runtime. When a
// deck adapter is present its low-rank deltas are fused into dense projections at
// construction time, so inference is a single callable path with no per-call
// branching on adapter presence.
type CLIPEmbedder struct {
	cfg       ModelConfig
	device    Device
	cache     *EmbeddingCache
	tokenizer Tokenizer

	// Fused adapter projections; nil means the unmodified base model.
	imageProj *mat.Dense
	textProj  *mat.Dense

	imageSession *ort.AdvancedSession
	textSession  *ort.AdvancedSession
	// Pre-allocated tensors for Run(); input data is updated in place per call.
	pixelTensor         *ort.Tensor[float32]
	imageOutTensor      *ort.Tensor[float32]
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	textOutTensor       *ort.Tensor[float32]
	mu                  sync.Mutex
}

// ResolveDevice returns the compute device for this invocation: CUDA when the
// onnxruntime build can construct a CUDA execution provider, else CPU.
func ResolveDevice() Device {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return DeviceCPU
		}
	}
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return DeviceCPU
	}
	_ = cudaOpts.Destroy()
	return DeviceCUDA
}

// NewCLIPEmbedder creates the dual-encoder embedder. adapterDir may be empty (use
// the base model); a non-empty dir without an artifact is a soft warning and the
// base model is used.
func NewCLIPEmbedder(cfg ModelConfig, adapterDir string, device Device, logger *zap.Logger) (*CLIPEmbedder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	e := &CLIPEmbedder{
		cfg:       cfg,
		device:    device,
		cache:     NewEmbeddingCache(cfg.CacheSize),
		tokenizer: &SimpleTokenizer{},
	}

	if err := e.resolveAdapter(adapterDir, logger); err != nil {
		return nil, err
	}
	if err := e.createSessions(); err != nil {
		e.destroy()
		return nil, err
	}
	logger.Info("embedder ready",
		zap.String("device", device.String()),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Bool("adapter", e.imageProj != nil))
	return e, nil
}

// resolveAdapter loads and fuses the adapter bundle when present. The base model
// weights are never touched; fusion produces standalone projection matrices.
func (e *CLIPEmbedder) resolveAdapter(adapterDir string, logger *zap.Logger) error {
	if adapterDir == "" {
		logger.Info("using base model (no adapter)")
		return nil
	}
	if !adapter.Exists(adapterDir) {
		logger.Warn("adapter not found, using base model", zap.String("dir", adapterDir))
		return nil
	}
	bundle, err := adapter.Load(adapterDir)
	if err != nil {
		return fmt.Errorf("load adapter: %w", err)
	}
	if bundle.Dim != e.cfg.Dimensions {
		return fmt.Errorf("adapter dimension mismatch: adapter has %d, model has %d", bundle.Dim, e.cfg.Dimensions)
	}
	if e.imageProj, err = bundle.Fuse(adapter.ModuleImageProjection); err != nil {
		return fmt.Errorf("fuse adapter: %w", err)
	}
	if e.textProj, err = bundle.Fuse(adapter.ModuleTextProjection); err != nil {
		return fmt.Errorf("fuse adapter: %w", err)
	}
	logger.Info("adapter loaded and fused", zap.String("dir", adapterDir))
	return nil
}

func (e *CLIPEmbedder) createSessions() error {
	size := int64(e.cfg.ImageSize)
	dims := int64(e.cfg.Dimensions)
	maxTokens := int64(e.cfg.MaxTokens)

	opts, err := e.sessionOptions()
	if err != nil {
		return err
	}
	if opts != nil {
		defer opts.Destroy()
	}

	e.pixelTensor, err = ort.NewTensor(ort.NewShape(1, 3, size, size), make([]float32, 3*size*size))
	if err != nil {
		return fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	e.imageOutTensor, err = ort.NewTensor(ort.NewShape(1, dims), make([]float32, dims))
	if err != nil {
		return fmt.Errorf("failed to create image output tensor: %w", err)
	}
	e.imageSession, err = ort.NewAdvancedSession(
		e.cfg.ImageModelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{e.pixelTensor},
		[]ort.ArbitraryTensor{e.imageOutTensor},
		opts,
	)
	if err != nil {
		return fmt.Errorf("failed to create image encoder session: %w", err)
	}

	e.inputIDsTensor, err = ort.NewTensor(ort.NewShape(1, maxTokens), make([]int64, maxTokens))
	if err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	e.attentionMaskTensor, err = ort.NewTensor(ort.NewShape(1, maxTokens), make([]int64, maxTokens))
	if err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	e.textOutTensor, err = ort.NewTensor(ort.NewShape(1, dims), make([]float32, dims))
	if err != nil {
		return fmt.Errorf("failed to create text output tensor: %w", err)
	}
	e.textSession, err = ort.NewAdvancedSession(
		e.cfg.TextModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embeds"},
		[]ort.ArbitraryTensor{e.inputIDsTensor, e.attentionMaskTensor},
		[]ort.ArbitraryTensor{e.textOutTensor},
		opts,
	)
	if err != nil {
		return fmt.Errorf("failed to create text encoder session: %w", err)
	}
	return nil
}

func (e *CLIPEmbedder) sessionOptions() (*ort.SessionOptions, error) {
	if e.device != DeviceCUDA {
		return nil, nil
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("failed to create CUDA provider options: %w", err)
	}
	defer cudaOpts.Destroy()
	if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("failed to enable CUDA execution provider: %w", err)
	}
	return opts, nil
}

// EmbedImage decodes, preprocesses, and embeds the image at path, returning its
// unit-normalized embedding.
func (e *CLIPEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	pixels := PreprocessImage(img, e.cfg.ImageSize)

	e.mu.Lock()
	defer e.mu.Unlock()
	copy(e.pixelTensor.GetData(), pixels)
	if err := e.imageSession.Run(); err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}
	return e.finishEmbedding(e.imageOutTensor.GetData(), e.imageProj), nil
}

// EmbedText embeds a text string into the same vector space as images, using the
// cache when available.
func (e *CLIPEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	e.mu.Lock()
	inputIDs, attentionMask := e.tokenizer.Tokenize(text, e.cfg.MaxTokens)
	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attentionMaskTensor.GetData(), attentionMask)
	if err := e.textSession.Run(); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("text inference failed: %w", err)
	}
	embedding := e.finishEmbedding(e.textOutTensor.GetData(), e.textProj)
	e.mu.Unlock()

	e.cache.Set(text, embedding)
	return embedding, nil
}

// finishEmbedding copies the session output, applies the fused adapter projection
// when present, and normalizes to unit length.
func (e *CLIPEmbedder) finishEmbedding(out []float32, proj *mat.Dense) []float32 {
	embedding := make([]float32, e.cfg.Dimensions)
	copy(embedding, out[:e.cfg.Dimensions])
	if proj != nil {
		embedding = applyProjection(proj, embedding)
	}
	utils.NormalizeL2(embedding)
	return embedding
}

// Dimensions returns the embedding dimension.
func (e *CLIPEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Close destroys the sessions and tensors.
func (e *CLIPEmbedder) Close() error {
	e.destroy()
	return nil
}

func (e *CLIPEmbedder) destroy() {
	if e.imageSession != nil {
		_ = e.imageSession.Destroy()
		e.imageSession = nil
	}
	if e.textSession != nil {
		_ = e.textSession.Destroy()
		e.textSession = nil
	}
	for _, t := range []*ort.Tensor[float32]{e.pixelTensor, e.imageOutTensor, e.textOutTensor} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	for _, t := range []*ort.Tensor[int64]{e.inputIDsTensor, e.attentionMaskTensor} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	e.pixelTensor, e.imageOutTensor, e.textOutTensor = nil, nil, nil
	e.inputIDsTensor, e.attentionMaskTensor = nil, nil
}

// applyProjection computes W*v.
func applyProjection(w *mat.Dense, v []float32) []float32 {
	dim := len(v)
	x := make([]float64, dim)
	for i, f := range v {
		x[i] = float64(f)
	}
	var y mat.VecDense
	y.MulVec(w, mat.NewVecDense(dim, x))
	out := make([]float32, dim)
	for i := range out {
		out[i] = float32(y.AtVec(i))
	}
	return out
}
