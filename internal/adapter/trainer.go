package adapter

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/tarotvision/tarotvision/internal/deck"
)

// ImageTextEmbedder is the slice of the embedding contract the trainer needs: the
// frozen base model producing normalized image and text embeddings.
type ImageTextEmbedder interface {
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// TrainConfig holds fine-tuning hyperparameters.
type TrainConfig struct {
	Epochs       int
	BatchSize    int
	Rank         int
	Alpha        float64
	LearningRate float64
	LogitScale   float64 // contrastive temperature, CLIP convention ~100
	Seed         int64
}

// Trainer fine-tunes a low-rank adapter against a directory of labeled images
// using a contrastive image/text objective. The base model stays frozen: base
// embeddings are computed once, and only the adapter factors are updated.
type Trainer struct {
	embedder ImageTextEmbedder
	cfg      TrainConfig
	logger   *zap.Logger
}

// NewTrainer creates a trainer over the given base embedder.
func NewTrainer(embedder ImageTextEmbedder, cfg TrainConfig, logger *zap.Logger) *Trainer {
	if cfg.LogitScale == 0 {
		cfg.LogitScale = 100
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Trainer{embedder: embedder, cfg: cfg, logger: logger}
}

// CaptionFor returns the template caption paired with an image filename during
// training ("01_fool.jpg" -> "a tarot card of 01 fool").
func CaptionFor(filename string) string {
	return "a tarot card of " + deck.DeriveCardName(filename)
}

// Train runs the fine-tuning loop over the images in imagesDir and writes the
// adapter artifact to outDir. An empty or missing dataset is a warning, not an
// error: the loop is skipped and no artifact is written, leaving any prior
// artifact untouched.
func (t *Trainer) Train(ctx context.Context, imagesDir, outDir string) error {
	names, err := deck.ListImages(imagesDir)
	if err != nil {
		t.logger.Warn("dataset directory not readable, skipping training",
			zap.String("dir", imagesDir), zap.Error(err))
		return nil
	}
	if len(names) == 0 {
		t.logger.Warn("no images found, skipping training loop", zap.String("dir", imagesDir))
		return nil
	}

	dim := t.embedder.Dimensions()
	var imgRows, txtRows []float64
	embedded := 0
	for _, name := range names {
		imgVec, err := t.embedder.EmbedImage(ctx, filepath.Join(imagesDir, name))
		if err != nil {
			t.logger.Warn("skipping unreadable image", zap.String("file", name), zap.Error(err))
			continue
		}
		txtVec, err := t.embedder.EmbedText(ctx, CaptionFor(name))
		if err != nil {
			return err
		}
		imgRows = appendFloat64(imgRows, imgVec)
		txtRows = appendFloat64(txtRows, txtVec)
		embedded++
	}
	if embedded == 0 {
		t.logger.Warn("no embeddable images, skipping training loop", zap.String("dir", imagesDir))
		return nil
	}

	zImg := mat.NewDense(embedded, dim, imgRows)
	zTxt := mat.NewDense(embedded, dim, txtRows)

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	image := newLowRankParams(t.cfg.Rank, dim, rng)
	text := newLowRankParams(t.cfg.Rank, dim, rng)
	scale := t.cfg.Alpha / float64(t.cfg.Rank)

	t.logger.Info("starting training",
		zap.Int("images", embedded),
		zap.Int("epochs", t.cfg.Epochs),
		zap.Int("batch_size", t.cfg.BatchSize),
		zap.Int("rank", t.cfg.Rank))

	perm := make([]int, embedded)
	for i := range perm {
		perm[i] = i
	}
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		var totalLoss float64
		batches := 0
		for start := 0; start < embedded; start += t.cfg.BatchSize {
			end := start + t.cfg.BatchSize
			if end > embedded {
				end = embedded
			}
			loss := t.trainBatch(selectRows(zImg, perm[start:end]), selectRows(zTxt, perm[start:end]), image, text, scale)
			totalLoss += loss
			batches++
		}
		t.logger.Info("epoch completed",
			zap.Int("epoch", epoch+1),
			zap.Float64("avg_loss", totalLoss/float64(batches)))
	}

	artifact := &Adapter{
		Rank:  t.cfg.Rank,
		Alpha: t.cfg.Alpha,
		Dim:   dim,
		Modules: map[string]LowRank{
			ModuleImageProjection: image.lowRank(),
			ModuleTextProjection:  text.lowRank(),
		},
	}
	if err := artifact.Save(outDir); err != nil {
		return err
	}
	t.logger.Info("adapter saved", zap.String("dir", outDir))
	return nil
}

// lowRankParams are one tower's trainable factors: A is rank x dim, B is dim x rank.
// B starts at zero so the adapted projection starts as the identity.
type lowRankParams struct {
	a *mat.Dense
	b *mat.Dense
}

func newLowRankParams(rank, dim int, rng *rand.Rand) *lowRankParams {
	aData := make([]float64, rank*dim)
	std := 1 / math.Sqrt(float64(dim))
	for i := range aData {
		aData[i] = rng.NormFloat64() * std
	}
	return &lowRankParams{
		a: mat.NewDense(rank, dim, aData),
		b: mat.NewDense(dim, rank, nil),
	}
}

func (p *lowRankParams) lowRank() LowRank {
	return LowRank{A: toFloat32(p.a.RawMatrix().Data), B: toFloat32(p.b.RawMatrix().Data)}
}

// forward computes Y = Z + scale * (Z * Aᵀ) * Bᵀ and its row-normalized form.
func (p *lowRankParams) forward(z *mat.Dense, scale float64) (proj, y, yHat *mat.Dense, norms []float64) {
	n, dim := z.Dims()
	rank, _ := p.a.Dims()
	proj = mat.NewDense(n, rank, nil)
	proj.Mul(z, p.a.T())

	y = mat.NewDense(n, dim, nil)
	y.Mul(proj, p.b.T())
	y.Scale(scale, y)
	y.Add(y, z)

	yHat = mat.NewDense(n, dim, nil)
	yHat.Copy(y)
	norms = normalizeRows(yHat)
	return proj, y, yHat, norms
}

// backward propagates dYHat through the row normalization and the low-rank branch,
// applies an SGD step, and returns nothing; Z is frozen.
func (p *lowRankParams) backward(z, proj, yHat *mat.Dense, norms []float64, dYHat *mat.Dense, scale, lr float64) {
	n, dim := z.Dims()
	rank, _ := p.a.Dims()

	// Through ŷ = y/‖y‖: dy = (dŷ - (dŷ·ŷ)ŷ)/‖y‖, per row.
	dY := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		gRow := dYHat.RawRowView(i)
		hRow := yHat.RawRowView(i)
		var dot float64
		for j := 0; j < dim; j++ {
			dot += gRow[j] * hRow[j]
		}
		out := dY.RawRowView(i)
		inv := 1 / norms[i]
		for j := 0; j < dim; j++ {
			out[j] = (gRow[j] - dot*hRow[j]) * inv
		}
	}

	dB := mat.NewDense(dim, rank, nil)
	dB.Mul(dY.T(), proj)
	dB.Scale(scale, dB)

	dProj := mat.NewDense(n, rank, nil)
	dProj.Mul(dY, p.b)
	dProj.Scale(scale, dProj)

	dA := mat.NewDense(rank, dim, nil)
	dA.Mul(dProj.T(), z)

	applySGD(p.a, dA, lr)
	applySGD(p.b, dB, lr)
}

// trainBatch runs one forward/backward pass with the symmetric contrastive loss
// and returns the batch loss.
func (t *Trainer) trainBatch(zImg, zTxt *mat.Dense, image, text *lowRankParams, scale float64) float64 {
	n, _ := zImg.Dims()
	tau := t.cfg.LogitScale

	imgProj, _, imgHat, imgNorms := image.forward(zImg, scale)
	txtProj, _, txtHat, txtNorms := text.forward(zTxt, scale)

	// Logits: pairwise similarities scaled by temperature.
	logits := mat.NewDense(n, n, nil)
	logits.Mul(imgHat, txtHat.T())
	logits.Scale(tau, logits)

	probRows := softmaxRows(logits, false)
	probCols := softmaxRows(logits, true)

	var loss float64
	for i := 0; i < n; i++ {
		loss += -math.Log(math.Max(probRows.At(i, i), 1e-12))
		loss += -math.Log(math.Max(probCols.At(i, i), 1e-12))
	}
	loss /= 2 * float64(n)

	// dL/dlogits = ((Pr - I) + (Pc - I)) / (2n)
	dLogits := mat.NewDense(n, n, nil)
	dLogits.Add(probRows, probCols)
	for i := 0; i < n; i++ {
		dLogits.Set(i, i, dLogits.At(i, i)-2)
	}
	dLogits.Scale(1/(2*float64(n)), dLogits)

	dImgHat := mat.NewDense(n, txtHat.RawMatrix().Cols, nil)
	dImgHat.Mul(dLogits, txtHat)
	dImgHat.Scale(tau, dImgHat)

	dTxtHat := mat.NewDense(n, imgHat.RawMatrix().Cols, nil)
	dTxtHat.Mul(dLogits.T(), imgHat)
	dTxtHat.Scale(tau, dTxtHat)

	image.backward(zImg, imgProj, imgHat, imgNorms, dImgHat, scale, t.cfg.LearningRate)
	text.backward(zTxt, txtProj, txtHat, txtNorms, dTxtHat, scale, t.cfg.LearningRate)
	return loss
}

// softmaxRows returns the row-wise softmax of m, or column-wise when cols is true.
func softmaxRows(m *mat.Dense, cols bool) *mat.Dense {
	n, _ := m.Dims()
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		maxV := math.Inf(-1)
		for j := 0; j < n; j++ {
			if at(m, i, j, cols) > maxV {
				maxV = at(m, i, j, cols)
			}
		}
		var sum float64
		for j := 0; j < n; j++ {
			sum += math.Exp(at(m, i, j, cols) - maxV)
		}
		for j := 0; j < n; j++ {
			v := math.Exp(at(m, i, j, cols)-maxV) / sum
			if cols {
				out.Set(j, i, v)
			} else {
				out.Set(i, j, v)
			}
		}
	}
	return out
}

func at(m *mat.Dense, i, j int, transposed bool) float64 {
	if transposed {
		return m.At(j, i)
	}
	return m.At(i, j)
}

// normalizeRows scales each row to unit L2 norm in place and returns the original norms.
func normalizeRows(m *mat.Dense) []float64 {
	n, dim := m.Dims()
	norms := make([]float64, n)
	for i := 0; i < n; i++ {
		row := m.RawRowView(i)
		var sum float64
		for j := 0; j < dim; j++ {
			sum += row[j] * row[j]
		}
		norm := math.Sqrt(sum)
		if norm == 0 {
			norms[i] = 1
			continue
		}
		norms[i] = norm
		for j := 0; j < dim; j++ {
			row[j] /= norm
		}
	}
	return norms
}

func selectRows(m *mat.Dense, rows []int) *mat.Dense {
	_, dim := m.Dims()
	out := mat.NewDense(len(rows), dim, nil)
	for i, r := range rows {
		out.SetRow(i, m.RawRowView(r))
	}
	return out
}

func applySGD(param, grad *mat.Dense, lr float64) {
	pd := param.RawMatrix().Data
	gd := grad.RawMatrix().Data
	for i := range pd {
		pd[i] -= lr * gd[i]
	}
}

func appendFloat64(dst []float64, v []float32) []float64 {
	for _, x := range v {
		dst = append(dst, float64(x))
	}
	return dst
}

func toFloat32(s []float64) []float32 {
	out := make([]float32, len(s))
	for i, v := range s {
		out[i] = float32(v)
	}
	return out
}
