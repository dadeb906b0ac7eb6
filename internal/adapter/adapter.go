// Package adapter implements the low-rank adapter artifact: a small bundle of
// learned weight deltas, keyed by target module name inside the base model, that
// specializes the frozen CLIP encoders to one deck's artistic style. The adapter
// never modifies the base model's own weights; at load time each module's factors
// are fused into a single dense projection applied after the base encoder.
package adapter

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// ArtifactFilename is the adapter bundle file inside a deck's adapter directory.
const ArtifactFilename = "adapter.bin"

// Target module names inside the base model.
const (
	ModuleImageProjection = "image_projection"
	ModuleTextProjection  = "text_projection"
)

var artifactMagic = [4]byte{'T', 'V', 'A', 'D'}

// LowRank holds one module's weight-delta factors. A is rank x dim and B is
// dim x rank, both row-major, so the fused delta B*A is dim x dim.
type LowRank struct {
	A []float32
	B []float32
}

// Adapter is an in-memory low-rank adapter bundle.
type Adapter struct {
	Rank    int
	Alpha   float64
	Dim     int
	Modules map[string]LowRank
}

// Exists reports whether dir contains an adapter artifact.
func Exists(dir string) bool {
	if dir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, ArtifactFilename))
	return err == nil
}

// Fuse composes module's weight delta with the identity into a single dense
// projection W = I + (alpha/rank) * B * A. Applying W to a base embedding is
// equivalent to running the adapted module, so inference pays one matrix-vector
// product instead of re-deriving the low-rank branch per call.
func (a *Adapter) Fuse(module string) (*mat.Dense, error) {
	lr, ok := a.Modules[module]
	if !ok {
		return nil, fmt.Errorf("adapter has no module %q", module)
	}
	if len(lr.A) != a.Rank*a.Dim || len(lr.B) != a.Dim*a.Rank {
		return nil, fmt.Errorf("adapter module %q has inconsistent factor sizes", module)
	}
	am := mat.NewDense(a.Rank, a.Dim, toFloat64(lr.A))
	bm := mat.NewDense(a.Dim, a.Rank, toFloat64(lr.B))

	w := mat.NewDense(a.Dim, a.Dim, nil)
	w.Mul(bm, am)
	w.Scale(a.Alpha/float64(a.Rank), w)
	for i := 0; i < a.Dim; i++ {
		w.Set(i, i, w.At(i, i)+1)
	}
	return w, nil
}

// Save writes the adapter bundle to dir, creating it if needed.
func (a *Adapter) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create adapter dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, ArtifactFilename))
	if err != nil {
		return fmt.Errorf("create adapter file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(artifactMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	header := []any{uint32(a.Rank), math.Float64bits(a.Alpha), uint32(a.Dim), uint32(len(a.Modules))}
	for _, v := range header {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, name := range []string{ModuleImageProjection, ModuleTextProjection} {
		lr, ok := a.Modules[name]
		if !ok {
			continue
		}
		if err := writeModule(f, name, lr); err != nil {
			return err
		}
	}
	return nil
}

// Load reads an adapter bundle from dir.
func Load(dir string) (*Adapter, error) {
	f, err := os.Open(filepath.Join(dir, ArtifactFilename))
	if err != nil {
		return nil, fmt.Errorf("open adapter: %w", err)
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != artifactMagic {
		return nil, fmt.Errorf("not an adapter artifact")
	}
	var rank, dim, count uint32
	var alphaBits uint64
	if err := binary.Read(f, binary.LittleEndian, &rank); err != nil {
		return nil, fmt.Errorf("read rank: %w", err)
	}
	if err := binary.Read(f, binary.LittleEndian, &alphaBits); err != nil {
		return nil, fmt.Errorf("read alpha: %w", err)
	}
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dim: %w", err)
	}
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read module count: %w", err)
	}
	a := &Adapter{
		Rank:    int(rank),
		Alpha:   math.Float64frombits(alphaBits),
		Dim:     int(dim),
		Modules: make(map[string]LowRank, count),
	}
	for i := uint32(0); i < count; i++ {
		name, lr, err := readModule(f, a.Rank, a.Dim)
		if err != nil {
			return nil, err
		}
		a.Modules[name] = lr
	}
	return a, nil
}

func writeModule(w io.Writer, name string, lr LowRank) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(name))); err != nil {
		return fmt.Errorf("write module name len: %w", err)
	}
	if _, err := w.Write([]byte(name)); err != nil {
		return fmt.Errorf("write module name: %w", err)
	}
	for _, factor := range [][]float32{lr.A, lr.B} {
		if err := binary.Write(w, binary.LittleEndian, factor); err != nil {
			return fmt.Errorf("write module %s factors: %w", name, err)
		}
	}
	return nil
}

func readModule(r io.Reader, rank, dim int) (string, LowRank, error) {
	var nameLen uint32
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return "", LowRank{}, fmt.Errorf("read module name len: %w", err)
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return "", LowRank{}, fmt.Errorf("read module name: %w", err)
	}
	lr := LowRank{
		A: make([]float32, rank*dim),
		B: make([]float32, dim*rank),
	}
	if err := binary.Read(r, binary.LittleEndian, &lr.A); err != nil {
		return "", LowRank{}, fmt.Errorf("read module A: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &lr.B); err != nil {
		return "", LowRank{}, fmt.Errorf("read module B: %w", err)
	}
	return string(nameBytes), lr, nil
}

func toFloat64(s []float32) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}
	return out
}
