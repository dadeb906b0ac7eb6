package embedding

import (
	"context"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/tarotvision/tarotvision/pkg/utils"
)

func TestMockEmbedder_UnitNorm(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	vec, err := e.EmbedText(ctx, "the magician")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 64 {
		t.Fatalf("len = %d", len(vec))
	}
	if norm := utils.L2Norm(vec); math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm = %f, want 1.0", norm)
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(32)
	ctx := context.Background()
	a, _ := e.EmbedText(ctx, "fool")
	b, _ := e.EmbedText(ctx, "fool")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("identical text should embed identically")
		}
	}
	c, _ := e.EmbedText(ctx, "magician")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different text should embed differently")
	}
}

func TestMockEmbedder_ImageTextAgreement(t *testing.T) {
	// An image and a text query equal to its filename stem land on the same
	// vector, so pipeline tests can exercise the round-trip property.
	e := NewMockEmbedder(32)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "01_fool.png")
	writeTestPNG(t, path, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	imgVec, err := e.EmbedImage(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	txtVec, _ := e.EmbedText(ctx, "01_fool")
	for i := range imgVec {
		if imgVec[i] != txtVec[i] {
			t.Fatal("image and stem text should embed identically")
		}
	}
}

func TestMockEmbedder_UndecodableImage(t *testing.T) {
	e := NewMockEmbedder(32)
	if _, err := e.EmbedImage(context.Background(), filepath.Join(t.TempDir(), "missing.jpg")); err == nil {
		t.Error("expected error for missing image")
	}
}
