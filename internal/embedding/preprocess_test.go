package embedding

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.png")
	writeTestPNG(t, path, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	img, err := LoadImage(path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("width = %d", img.Bounds().Dx())
	}
}

func TestLoadImage_Undecodable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadImage(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestLoadImage_Missing(t *testing.T) {
	if _, err := LoadImage(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPreprocessImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.png")
	writeTestPNG(t, path, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	img, err := LoadImage(path)
	if err != nil {
		t.Fatal(err)
	}
	const size = 224
	pixels := PreprocessImage(img, size)
	if len(pixels) != 3*size*size {
		t.Fatalf("pixel count = %d, want %d", len(pixels), 3*size*size)
	}
	// A white image maps every channel c to (1 - mean[c]) / std[c].
	plane := size * size
	for c := 0; c < 3; c++ {
		want := (1 - clipMean[c]) / clipStd[c]
		got := pixels[c*plane+plane/2]
		if math.Abs(float64(got-want)) > 1e-3 {
			t.Errorf("channel %d center pixel = %f, want %f", c, got, want)
		}
	}
}
