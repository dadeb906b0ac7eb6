package index

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/tarotvision/tarotvision/internal/deck"
	"github.com/tarotvision/tarotvision/internal/embedding"
	"github.com/tarotvision/tarotvision/internal/export"
	"github.com/tarotvision/tarotvision/pkg/utils"
)

func writeTestPNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// newTestDeck creates a deck image directory under root with the given filenames
// as decodable PNGs (regardless of extension; the decoder sniffs content).
func newTestDeck(t *testing.T, root, deckName string, files []string) deck.Paths {
	t.Helper()
	paths := deck.Paths{
		ImagesRoot:   filepath.Join(root, "raw_images"),
		IndicesRoot:  filepath.Join(root, "indices"),
		AdaptersRoot: filepath.Join(root, "adapters"),
	}
	dir := paths.ImagesDir(deckName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for i, name := range files {
		writeTestPNG(t, filepath.Join(dir, name), color.RGBA{R: uint8(40 * i), G: 100, B: 200, A: 255})
	}
	return paths
}

func TestBuilder_MetadataOrder(t *testing.T) {
	paths := newTestDeck(t, t.TempDir(), "rws", []string{"01_fool.jpg", "02_magician.jpg", "03_priestess.jpg"})
	b := NewBuilder(embedding.NewMockEmbedder(32), paths, zap.NewNop())

	result, err := b.Build(context.Background(), "rws", "")
	if err != nil {
		t.Fatal(err)
	}
	want := []deck.CardMetadata{
		{ID: 0, Filename: "01_fool.jpg", CardName: "01 fool"},
		{ID: 1, Filename: "02_magician.jpg", CardName: "02 magician"},
		{ID: 2, Filename: "03_priestess.jpg", CardName: "03 priestess"},
	}
	if len(result.Metadata) != len(want) {
		t.Fatalf("metadata length = %d", len(result.Metadata))
	}
	for i, m := range result.Metadata {
		if m != want[i] {
			t.Errorf("metadata[%d] = %+v, want %+v", i, m, want[i])
		}
	}
	if result.Index.Size() != 3 {
		t.Errorf("index size = %d, want 3", result.Index.Size())
	}

	// Artifacts round-trip and stay parallel.
	persisted, err := deck.LoadMetadata(result.MetadataPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != result.Index.Size() {
		t.Errorf("persisted metadata length %d != index size %d", len(persisted), result.Index.Size())
	}
}

func TestBuilder_EmbeddingsNormalized(t *testing.T) {
	paths := newTestDeck(t, t.TempDir(), "rws", []string{"01_fool.jpg", "02_magician.jpg"})
	b := NewBuilder(embedding.NewMockEmbedder(32), paths, zap.NewNop())

	result, err := b.Build(context.Background(), "rws", "")
	if err != nil {
		t.Fatal(err)
	}
	for row := 0; row < result.Index.Size(); row++ {
		if norm := utils.L2Norm(result.Index.Vector(row)); math.Abs(norm-1) > 1e-5 {
			t.Errorf("row %d norm = %f, want 1.0", row, norm)
		}
	}
}

func TestBuilder_MissingDirectory(t *testing.T) {
	paths := deck.Paths{
		ImagesRoot:  filepath.Join(t.TempDir(), "raw_images"),
		IndicesRoot: filepath.Join(t.TempDir(), "indices"),
	}
	b := NewBuilder(embedding.NewMockEmbedder(32), paths, zap.NewNop())
	if _, err := b.Build(context.Background(), "rws", ""); err == nil {
		t.Fatal("expected error for missing image directory")
	}
}

func TestBuilder_NoImagesNoArtifacts(t *testing.T) {
	root := t.TempDir()
	paths := newTestDeck(t, root, "rws", nil)
	b := NewBuilder(embedding.NewMockEmbedder(32), paths, zap.NewNop())

	if _, err := b.Build(context.Background(), "rws", ""); err == nil {
		t.Fatal("expected error for empty image directory")
	}
	for _, p := range []string{paths.IndexPath("rws"), paths.MetadataPath("rws")} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("artifact %s should not exist after aborted build", p)
		}
	}
}

func TestBuilder_AllImagesUndecodableNoArtifacts(t *testing.T) {
	root := t.TempDir()
	paths := newTestDeck(t, root, "rws", nil)
	dir := paths.ImagesDir("rws")
	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(embedding.NewMockEmbedder(32), paths, zap.NewNop())

	if _, err := b.Build(context.Background(), "rws", ""); err == nil {
		t.Fatal("expected error when no image embeds successfully")
	}
	if _, err := os.Stat(paths.IndexPath("rws")); !os.IsNotExist(err) {
		t.Error("index artifact should not exist")
	}
}

func TestBuilder_SkipsUndecodable(t *testing.T) {
	root := t.TempDir()
	paths := newTestDeck(t, root, "rws", []string{"01_fool.jpg", "03_priestess.jpg"})
	if err := os.WriteFile(filepath.Join(paths.ImagesDir("rws"), "02_broken.jpg"), []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(embedding.NewMockEmbedder(32), paths, zap.NewNop())

	result, err := b.Build(context.Background(), "rws", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", result.Skipped)
	}
	if result.Index.Size() != 2 || len(result.Metadata) != 2 {
		t.Errorf("size=%d metadata=%d, want 2/2", result.Index.Size(), len(result.Metadata))
	}
	// Ids stay dense over the successes.
	if result.Metadata[1].ID != 1 || result.Metadata[1].Filename != "03_priestess.jpg" {
		t.Errorf("metadata[1] = %+v", result.Metadata[1])
	}
}

func TestBuilder_ExportMergePreservesOtherDecks(t *testing.T) {
	root := t.TempDir()
	exportPath := filepath.Join(root, "vision", "prototypes.json")

	marseilleCards := make(map[string]export.CardEntry)
	for _, name := range []string{"le mat", "le bateleur", "la papesse", "l imperatrice", "l empereur"} {
		marseilleCards[name] = export.CardEntry{Embedding: []float32{1, 0}, Count: 1}
	}
	if err := export.Merge(exportPath, "marseille", marseilleCards); err != nil {
		t.Fatal(err)
	}

	paths := newTestDeck(t, root, "rws", []string{"01_fool.jpg", "02_magician.jpg"})
	b := NewBuilder(embedding.NewMockEmbedder(16), paths, zap.NewNop())
	if _, err := b.Build(context.Background(), "rws", exportPath); err != nil {
		t.Fatal(err)
	}

	doc, err := export.Read(exportPath)
	if err != nil {
		t.Fatal(err)
	}
	marseille, ok := doc.DeckStyles["marseille"]
	if !ok {
		t.Fatal("marseille entry lost")
	}
	if len(marseille.Cards) != 5 {
		t.Errorf("marseille cards = %d, want 5", len(marseille.Cards))
	}
	rws, ok := doc.DeckStyles["rws-1909"]
	if !ok {
		t.Fatal("rws entry missing")
	}
	if len(rws.Cards) != 2 {
		t.Errorf("rws cards = %d, want 2", len(rws.Cards))
	}
	fool, ok := rws.Cards["01 fool"]
	if !ok {
		t.Fatal("expected card keyed by canonical card name")
	}
	if fool.Count != 1 || len(fool.Embedding) != 16 {
		t.Errorf("fool entry = count %d, dim %d", fool.Count, len(fool.Embedding))
	}
}
