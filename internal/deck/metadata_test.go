package deck

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDeriveCardName(t *testing.T) {
	cases := map[string]string{
		"01_fool.jpg":           "01 fool",
		"02_magician.jpeg":      "02 magician",
		"high-priestess.png":    "high priestess",
		"the_hanged-man.jpg":    "the hanged man",
		"wheel_of_fortune.jpeg": "wheel of fortune",
	}
	for in, want := range cases {
		if got := DeriveCardName(in); got != want {
			t.Errorf("DeriveCardName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.PNG"} {
		if !IsImageFile(name) {
			t.Errorf("%s should be recognized as an image", name)
		}
	}
	for _, name := range []string{"a.txt", "b.heic", "index.bin", "noext"} {
		if IsImageFile(name) {
			t.Errorf("%s should not be recognized as an image", name)
		}
	}
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"03_priestess.jpg", "01_fool.jpg", "02_magician.jpg", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir.png"), 0755); err != nil {
		t.Fatal(err)
	}

	names, err := ListImages(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"01_fool.jpg", "02_magician.jpg", "03_priestess.jpg"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("ListImages = %v, want %v", names, want)
	}
}

func TestListImages_MissingDir(t *testing.T) {
	if _, err := ListImages(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "metadata.json")
	records := []CardMetadata{
		{ID: 0, Filename: "01_fool.jpg", CardName: "01 fool"},
		{ID: 1, Filename: "02_magician.jpg", CardName: "02 magician"},
	}
	if err := SaveMetadata(path, records); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadMetadata(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(loaded, records) {
		t.Errorf("loaded %v, want %v", loaded, records)
	}
}

func TestPaths(t *testing.T) {
	p := Paths{ImagesRoot: "data/raw_images", IndicesRoot: "data/indices", AdaptersRoot: "models/adapters"}
	if got := p.ImagesDir("rws"); got != filepath.Join("data", "raw_images", "rws") {
		t.Errorf("ImagesDir = %s", got)
	}
	if got := p.IndexPath("rws"); got != filepath.Join("data", "indices", "rws", "index.bin") {
		t.Errorf("IndexPath = %s", got)
	}
	if got := p.MetadataPath("rws"); got != filepath.Join("data", "indices", "rws", "metadata.json") {
		t.Errorf("MetadataPath = %s", got)
	}
	if got := p.AdapterDir("thoth"); got != filepath.Join("models", "adapters", "thoth") {
		t.Errorf("AdapterDir = %s", got)
	}
}
