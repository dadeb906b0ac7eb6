package export

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestCanonicalDeckID(t *testing.T) {
	cases := map[string]string{
		"rws":       "rws-1909",
		"thoth":     "thoth",
		"marseille": "marseille",
		"custom":    "custom", // fallback to raw name
	}
	for in, want := range cases {
		if got := CanonicalDeckID(in); got != want {
			t.Errorf("CanonicalDeckID(%q) = %q, want %q", in, got, want)
		}
	}
}

func cards(n int) map[string]CardEntry {
	out := make(map[string]CardEntry, n)
	for i := 0; i < n; i++ {
		out[fmt.Sprintf("card %d", i)] = CardEntry{Embedding: []float32{float32(i), 1}, Count: 1}
	}
	return out
}

func TestMerge_NewDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vision", "prototypes.json")
	if err := Merge(path, "rws", cards(3)); err != nil {
		t.Fatal(err)
	}
	doc, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := doc.DeckStyles["rws-1909"]
	if !ok {
		t.Fatalf("deck keys = %v", keysOf(doc))
	}
	if len(entry.Cards) != 3 {
		t.Errorf("card count = %d", len(entry.Cards))
	}
}

func TestMerge_PreservesOtherDecks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prototypes.json")
	if err := Merge(path, "marseille", cards(5)); err != nil {
		t.Fatal(err)
	}
	if err := Merge(path, "rws", cards(2)); err != nil {
		t.Fatal(err)
	}

	doc, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	marseille, ok := doc.DeckStyles["marseille"]
	if !ok {
		t.Fatal("marseille entry lost by merge")
	}
	if len(marseille.Cards) != 5 {
		t.Errorf("marseille card count = %d, want 5", len(marseille.Cards))
	}
	if _, ok := doc.DeckStyles["rws-1909"]; !ok {
		t.Error("rws entry missing after merge")
	}
}

func TestMerge_OverwritesOwnEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prototypes.json")
	if err := Merge(path, "rws", cards(5)); err != nil {
		t.Fatal(err)
	}
	if err := Merge(path, "rws", cards(2)); err != nil {
		t.Fatal(err)
	}
	doc, _ := Read(path)
	if got := len(doc.DeckStyles["rws-1909"].Cards); got != 2 {
		t.Errorf("rebuilt deck card count = %d, want 2", got)
	}
}

func TestMerge_MalformedExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prototypes.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Merge(path, "rws", cards(1)); err != nil {
		t.Fatalf("malformed existing file should start empty, got %v", err)
	}
	doc, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := doc.DeckStyles["rws-1909"]; !ok {
		t.Error("rws entry missing")
	}
}

func TestRead_Missing(t *testing.T) {
	doc, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.DeckStyles) != 0 {
		t.Errorf("missing file should read as empty document")
	}
}

func keysOf(doc *Document) []string {
	var keys []string
	for k := range doc.DeckStyles {
		keys = append(keys, k)
	}
	return keys
}
