// Package export maintains the cross-deck prototype document consumed by the web
// app: a single JSON object keyed by canonical deck id, mapping card names to
// their embedding and observation count.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CardEntry is one card's prototype in the export document.
type CardEntry struct {
	Embedding []float32 `json:"embedding"`
	Count     int       `json:"count"`
}

// DeckEntry holds one deck's cards keyed by canonical card name.
type DeckEntry struct {
	Cards map[string]CardEntry `json:"cards"`
}

// Document is the full cross-deck export document.
type Document struct {
	DeckStyles map[string]DeckEntry `json:"deckStyles"`
}

// deckIDTable maps pipeline deck names to the deck ids the app uses.
var deckIDTable = map[string]string{
	"rws":       "rws-1909",
	"thoth":     "thoth",
	"marseille": "marseille",
}

// CanonicalDeckID returns the app-facing id for deckName. Decks absent from the
// table fall back to the raw name for compatibility; note that a renamed deck
// directory then silently produces a new export key rather than updating the old
// one.
func CanonicalDeckID(deckName string) string {
	if id, ok := deckIDTable[deckName]; ok {
		return id
	}
	return deckName
}

// Merge reads the export document at path (a missing or malformed file starts an
// empty document), sets deckName's entry under its canonical id, and writes the
// merged document back in full, preserving every other deck's entry. The write
// goes through a temp file and rename so a crashed writer never leaves a
// truncated document. Concurrent writers still race (last write wins); callers
// that need stronger guarantees must serialize externally.
func Merge(path, deckName string, cards map[string]CardEntry) error {
	doc := readDocument(path)
	if doc.DeckStyles == nil {
		doc.DeckStyles = make(map[string]DeckEntry)
	}
	doc.DeckStyles[CanonicalDeckID(deckName)] = DeckEntry{Cards: cards}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("create export temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close export temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace export file: %w", err)
	}
	return nil
}

// Read returns the export document at path. A missing file returns an empty
// document and no error.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{DeckStyles: map[string]DeckEntry{}}, nil
		}
		return nil, fmt.Errorf("read export: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}
	return &doc, nil
}

// readDocument is the merge-side read: missing and malformed files both start an
// empty document, so one corrupt export never blocks a rebuild.
func readDocument(path string) Document {
	var doc Document
	data, err := os.ReadFile(path)
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}
	}
	return doc
}
