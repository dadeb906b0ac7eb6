// Package deck defines the on-disk layout and metadata for a deck of card images.
// A deck is a named collection of tarot card images sharing one artistic style; it
// is the unit of partitioning for every artifact in the pipeline.
package deck

import "path/filepath"

// Artifact filenames inside a deck's index directory.
const (
	IndexFilename    = "index.bin"
	MetadataFilename = "metadata.json"
)

// Paths resolves the deck-parameterized artifact locations from the configured roots.
type Paths struct {
	ImagesRoot   string
	IndicesRoot  string
	AdaptersRoot string
}

// ImagesDir returns the source image directory for deckName.
func (p Paths) ImagesDir(deckName string) string {
	return filepath.Join(p.ImagesRoot, deckName)
}

// IndexDir returns the output directory holding the index and metadata artifacts.
func (p Paths) IndexDir(deckName string) string {
	return filepath.Join(p.IndicesRoot, deckName)
}

// IndexPath returns the binary index artifact path for deckName.
func (p Paths) IndexPath(deckName string) string {
	return filepath.Join(p.IndexDir(deckName), IndexFilename)
}

// MetadataPath returns the metadata artifact path for deckName.
func (p Paths) MetadataPath(deckName string) string {
	return filepath.Join(p.IndexDir(deckName), MetadataFilename)
}

// AdapterDir returns the conventional adapter directory for deckName.
func (p Paths) AdapterDir(deckName string) string {
	return filepath.Join(p.AdaptersRoot, deckName)
}
