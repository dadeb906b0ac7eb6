// Package index implements the build and query pipelines over a deck's flat
// vector index and metadata artifacts.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tarotvision/tarotvision/internal/artifacts"
	"github.com/tarotvision/tarotvision/internal/deck"
	"github.com/tarotvision/tarotvision/internal/embedding"
	"github.com/tarotvision/tarotvision/internal/export"
	"github.com/tarotvision/tarotvision/internal/vector"
	"github.com/tarotvision/tarotvision/pkg/utils"
)

// Builder builds a deck's vector index from its source images.
type Builder struct {
	embedder embedding.Embedder
	paths    deck.Paths
	logger   *zap.Logger
}

// NewBuilder creates a builder. The embedder carries any adapter resolution; the
// builder itself is adapter-agnostic.
func NewBuilder(embedder embedding.Embedder, paths deck.Paths, logger *zap.Logger) *Builder {
	return &Builder{embedder: embedder, paths: paths, logger: logger}
}

// BuildResult reports what a successful build produced.
type BuildResult struct {
	Index        *vector.FlatIndex
	Metadata     []deck.CardMetadata
	IndexPath    string
	MetadataPath string
	Skipped      int
}

// Build embeds every image in deckName's source directory, constructs the flat
// index in one batch, and persists the index and metadata artifacts. The index is
// written first and metadata only after that write succeeds, so a metadata file
// on disk implies a matching index. Individual undecodable images are skipped
// with a warning; a missing directory or zero successful embeddings aborts with
// no artifacts written. When exportPath is non-empty the deck's entry is merged
// into the cross-deck export document.
func (b *Builder) Build(ctx context.Context, deckName, exportPath string) (*BuildResult, error) {
	imagesDir := b.paths.ImagesDir(deckName)
	if _, err := os.Stat(imagesDir); err != nil {
		return nil, fmt.Errorf("image directory %s not found", imagesDir)
	}
	names, err := deck.ListImages(imagesDir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no images found in %s", imagesDir)
	}
	b.logger.Info("building index",
		zap.String("deck", deckName),
		zap.Int("images", len(names)))

	var vectors [][]float32
	var metadata []deck.CardMetadata
	skipped := 0
	for _, name := range names {
		vec, err := b.embedder.EmbedImage(ctx, filepath.Join(imagesDir, name))
		if err != nil {
			b.logger.Warn("skipping image", zap.String("file", name), zap.Error(err))
			skipped++
			continue
		}
		// Embeddings are already unit-normalized; renormalizing is idempotent and
		// guards the index's inner-product-equals-cosine assumption.
		utils.NormalizeL2(vec)
		metadata = append(metadata, deck.CardMetadata{
			ID:       len(metadata),
			Filename: name,
			CardName: deck.DeriveCardName(name),
		})
		vectors = append(vectors, vec)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embeddings generated from %s", imagesDir)
	}

	// One batch insert keeps row order identical to metadata id order.
	idx, err := vector.NewFlatIndex(len(vectors[0]))
	if err != nil {
		return nil, err
	}
	if err := idx.Add(ctx, vectors); err != nil {
		return nil, err
	}

	indexPath := b.paths.IndexPath(deckName)
	metadataPath := b.paths.MetadataPath(deckName)
	if err := idx.Save(indexPath); err != nil {
		return nil, err
	}
	if err := deck.SaveMetadata(metadataPath, metadata); err != nil {
		return nil, err
	}
	sizeBytes, _ := artifacts.DiskUsageBytes(indexPath, metadataPath)
	b.logger.Info("index built",
		zap.String("deck", deckName),
		zap.Int("vectors", idx.Size()),
		zap.Int("skipped", skipped),
		zap.Int64("artifact_bytes", sizeBytes),
		zap.String("index_path", indexPath),
		zap.String("metadata_path", metadataPath))

	if exportPath != "" {
		if err := b.exportDeck(exportPath, deckName, idx, metadata); err != nil {
			return nil, err
		}
	}
	return &BuildResult{
		Index:        idx,
		Metadata:     metadata,
		IndexPath:    indexPath,
		MetadataPath: metadataPath,
		Skipped:      skipped,
	}, nil
}

func (b *Builder) exportDeck(exportPath, deckName string, idx *vector.FlatIndex, metadata []deck.CardMetadata) error {
	cards := make(map[string]export.CardEntry, len(metadata))
	for _, m := range metadata {
		cards[m.CardName] = export.CardEntry{
			Embedding: idx.Vector(m.ID),
			Count:     1, // single prototype per card
		}
	}
	if err := export.Merge(exportPath, deckName, cards); err != nil {
		return err
	}
	b.logger.Info("export updated",
		zap.String("path", exportPath),
		zap.String("deck_id", export.CanonicalDeckID(deckName)),
		zap.Int("cards", len(cards)))
	return nil
}
