package index

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/tarotvision/tarotvision/internal/deck"
	"github.com/tarotvision/tarotvision/internal/embedding"
	"github.com/tarotvision/tarotvision/internal/vector"
)

// Match is one ranked query result. Rank starts at 1 and follows the index's
// native descending inner-product order.
type Match struct {
	Rank     int     `json:"rank"`
	CardName string  `json:"card_name"`
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
}

// Query runs text queries against a previously built deck index.
type Query struct {
	embedder embedding.Embedder
	paths    deck.Paths
	logger   *zap.Logger
}

// NewQuery creates a query runner.
func NewQuery(embedder embedding.Embedder, paths deck.Paths, logger *zap.Logger) *Query {
	return &Query{embedder: embedder, paths: paths, logger: logger}
}

// Run embeds text and returns the top-k matches from deckName's index. When k
// exceeds the index size, all entries are returned. A result row outside the
// metadata bounds (possible only when index and metadata files are
// desynchronized) is reported as an unknown-index match rather than faulting.
func (q *Query) Run(ctx context.Context, deckName, text string, k int) ([]Match, error) {
	indexPath := q.paths.IndexPath(deckName)
	metadataPath := q.paths.MetadataPath(deckName)
	if !fileExists(indexPath) || !fileExists(metadataPath) {
		return nil, fmt.Errorf("index or metadata not found for deck %q (expected %s and %s)",
			deckName, indexPath, metadataPath)
	}

	idx, err := vector.LoadFlatIndex(indexPath)
	if err != nil {
		return nil, err
	}
	metadata, err := deck.LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}
	q.logger.Info("index loaded",
		zap.String("deck", deckName),
		zap.Int("vectors", idx.Size()))
	if idx.Size() != len(metadata) {
		q.logger.Warn("index and metadata are desynchronized",
			zap.Int("index_rows", idx.Size()),
			zap.Int("metadata_entries", len(metadata)))
	}

	queryVec, err := q.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	results, err := idx.Search(ctx, queryVec, k)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(results))
	for i, r := range results {
		m := Match{Rank: i + 1, Score: r.Score}
		if r.Row >= 0 && r.Row < len(metadata) {
			m.CardName = metadata[r.Row].CardName
			m.Filename = metadata[r.Row].Filename
		} else {
			m.CardName = fmt.Sprintf("unknown index %d", r.Row)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
