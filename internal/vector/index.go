// Package vector provides an append-only flat vector index with exact
// inner-product search.
package vector

import "context"

// Index defines vector storage and top-k similarity search. Rows are addressed by
// their insertion position; the pipeline never deletes or updates rows, a deck's
// index is always rebuilt from scratch.
type Index interface {
	Add(ctx context.Context, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	Save(path string) error
	Size() int
	Dimensions() int
}

// Result is a single search hit. Row is the vector's insertion position, which is
// also its metadata id.
type Result struct {
	Row   int
	Score float64 // Inner product; equals cosine similarity for normalized vectors.
}
