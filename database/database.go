package database

import (
	"context"

	"github.com/baoteam/rag-bot/types"
)

// VectorIndex is the nearest-neighbor store the retrieval stage searches and
// the ingest service writes to.
type VectorIndex interface {
	// AddDocuments indexes docs with their embedding vectors.
	AddDocuments(ctx context.Context, docs []types.Document, vectors [][]float32) error

	// Search returns up to k documents nearest to vector, most similar first,
	// optionally restricted by a metadata filter (key -> exact value).
	Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]types.ScoredDocument, error)

	// DeleteByMetadata removes every document whose metadata key matches one of
	// the given values.
	DeleteByMetadata(ctx context.Context, key string, values []string) error
}
