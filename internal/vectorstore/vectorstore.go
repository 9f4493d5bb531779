// Package vectorstore provides the interface and Qdrant implementation for
// dense vector similarity search over document chunks.
package vectorstore

import (
	"context"
)

// Chunk is a document passage with its embedding, ready for upsert.
type Chunk struct {
	ID       string // point id (UUID)
	DocID    string
	ChunkID  int64
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// SearchResult is one nearest-neighbor hit from the vector store.
type SearchResult struct {
	DocID    string
	ChunkID  *int64
	Text     string
	Score    float64
	Metadata map[string]string
}

// VectorStore defines the vector index operations the service consumes.
// Implementations must surface backend failures as errors so the caller can
// trigger degradation.
type VectorStore interface {
	// EnsureCollection creates the chunk collection if it does not exist.
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert inserts or updates chunks.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Search returns the k nearest chunks for the query vector, ordered by
	// descending similarity.
	Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error)

	// Health reports backend connectivity.
	Health(ctx context.Context) error

	// Close releases the client connection.
	Close() error
}
