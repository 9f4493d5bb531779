package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/gaozhen0523/rag-milvus-enterprise/internal/embedder"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/retrieval"
)

// Retriever adapts a VectorStore plus an embedder into the
// retrieval.VectorSearcher contract: it embeds the query text and searches
// the store, under a bounded per-call timeout. Any failure here, embedding
// included, counts as a vector backend failure for degradation purposes.
type Retriever struct {
	store    VectorStore
	embedder embedder.Embedder
	timeout  time.Duration
}

// NewRetriever creates the query-side adapter. timeout <= 0 disables the
// per-call deadline.
func NewRetriever(store VectorStore, e embedder.Embedder, timeout time.Duration) *Retriever {
	return &Retriever{store: store, embedder: e, timeout: timeout}
}

// Search embeds query and returns the k nearest chunks as retrieval hits.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]retrieval.Hit, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.store.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	hits := make([]retrieval.Hit, len(results))
	for i, res := range results {
		score := res.Score
		hits[i] = retrieval.Hit{
			DocID:    res.DocID,
			ChunkID:  res.ChunkID,
			Text:     res.Text,
			Score:    &score,
			Metadata: res.Metadata,
		}
	}
	return hits, nil
}

// Ensure Retriever implements the retrieval contract.
var _ retrieval.VectorSearcher = (*Retriever)(nil)
