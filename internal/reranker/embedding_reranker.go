package reranker

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/gaozhen0523/rag-milvus-enterprise/internal/embedder"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/retrieval"
)

// EmbeddingReranker implements retrieval.Reranker on top of an embedding
// provider.
type EmbeddingReranker struct {
	embedder embedder.Embedder
	weights  Weights
}

// NewEmbeddingReranker creates a reranker using the given embedder. Zero
// weights are replaced with the defaults.
func NewEmbeddingReranker(e embedder.Embedder, w Weights) *EmbeddingReranker {
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	return &EmbeddingReranker{embedder: e, weights: w}
}

// Rerank re-scores the candidate window and returns it sorted descending by
// rerank score. The sort is stable, so candidates with equal scores keep
// their fused order. An empty candidate list returns immediately without any
// embedding call.
func (r *EmbeddingReranker) Rerank(ctx context.Context, query string, candidates []retrieval.FusedEntry) ([]retrieval.RerankedEntry, error) {
	if len(candidates) == 0 {
		return []retrieval.RerankedEntry{}, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	n := len(candidates)
	cosSims := make([]*float64, n)
	bm25Scores := make([]*float64, n)
	vecScores := make([]*float64, n)
	rrfScores := make([]*float64, n)

	for i, c := range candidates {
		cos := 0.0
		if text := candidateText(c); text != "" {
			// A failed candidate embedding contributes zero similarity
			// instead of aborting the rerank of the other candidates.
			if vec, err := r.embedder.Embed(ctx, text); err == nil {
				cos = cosineSimilarity(queryVec, vec)
			}
		}
		cosSims[i] = &cos

		bm25Scores[i] = c.ScoreBM25
		vecScores[i] = c.ScoreVector
		rrf := c.RRFScore
		rrfScores[i] = &rrf
	}

	cosNorm := minMaxNormalize(cosSims)
	bm25Norm := minMaxNormalize(bm25Scores)
	vecNorm := minMaxNormalize(vecScores)
	rrfNorm := minMaxNormalize(rrfScores)

	reranked := make([]retrieval.RerankedEntry, n)
	for i, c := range candidates {
		score := r.weights.Alpha*cosNorm[i] +
			r.weights.Beta*bm25Norm[i] +
			r.weights.Gamma*vecNorm[i] +
			r.weights.Delta*rrfNorm[i]
		cos := *cosSims[i]
		reranked[i] = retrieval.RerankedEntry{
			FusedEntry:       c,
			RerankScore:      &score,
			CosineSimilarity: &cos,
		}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return *reranked[i].RerankScore > *reranked[j].RerankScore
	})
	return reranked, nil
}

// candidateText resolves the passage text of a candidate: the direct field
// first, then the metadata fields the vector store may hide it under.
func candidateText(c retrieval.FusedEntry) string {
	if c.Text != "" {
		return c.Text
	}
	if c.Metadata == nil {
		return ""
	}
	if text := c.Metadata["text"]; text != "" {
		return text
	}
	return c.Metadata["content"]
}

// cosineSimilarity returns the cosine of two embedding vectors, 0.0 when
// either has zero norm or the dimensions disagree.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// minMaxNormalize scales a score series to [0, 1]. Nil scores normalize to
// 0.0. When every non-nil value is equal, the non-nil entries normalize to
// 0.5 so a uniform series does not collapse to zero and vanish from the
// weighted sum.
func minMaxNormalize(scores []*float64) []float64 {
	var (
		mn, mx float64
		seen   bool
	)
	for _, s := range scores {
		if s == nil {
			continue
		}
		if !seen || *s < mn {
			mn = *s
		}
		if !seen || *s > mx {
			mx = *s
		}
		seen = true
	}

	out := make([]float64, len(scores))
	if !seen {
		return out
	}
	if math.Abs(mx-mn) < 1e-9 {
		for i, s := range scores {
			if s != nil {
				out[i] = 0.5
			}
		}
		return out
	}
	for i, s := range scores {
		if s != nil {
			out[i] = (*s - mn) / (mx - mn)
		}
	}
	return out
}

// Ensure EmbeddingReranker implements the retrieval contract.
var _ retrieval.Reranker = (*EmbeddingReranker)(nil)
