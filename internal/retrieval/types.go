// Package retrieval implements the hybrid retrieval pipeline: dual-source
// search, Reciprocal Rank Fusion, optional reranking, and pagination.
package retrieval

// Hit is one raw result from a single retrieval backend, before fusion.
// Score carries the backend's native scale (cosine similarity for the vector
// store, BM25 weight for the lexical index); nil means the backend did not
// report a usable score.
type Hit struct {
	DocID    string            `json:"doc_id,omitempty"`
	ChunkID  *int64            `json:"chunk_id"`
	Text     string            `json:"text,omitempty"`
	Score    *float64          `json:"score"`
	Metadata map[string]string `json:"meta,omitempty"`
}

// FusedEntry is one entry of the fused ranking produced by RRF.
// ScoreVector/ScoreBM25 stay nil when the corresponding source did not
// contribute a numeric score.
type FusedEntry struct {
	DocID       string   `json:"doc_id,omitempty"`
	ChunkID     *int64   `json:"chunk_id"`
	Text        string   `json:"text,omitempty"`
	ScoreVector *float64 `json:"score_vector"`
	ScoreBM25   *float64 `json:"score_bm25"`
	RRFScore    float64  `json:"rrf_score"`
	Sources     []string `json:"sources"`

	// Metadata of the hit that seeded this entry, kept for debug output and
	// as a text fallback during reranking.
	Metadata map[string]string `json:"meta,omitempty"`
}

// RerankedEntry is a FusedEntry with reranking scores attached. Both scores
// stay nil when no reranking pass ran, so a plain fused entry and a reranked
// one share one result shape. Instances live for the duration of a single
// request and are never persisted.
type RerankedEntry struct {
	FusedEntry
	RerankScore      *float64 `json:"rerank_score,omitempty"`
	CosineSimilarity *float64 `json:"score_rerank_cos,omitempty"`
}

// Source names recorded in FusedEntry.Sources.
const (
	SourceVector = "vector"
	SourceBM25   = "bm25"
)
