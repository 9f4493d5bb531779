// Package reranker provides embedding-based re-ranking for fused retrieval
// results.
//
// The reranker embeds the query and each candidate passage, computes cosine
// similarity, and combines it with the BM25, vector and RRF scores carried by
// the fused entry. The four score series live on very different scales, so
// each is min-max normalized independently before the weighted sum.
//
// # Trade-offs
//
//   - Latency: one embedding call per candidate plus one for the query
//   - Quality: better precision when the fused top-k carries near-equal
//     RRF scores
//
// Enable reranking per request (rerank=true) for accuracy-sensitive queries;
// leave it off for latency-sensitive traffic.
package reranker

// Weights control the linear combination of the normalized score series.
// Cosine similarity dominates; the other signals break ties and correct for
// cases where embeddings are a weak signal, e.g. short or noisy text.
type Weights struct {
	Alpha float64 // cosine similarity
	Beta  float64 // BM25 score
	Gamma float64 // vector score
	Delta float64 // RRF score
}

// DefaultWeights returns the standard weighting (α=1.0, β=0.2, γ=0.2, δ=0.3).
func DefaultWeights() Weights {
	return Weights{Alpha: 1.0, Beta: 0.2, Gamma: 0.2, Delta: 0.3}
}
