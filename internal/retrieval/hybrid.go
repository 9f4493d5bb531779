package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrVectorBackend marks failures of the dense retrieval backend, including
// timeouts and an open circuit breaker. The service layer matches it with
// errors.Is to switch the request into lexical-only mode.
var ErrVectorBackend = errors.New("vector backend unavailable")

// VectorSearcher retrieves hits by dense similarity for a text query.
// Implementations own the query embedding step.
type VectorSearcher interface {
	Search(ctx context.Context, query string, k int) ([]Hit, error)
}

// LexicalSearcher retrieves hits by sparse lexical (BM25) scoring.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, k int) ([]Hit, error)
}

// Reranker re-scores a fused candidate window. Implementations must return
// the entries sorted descending by rerank score and must not call the
// embedding provider for an empty candidate list.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []FusedEntry) ([]RerankedEntry, error)
}

// SearchParams are the per-request knobs of a hybrid search.
type SearchParams struct {
	Query    string
	VectorK  int
	BM25K    int
	TopK     int // <= 0 keeps the whole fused list as candidate window
	Rerank   bool
	Page     int
	PageSize int
	Debug    bool
}

// Pagination describes the slice of the candidate window that was returned.
// Total is the candidate window size, not the page length.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// DebugInfo carries the raw intermediate results of every stage.
type DebugInfo struct {
	VectorHits  []Hit           `json:"vector_results"`
	BM25Hits    []Hit           `json:"bm25_results"`
	Fused       []FusedEntry    `json:"fused_results"`
	Reranked    []RerankedEntry `json:"reranked_results,omitempty"`
	CandidateN  int             `json:"candidate_count"`
	RerankedRun bool            `json:"rerank_applied"`
}

// Output is the result of one hybrid search, before the service layer wraps
// it into an HTTP response.
type Output struct {
	Query      string
	Final      []RerankedEntry
	Fused      []FusedEntry
	LatencyMS  map[string]float64
	Pagination Pagination
	Debug      *DebugInfo
}

// HybridRetriever orchestrates the dual-source retrieval pipeline: vector
// search and BM25 search run concurrently, results are fused with RRF, the
// top-K window is optionally reranked, then paginated. Every stage is timed
// independently for the latency report.
//
// HybridRetriever holds no mutable state across requests; one instance is
// shared by all concurrent requests.
type HybridRetriever struct {
	vector   VectorSearcher
	lexical  LexicalSearcher
	fuser    *RRFFuser
	reranker Reranker
	logger   *slog.Logger
}

// NewHybridRetriever wires the pipeline. reranker may be nil, in which case
// rerank requests pass the candidate window through unchanged.
func NewHybridRetriever(vector VectorSearcher, lexical LexicalSearcher, fuser *RRFFuser, reranker Reranker, logger *slog.Logger) *HybridRetriever {
	if fuser == nil {
		fuser = NewRRFFuser(DefaultRRFK)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		vector:   vector,
		lexical:  lexical,
		fuser:    fuser,
		reranker: reranker,
		logger:   logger,
	}
}

// Search runs the full pipeline for one query. A vector backend failure is
// returned wrapped in ErrVectorBackend; the caller owns the degradation
// policy. A lexical failure is returned as-is and is fatal for the hybrid
// path.
func (h *HybridRetriever) Search(ctx context.Context, params SearchParams) (*Output, error) {
	start := time.Now()
	latency := make(map[string]float64, 5)

	var (
		vectorHits []Hit
		bm25Hits   []Hit
		vectorMS   float64
		bm25MS     float64
	)

	// The two retrievals are independent; run them concurrently and time
	// each inside its own goroutine. Each goroutine writes only its own
	// variables; the latency map is filled after Wait.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t0 := time.Now()
		hits, err := h.vector.Search(gctx, params.Query, params.VectorK)
		vectorMS = millis(time.Since(t0))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrVectorBackend, err)
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		t0 := time.Now()
		hits, err := h.lexical.Search(gctx, params.Query, params.BM25K)
		bm25MS = millis(time.Since(t0))
		if err != nil {
			return fmt.Errorf("bm25 search: %w", err)
		}
		bm25Hits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	latency["vector"] = vectorMS
	latency["bm25"] = bm25MS

	t0 := time.Now()
	fused := h.fuser.Fuse(vectorHits, bm25Hits)
	latency["fusion"] = millis(time.Since(t0))

	// Candidate window for the optional rerank pass.
	window := fused
	if params.TopK > 0 && params.TopK < len(fused) {
		window = fused[:params.TopK]
	}

	var (
		final       []RerankedEntry
		reranked    []RerankedEntry
		rerankedRun bool
	)
	if params.Rerank && h.reranker != nil && len(window) > 0 {
		t0 = time.Now()
		out, err := h.reranker.Rerank(ctx, params.Query, window)
		latency["rerank"] = millis(time.Since(t0))
		if err != nil {
			// A rerank failure never fails the request; keep the fused order.
			h.logger.Warn("rerank failed, keeping fused order", "error", err)
		} else {
			reranked = out
			rerankedRun = true
		}
	}
	if rerankedRun {
		final = reranked
	} else {
		final = make([]RerankedEntry, len(window))
		for i, entry := range window {
			final[i] = RerankedEntry{FusedEntry: entry}
		}
	}

	page, pageSize := params.Page, params.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	paged := paginate(final, page, pageSize)

	latency["total"] = millis(time.Since(start))

	out := &Output{
		Query:     params.Query,
		Final:     paged,
		Fused:     fused,
		LatencyMS: latency,
		Pagination: Pagination{
			Page:     page,
			PageSize: pageSize,
			Total:    len(final),
		},
	}
	if params.Debug {
		out.Debug = &DebugInfo{
			VectorHits:  vectorHits,
			BM25Hits:    bm25Hits,
			Fused:       fused,
			Reranked:    reranked,
			CandidateN:  len(window),
			RerankedRun: rerankedRun,
		}
	}
	return out, nil
}

// paginate slices one page out of entries. A start beyond the list length
// yields an empty page, not an error.
func paginate(entries []RerankedEntry, page, pageSize int) []RerankedEntry {
	start := (page - 1) * pageSize
	if start >= len(entries) {
		return []RerankedEntry{}
	}
	end := start + pageSize
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end]
}

// millis converts a duration to milliseconds rounded to two decimals, the
// precision the latency report exposes.
func millis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10.0) / 100.0
}
