package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

type stubSearcher struct {
	hits  []Hit
	err   error
	calls int
	lastK int
}

func (s *stubSearcher) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	s.calls++
	s.lastK = k
	return s.hits, s.err
}

type stubReranker struct {
	out   []RerankedEntry
	err   error
	calls int
}

func (s *stubReranker) Rerank(ctx context.Context, query string, candidates []FusedEntry) ([]RerankedEntry, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.out != nil {
		return s.out, nil
	}
	out := make([]RerankedEntry, len(candidates))
	for i, c := range candidates {
		out[i] = RerankedEntry{FusedEntry: c}
	}
	return out, nil
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func nHits(prefix string, n int) []Hit {
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{DocID: prefix, ChunkID: iptr(int64(i)), Text: "t", Score: fptr(1.0 - float64(i)*0.1)}
	}
	return hits
}

func TestHybridSearchLatencyStages(t *testing.T) {
	h := NewHybridRetriever(&stubSearcher{hits: nHits("v", 2)}, &stubSearcher{hits: nHits("l", 2)}, nil, nil, discard())

	out, err := h.Search(context.Background(), SearchParams{Query: "q", VectorK: 5, BM25K: 5, TopK: 5, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, stage := range []string{"vector", "bm25", "fusion", "total"} {
		if _, ok := out.LatencyMS[stage]; !ok {
			t.Errorf("latency_ms missing stage %q", stage)
		}
	}
	if _, ok := out.LatencyMS["rerank"]; ok {
		t.Error("rerank latency reported without rerank")
	}
}

func TestHybridSearchVectorFailureWrapped(t *testing.T) {
	vec := &stubSearcher{err: errors.New("connection refused")}
	h := NewHybridRetriever(vec, &stubSearcher{hits: nHits("l", 1)}, nil, nil, discard())

	_, err := h.Search(context.Background(), SearchParams{Query: "q", VectorK: 5, BM25K: 5})
	if !errors.Is(err, ErrVectorBackend) {
		t.Fatalf("error %v does not wrap ErrVectorBackend", err)
	}
}

func TestHybridSearchLexicalFailureNotWrapped(t *testing.T) {
	lex := &stubSearcher{err: errors.New("index closed")}
	h := NewHybridRetriever(&stubSearcher{hits: nHits("v", 1)}, lex, nil, nil, discard())

	_, err := h.Search(context.Background(), SearchParams{Query: "q", VectorK: 5, BM25K: 5})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrVectorBackend) {
		t.Error("lexical failure must not be tagged as a vector failure")
	}
}

func TestHybridSearchTopKWindow(t *testing.T) {
	h := NewHybridRetriever(&stubSearcher{hits: nHits("v", 8)}, &stubSearcher{}, nil, nil, discard())

	out, err := h.Search(context.Background(), SearchParams{Query: "q", VectorK: 8, BM25K: 5, TopK: 3, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Final) != 3 {
		t.Errorf("final window = %d entries, want 3", len(out.Final))
	}
	if out.Pagination.Total != 3 {
		t.Errorf("pagination total = %d, want 3", out.Pagination.Total)
	}
	if len(out.Fused) != 8 {
		t.Errorf("fused list truncated to %d, want all 8", len(out.Fused))
	}
}

func TestHybridSearchPaginationBeyondEnd(t *testing.T) {
	h := NewHybridRetriever(&stubSearcher{hits: nHits("v", 5)}, &stubSearcher{}, nil, nil, discard())

	out, err := h.Search(context.Background(), SearchParams{Query: "q", VectorK: 5, BM25K: 5, TopK: 5, Page: 2, PageSize: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Final) != 0 {
		t.Errorf("page beyond end returned %d entries, want 0", len(out.Final))
	}
	if out.Pagination.Page != 2 || out.Pagination.Total != 5 {
		t.Errorf("pagination = %+v", out.Pagination)
	}
}

func TestHybridSearchPaginationSlices(t *testing.T) {
	h := NewHybridRetriever(&stubSearcher{hits: nHits("v", 7)}, &stubSearcher{}, nil, nil, discard())

	out, err := h.Search(context.Background(), SearchParams{Query: "q", VectorK: 7, BM25K: 5, TopK: 7, Page: 2, PageSize: 3})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Final) != 3 {
		t.Fatalf("page 2 returned %d entries, want 3", len(out.Final))
	}
	// Page 2 with size 3 starts at the 4th fused entry.
	if out.Final[0].ChunkID == nil || *out.Final[0].ChunkID != 3 {
		t.Errorf("page 2 starts at chunk %v, want 3", out.Final[0].ChunkID)
	}
}

func TestHybridSearchRerankFailureKeepsFusedOrder(t *testing.T) {
	rr := &stubReranker{err: errors.New("embedding provider down")}
	h := NewHybridRetriever(&stubSearcher{hits: nHits("v", 3)}, &stubSearcher{}, nil, rr, discard())

	out, err := h.Search(context.Background(), SearchParams{Query: "q", VectorK: 3, BM25K: 5, TopK: 3, Rerank: true, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("rerank failure must not fail the search: %v", err)
	}
	if rr.calls != 1 {
		t.Errorf("reranker called %d times, want 1", rr.calls)
	}
	if len(out.Final) != 3 {
		t.Fatalf("final = %d entries, want 3", len(out.Final))
	}
	for i, e := range out.Final {
		if *e.ChunkID != int64(i) {
			t.Errorf("entry %d is chunk %d, fused order not preserved", i, *e.ChunkID)
		}
		if e.RerankScore != nil {
			t.Errorf("entry %d carries a rerank score after failed rerank", i)
		}
	}
}

func TestHybridSearchRerankSkippedForEmptyWindow(t *testing.T) {
	rr := &stubReranker{}
	h := NewHybridRetriever(&stubSearcher{}, &stubSearcher{}, nil, rr, discard())

	if _, err := h.Search(context.Background(), SearchParams{Query: "q", VectorK: 5, BM25K: 5, Rerank: true, Page: 1, PageSize: 10}); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if rr.calls != 0 {
		t.Errorf("reranker called %d times for empty window, want 0", rr.calls)
	}
}

func TestHybridSearchDebugPayload(t *testing.T) {
	h := NewHybridRetriever(&stubSearcher{hits: nHits("v", 2)}, &stubSearcher{hits: nHits("l", 1)}, nil, &stubReranker{}, discard())

	out, err := h.Search(context.Background(), SearchParams{Query: "q", VectorK: 2, BM25K: 1, TopK: 3, Rerank: true, Debug: true, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if out.Debug == nil {
		t.Fatal("debug payload missing")
	}
	if len(out.Debug.VectorHits) != 2 || len(out.Debug.BM25Hits) != 1 {
		t.Errorf("debug raw hits = %d/%d, want 2/1", len(out.Debug.VectorHits), len(out.Debug.BM25Hits))
	}
	if !out.Debug.RerankedRun {
		t.Error("debug rerank_applied = false, want true")
	}

	out, err = h.Search(context.Background(), SearchParams{Query: "q", VectorK: 2, BM25K: 1, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if out.Debug != nil {
		t.Error("debug payload present without debug flag")
	}
}

func TestHybridSearchPassesKs(t *testing.T) {
	vec := &stubSearcher{hits: nHits("v", 1)}
	lex := &stubSearcher{hits: nHits("l", 1)}
	h := NewHybridRetriever(vec, lex, nil, nil, discard())

	if _, err := h.Search(context.Background(), SearchParams{Query: "q", VectorK: 9, BM25K: 4, Page: 1, PageSize: 10}); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if vec.lastK != 9 {
		t.Errorf("vector k = %d, want 9", vec.lastK)
	}
	if lex.lastK != 4 {
		t.Errorf("bm25 k = %d, want 4", lex.lastK)
	}
}
