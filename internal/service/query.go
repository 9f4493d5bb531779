// Package service implements the query and ingest application logic that sits
// between the HTTP transport and the retrieval core.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gaozhen0523/rag-milvus-enterprise/internal/cache"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/querylog"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/retrieval"
)

// DegradedModeBM25Only marks responses served from the lexical index alone.
const DegradedModeBM25Only = "bm25_only"

// HybridSearcher runs the full hybrid pipeline. Implemented by
// retrieval.HybridRetriever.
type HybridSearcher interface {
	Search(ctx context.Context, params retrieval.SearchParams) (*retrieval.Output, error)
}

// VectorHealthChecker reports vector backend availability.
type VectorHealthChecker interface {
	Health(ctx context.Context) error
}

// QueryRequest carries the validated parameters of one query call.
type QueryRequest struct {
	TraceID  string
	Query    string
	TopK     int
	Hybrid   bool
	VectorK  int
	BM25K    int
	Rerank   bool
	Page     int
	PageSize int
	Debug    bool
}

// QueryResponse is the wire shape returned to callers. Pointer fields are
// omitted in modes that do not produce them, so vector-only responses stay
// compact while hybrid responses carry the full parameter echo.
type QueryResponse struct {
	TraceID        string                    `json:"trace_id"`
	CacheHit       bool                      `json:"cache_hit"`
	Query          string                    `json:"query"`
	Hybrid         bool                      `json:"hybrid"`
	TopK           int                       `json:"top_k"`
	VectorK        *int                      `json:"vector_k,omitempty"`
	BM25K          *int                      `json:"bm25_k,omitempty"`
	Rerank         *bool                     `json:"rerank,omitempty"`
	LatencyMS      map[string]float64        `json:"latency_ms"`
	Pagination     *retrieval.Pagination     `json:"pagination,omitempty"`
	Results        []retrieval.RerankedEntry `json:"results"`
	Debug          *retrieval.DebugInfo      `json:"debug,omitempty"`
	Degraded       bool                      `json:"degraded"`
	DegradedMode   *string                   `json:"degraded_mode"`
	DegradedReason *string                   `json:"degraded_reason"`
	VectorOK       bool                      `json:"vector_ok"`
	CacheOK        bool                      `json:"cache_ok"`
}

// QueryService orchestrates cache lookup, retrieval, degradation, and
// query logging for the /query surface.
type QueryService struct {
	hybrid   HybridSearcher
	vector   retrieval.VectorSearcher
	lexical  retrieval.LexicalSearcher
	cache    *cache.QueryCache
	health   VectorHealthChecker
	qlog     *querylog.Logger
	logger   *slog.Logger
	cacheTTL time.Duration
}

// NewQueryService wires the query service. qlog may be nil to disable
// query logging; cacheTTL <= 0 falls back to the cache default.
func NewQueryService(
	hybrid HybridSearcher,
	vector retrieval.VectorSearcher,
	lexical retrieval.LexicalSearcher,
	qc *cache.QueryCache,
	health VectorHealthChecker,
	qlog *querylog.Logger,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *QueryService {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = cache.DefaultResponseTTL
	}
	return &QueryService{
		hybrid:   hybrid,
		vector:   vector,
		lexical:  lexical,
		cache:    qc,
		health:   health,
		qlog:     qlog,
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// Query serves one retrieval request. Vector backend failures are absorbed
// into a bm25-only degraded response; only a failure of both backends is
// returned as an error. Debug requests bypass the cache in both directions,
// and degraded or empty responses are never written to it.
func (s *QueryService) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	start := time.Now()

	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.New().String()
	}
	cacheOK := s.cache != nil && s.cache.Available()

	var cacheKey string
	if !req.Debug && s.cache != nil {
		cacheKey = cache.MakeKey(req.Query, req.Hybrid, req.TopK, req.VectorK, req.BM25K, req.Page, req.PageSize, req.Rerank)
		if data, ok := s.cache.Get(cacheKey); ok {
			var resp QueryResponse
			if err := json.Unmarshal(data, &resp); err == nil {
				resp.TraceID = traceID
				resp.CacheHit = true
				resp.CacheOK = cacheOK
				s.logQuery(ctx, traceID, req, &resp, 0)
				return &resp, nil
			}
			s.logger.Warn("cache entry unmarshal failed, treating as miss", "key", cacheKey)
		}
	}

	var resp *QueryResponse
	var err error
	if req.Hybrid {
		resp, err = s.queryHybrid(ctx, req, start)
	} else {
		resp, err = s.queryVectorOnly(ctx, req, start)
	}
	if err != nil {
		return nil, err
	}

	resp.TraceID = traceID
	resp.VectorOK = !resp.Degraded
	resp.CacheOK = cacheOK

	if !req.Debug && cacheKey != "" && len(resp.Results) > 0 && !resp.Degraded {
		if data, err := json.Marshal(resp); err == nil {
			s.cache.Set(cacheKey, data, s.cacheTTL)
		}
	}

	total := 0.0
	if resp.LatencyMS != nil {
		total = resp.LatencyMS["total"]
	}
	s.logQuery(ctx, traceID, req, resp, total)
	return resp, nil
}

func (s *QueryService) queryHybrid(ctx context.Context, req QueryRequest, start time.Time) (*QueryResponse, error) {
	out, err := s.hybrid.Search(ctx, retrieval.SearchParams{
		Query:    req.Query,
		VectorK:  req.VectorK,
		BM25K:    req.BM25K,
		TopK:     req.TopK,
		Rerank:   req.Rerank,
		Page:     req.Page,
		PageSize: req.PageSize,
		Debug:    req.Debug,
	})
	if err != nil {
		if errors.Is(err, retrieval.ErrVectorBackend) {
			return s.queryBM25Only(ctx, req, start, fmt.Sprintf("hybrid_search_failed: %v", err))
		}
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	resp := &QueryResponse{
		Query:      req.Query,
		Hybrid:     true,
		TopK:       req.TopK,
		VectorK:    &req.VectorK,
		BM25K:      &req.BM25K,
		Rerank:     &req.Rerank,
		LatencyMS:  out.LatencyMS,
		Pagination: &out.Pagination,
		Results:    out.Final,
	}
	if req.Debug {
		resp.Debug = out.Debug
	}
	return resp, nil
}

func (s *QueryService) queryVectorOnly(ctx context.Context, req QueryRequest, start time.Time) (*QueryResponse, error) {
	t0 := time.Now()
	hits, err := s.vector.Search(ctx, req.Query, req.TopK)
	if err != nil {
		return s.queryBM25Only(ctx, req, start, fmt.Sprintf("vector_search_failed: %v", err))
	}
	vectorMS := elapsedMS(t0)

	results := make([]retrieval.RerankedEntry, 0, len(hits))
	for _, h := range hits {
		results = append(results, retrieval.RerankedEntry{
			FusedEntry: retrieval.FusedEntry{
				DocID:       h.DocID,
				ChunkID:     h.ChunkID,
				Text:        h.Text,
				ScoreVector: h.Score,
				Sources:     []string{retrieval.SourceVector},
				Metadata:    h.Metadata,
			},
		})
	}

	return &QueryResponse{
		Query:  req.Query,
		Hybrid: false,
		TopK:   req.TopK,
		LatencyMS: map[string]float64{
			"vector": vectorMS,
			"total":  elapsedMS(start),
		},
		Results: results,
	}, nil
}

// queryBM25Only is the degradation path: the lexical index alone serves the
// request. A lexical failure here means both backends are down, which is
// the only case surfaced to the caller as an error.
func (s *QueryService) queryBM25Only(ctx context.Context, req QueryRequest, start time.Time, reason string) (*QueryResponse, error) {
	s.logger.Warn("vector backend unavailable, serving bm25-only", "reason", reason)

	t0 := time.Now()
	hits, err := s.lexical.Search(ctx, req.Query, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("both retrieval backends failed: %s; bm25: %w", reason, err)
	}
	bm25MS := elapsedMS(t0)

	results := make([]retrieval.RerankedEntry, 0, len(hits))
	for _, h := range hits {
		results = append(results, retrieval.RerankedEntry{
			FusedEntry: retrieval.FusedEntry{
				DocID:     h.DocID,
				ChunkID:   h.ChunkID,
				Text:      h.Text,
				ScoreBM25: h.Score,
				Sources:   []string{retrieval.SourceBM25},
				Metadata:  h.Metadata,
			},
		})
	}

	mode := DegradedModeBM25Only
	resp := &QueryResponse{
		Query:  req.Query,
		Hybrid: req.Hybrid,
		TopK:   req.TopK,
		LatencyMS: map[string]float64{
			"vector": 0.0,
			"bm25":   bm25MS,
			"total":  elapsedMS(start),
		},
		Results:        results,
		Degraded:       true,
		DegradedMode:   &mode,
		DegradedReason: &reason,
	}
	if req.Hybrid {
		resp.VectorK = &req.VectorK
		resp.BM25K = &req.TopK
		rerank := false
		resp.Rerank = &rerank
		pageSize := len(results)
		if pageSize == 0 {
			pageSize = req.PageSize
		}
		resp.Pagination = &retrieval.Pagination{Page: 1, PageSize: pageSize, Total: len(results)}
	}
	return resp, nil
}

// HealthStatus is the /health payload.
type HealthStatus struct {
	Status   string `json:"status"`
	VectorOK bool   `json:"vector_ok"`
	CacheOK  bool   `json:"cache_ok"`
}

// Health probes the vector backend and reports cache availability. The
// service itself is healthy as long as it can answer; backend state is
// carried in the flags.
func (s *QueryService) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{Status: "ok", CacheOK: s.cache != nil && s.cache.Available()}
	if s.health != nil {
		if err := s.health.Health(ctx); err != nil {
			s.logger.Warn("vector backend health check failed", "error", err)
			status.Status = "degraded"
		} else {
			status.VectorOK = true
		}
	}
	return status
}

func (s *QueryService) logQuery(ctx context.Context, traceID string, req QueryRequest, resp *QueryResponse, latencyMS float64) {
	if s.qlog == nil {
		return
	}
	rec := querylog.Record{
		TraceID:     traceID,
		Query:       req.Query,
		Hybrid:      req.Hybrid,
		TopK:        req.TopK,
		LatencyMS:   latencyMS,
		ResultCount: len(resp.Results),
		CacheHit:    resp.CacheHit,
		Degraded:    resp.Degraded,
		VectorOK:    resp.VectorOK,
		CacheOK:     resp.CacheOK,
		Timestamp:   time.Now().UTC(),
	}
	if resp.DegradedMode != nil {
		rec.DegradedMode = *resp.DegradedMode
	}
	if resp.DegradedReason != nil {
		rec.DegradedReason = *resp.DegradedReason
	}
	if !resp.CacheHit {
		rec.Payload = resp
	}
	s.qlog.Log(ctx, rec)
}

func elapsedMS(since time.Time) float64 {
	return float64(time.Since(since).Microseconds()) / 1000.0
}
