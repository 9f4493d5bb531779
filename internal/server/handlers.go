package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/gaozhen0523/rag-milvus-enterprise/internal/service"
)

// Query parameter bounds.
const (
	minTopK     = 1
	maxTopK     = 20
	minPageSize = 1
	maxPageSize = 50
	maxPage     = 1_000_000

	defaultTopK     = 5
	defaultVectorK  = 5
	defaultBM25K    = 5
	defaultPageSize = 10
)

type handlers struct {
	queries *service.QueryService
	ingest  *service.IngestService
	logger  *slog.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queries.Health(r.Context()))
}

func (h *handlers) query(w http.ResponseWriter, r *http.Request) {
	req, err := parseQueryRequest(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp, err := h.queries.Query(r.Context(), req)
	if err != nil {
		h.logger.Error("query failed", "error", err, "trace_id", req.TraceID)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req service.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	dryRun, err := parseBool(r, "dry_run", true)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	req.DryRun = dryRun

	ack, err := h.ingest.Ingest(r.Context(), req)
	if err != nil {
		var fe *service.FetchError
		switch {
		case errors.As(err, &fe):
			writeError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, service.ErrInvalidRequest):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.Error("ingest failed", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func parseQueryRequest(r *http.Request) (service.QueryRequest, error) {
	q := r.URL.Query().Get("q")
	if q == "" {
		return service.QueryRequest{}, fmt.Errorf("missing required parameter 'q'")
	}

	topK, err := parseBoundedInt(r, "top_k", defaultTopK, minTopK, maxTopK)
	if err != nil {
		return service.QueryRequest{}, err
	}
	vectorK, err := parseBoundedInt(r, "vector_k", defaultVectorK, 1, maxTopK)
	if err != nil {
		return service.QueryRequest{}, err
	}
	bm25K, err := parseBoundedInt(r, "bm25_k", defaultBM25K, 1, maxTopK)
	if err != nil {
		return service.QueryRequest{}, err
	}
	page, err := parseBoundedInt(r, "page", 1, 1, maxPage)
	if err != nil {
		return service.QueryRequest{}, err
	}
	pageSize, err := parseBoundedInt(r, "page_size", defaultPageSize, minPageSize, maxPageSize)
	if err != nil {
		return service.QueryRequest{}, err
	}
	hybrid, err := parseBool(r, "hybrid", false)
	if err != nil {
		return service.QueryRequest{}, err
	}
	rerank, err := parseBool(r, "rerank", false)
	if err != nil {
		return service.QueryRequest{}, err
	}
	debug, err := parseBool(r, "debug", false)
	if err != nil {
		return service.QueryRequest{}, err
	}

	return service.QueryRequest{
		TraceID:  middleware.GetReqID(r.Context()),
		Query:    q,
		TopK:     topK,
		Hybrid:   hybrid,
		VectorK:  vectorK,
		BM25K:    bm25K,
		Rerank:   rerank,
		Page:     page,
		PageSize: pageSize,
		Debug:    debug,
	}, nil
}

func parseBoundedInt(r *http.Request, name string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parameter %q must be an integer", name)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("parameter %q must be in [%d, %d]", name, min, max)
	}
	return v, nil
}

func parseBool(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parameter %q must be a boolean", name)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
