package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gaozhen0523/rag-milvus-enterprise/internal/ingestion"
)

// Payload kinds accepted by Ingest.
const (
	PayloadKindText    = "text"
	PayloadKindFileURL = "file_url"
)

// maxFetchBytes caps file_url downloads.
const maxFetchBytes = 32 << 20

// ErrInvalidRequest marks ingestion requests rejected before any
// processing, so the transport can answer with a validation status.
var ErrInvalidRequest = errors.New("invalid ingest request")

// IngestRequest is one ingestion call. Exactly one of Text or FileURL
// must be set.
type IngestRequest struct {
	Text     string                  `json:"text,omitempty"`
	FileURL  string                  `json:"file_url,omitempty"`
	SourceID string                  `json:"source_id,omitempty"`
	Metadata map[string]string       `json:"metadata,omitempty"`
	Chunk    ingestion.ChunkerConfig `json:"chunk"`
	DryRun   bool                    `json:"-"`
}

// Validate checks the payload and chunk parameters.
func (r *IngestRequest) Validate() error {
	if r.Text == "" && r.FileURL == "" {
		return fmt.Errorf("either 'text' or 'file_url' must be provided")
	}
	if r.Chunk.Strategy == "" {
		r.Chunk = ingestion.DefaultChunkerConfig()
	}
	return r.Chunk.Validate()
}

// IngestAck acknowledges an ingestion request. PreviewChunks holds the
// chunk count for dry runs and the inserted count otherwise.
type IngestAck struct {
	TaskID        string                  `json:"task_id"`
	AcceptedAt    string                  `json:"accepted_at"`
	PayloadKind   string                  `json:"payload_kind"`
	ChunkParams   ingestion.ChunkerConfig `json:"chunk_params"`
	PreviewChunks *int                    `json:"preview_chunks,omitempty"`
	Note          string                  `json:"note,omitempty"`
}

// IngestService validates ingestion requests, fetches remote payloads,
// and drives the ingestion pipeline.
type IngestService struct {
	pipeline *ingestion.Pipeline
	client   *http.Client
	logger   *slog.Logger
}

// NewIngestService creates an ingest service. client may be nil, in which
// case a 10 second timeout client is used for file_url downloads.
func NewIngestService(pipeline *ingestion.Pipeline, client *http.Client, logger *slog.Logger) *IngestService {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{pipeline: pipeline, client: client, logger: logger}
}

// Ingest processes one document. Dry runs only validate and report the
// chunk count; real runs chunk, deduplicate, embed, and store.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*IngestAck, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	taskID := uuid.New().String()
	kind := PayloadKindText
	if req.Text == "" {
		kind = PayloadKindFileURL
	}

	s.logger.Info("ingest accepted",
		"task_id", taskID,
		"kind", kind,
		"strategy", req.Chunk.Strategy,
		"size", req.Chunk.Size,
		"overlap", req.Chunk.Overlap,
		"source_id", req.SourceID,
	)

	ack := &IngestAck{
		TaskID:      taskID,
		AcceptedAt:  time.Now().UTC().Format(time.RFC3339),
		PayloadKind: kind,
		ChunkParams: req.Chunk,
	}

	chunker, err := ingestion.NewChunker(req.Chunk)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if req.DryRun {
		if req.Text != "" {
			n := chunker.PreviewCount(req.Text)
			ack.PreviewChunks = &n
		}
		ack.Note = "Dry run only. Nothing was stored."
		return ack, nil
	}

	text := req.Text
	if text == "" {
		text, err = s.fetch(ctx, req.FileURL)
		if err != nil {
			return nil, &FetchError{URL: req.FileURL, Err: err}
		}
	}

	result, err := s.pipeline.Process(ctx, taskID, text, chunker, req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("ingest processing failed: %w", err)
	}

	ack.PreviewChunks = &result.Inserted
	ack.Note = fmt.Sprintf("Inserted %d chunks (%d deduplicated).", result.Inserted, result.Deduplicated)
	return ack, nil
}

// FetchError marks a failed file_url download so the transport can map
// it to a bad-gateway status instead of a server error.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (s *IngestService) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
