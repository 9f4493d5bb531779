package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gaozhen0523/rag-milvus-enterprise/internal/cache"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/embedder"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/lexical"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/vectorstore"
)

// dedupMarker is the cache key prefix for chunk content hashes.
const dedupMarker = "chunk:"

// PipelineResult summarizes one ingestion run.
type PipelineResult struct {
	// DocumentID identifies this ingestion.
	DocumentID string

	// ChunkCount is the number of chunks produced by splitting.
	ChunkCount int

	// Deduplicated is how many chunks were skipped because an
	// identical chunk was ingested within the dedup window.
	Deduplicated int

	// Inserted is how many chunks were embedded and stored.
	Inserted int

	// Stats holds processing statistics.
	Stats PipelineStats
}

// PipelineStats contains statistics about a pipeline execution.
type PipelineStats struct {
	OriginalLength    int
	OriginalWordCount int
	TotalChunkWords   int
	ProcessingTime    time.Duration
}

// Pipeline orchestrates chunk -> dedup -> embed -> store for a document.
// Chunks are written to both the vector store and the lexical index so
// hybrid retrieval sees a consistent corpus.
type Pipeline struct {
	embedder embedder.Embedder
	store    vectorstore.VectorStore
	index    lexical.Index
	cache    *cache.QueryCache
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline. The cache may be nil, in
// which case deduplication is disabled.
func NewPipeline(emb embedder.Embedder, store vectorstore.VectorStore, index lexical.Index, qc *cache.QueryCache, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		embedder: emb,
		store:    store,
		index:    index,
		cache:    qc,
		logger:   logger,
	}
}

// Process splits text with the given chunker, drops chunks whose content
// hash was seen within the dedup window, embeds the remainder as a batch,
// and writes them to the vector store and lexical index. It returns the
// document ID and counts; the document ID is generated when docID is empty.
func (p *Pipeline) Process(ctx context.Context, docID, text string, chunker *Chunker, metadata map[string]string) (*PipelineResult, error) {
	start := time.Now()

	if docID == "" {
		docID = uuid.New().String()
	}

	chunks := chunker.Chunk(text, metadata)
	result := &PipelineResult{
		DocumentID: docID,
		ChunkCount: len(chunks),
		Stats: PipelineStats{
			OriginalLength:    len([]rune(text)),
			OriginalWordCount: wordCount(text),
		},
	}
	if len(chunks) == 0 {
		p.logger.Info("ingest: no chunks produced", "doc_id", docID)
		result.Stats.ProcessingTime = time.Since(start)
		return result, nil
	}

	fresh := p.dedup(chunks)
	result.Deduplicated = len(chunks) - len(fresh)
	if len(fresh) == 0 {
		p.logger.Info("ingest: all chunks deduplicated",
			"doc_id", docID,
			"chunks", len(chunks),
		)
		result.Stats.ProcessingTime = time.Since(start)
		return result, nil
	}

	texts := make([]string, len(fresh))
	for i, c := range fresh {
		texts[i] = c.Text
		result.Stats.TotalChunkWords += wordCount(c.Text)
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return result, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(fresh) {
		return result, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(fresh))
	}

	stored := make([]vectorstore.Chunk, len(fresh))
	docs := make([]lexical.Document, len(fresh))
	for i, c := range fresh {
		stored[i] = vectorstore.Chunk{
			ID:       uuid.New().String(),
			DocID:    docID,
			ChunkID:  int64(c.Index),
			Text:     c.Text,
			Vector:   vectors[i],
			Metadata: c.Metadata,
		}
		docs[i] = lexical.Document{
			DocID:   docID,
			ChunkID: int64(c.Index),
			Text:    c.Text,
		}
	}

	if err := p.store.Upsert(ctx, stored); err != nil {
		return result, fmt.Errorf("upserting chunks: %w", err)
	}
	if err := p.index.Index(ctx, docs); err != nil {
		return result, fmt.Errorf("indexing chunks: %w", err)
	}

	result.Inserted = len(fresh)
	result.Stats.ProcessingTime = time.Since(start)

	p.logger.Info("ingest: document processed",
		"doc_id", docID,
		"chunks", result.ChunkCount,
		"deduplicated", result.Deduplicated,
		"inserted", result.Inserted,
		"duration_ms", result.Stats.ProcessingTime.Milliseconds(),
	)
	return result, nil
}

// dedup filters out chunks whose content hash has a live cache marker,
// setting markers for the chunks it keeps. Without a cache every chunk
// passes through.
func (p *Pipeline) dedup(chunks []Chunk) []Chunk {
	if p.cache == nil {
		return chunks
	}
	fresh := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		key := dedupMarker + contentHash(c.Text)
		if _, ok := p.cache.Get(key); ok {
			continue
		}
		p.cache.Set(key, []byte("1"), cache.DedupMarkerTTL)
		fresh = append(fresh, c)
	}
	return fresh
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
