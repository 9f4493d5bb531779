package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/gaozhen0523/rag-milvus-enterprise/internal/cache"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/embedder"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/lexical"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/vectorstore"
)

type fakeStore struct {
	upserted []vectorstore.Chunk
	err      error
}

func (f *fakeStore) EnsureCollection(ctx context.Context, dimension int) error { return nil }

func (f *fakeStore) Upsert(ctx context.Context, chunks []vectorstore.Chunk) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, k int) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (f *fakeStore) Health(ctx context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }

type fakeIndex struct {
	indexed []lexical.Document
}

func (f *fakeIndex) Index(ctx context.Context, docs []lexical.Document) error {
	f.indexed = append(f.indexed, docs...)
	return nil
}

func (f *fakeIndex) DocCount() (uint64, error) { return uint64(len(f.indexed)), nil }

func (f *fakeIndex) Close() error { return nil }

func newTestPipeline(t *testing.T, store *fakeStore, index *fakeIndex, qc *cache.QueryCache) *Pipeline {
	t.Helper()
	return NewPipeline(embedder.NewDummyEmbedder(16), store, index, qc, slog.New(slog.DiscardHandler))
}

func mustChunker(t *testing.T, cfg ChunkerConfig) *Chunker {
	t.Helper()
	c, err := NewChunker(cfg)
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}
	return c
}

func TestPipelineProcessStoresChunks(t *testing.T) {
	store := &fakeStore{}
	index := &fakeIndex{}
	p := newTestPipeline(t, store, index, nil)

	chunker := mustChunker(t, ChunkerConfig{Strategy: StrategyChar, Size: 10, Overlap: 0})
	result, err := p.Process(context.Background(), "doc-1", "abcdefghijklmnopqrst", chunker, map[string]string{"lang": "en"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.ChunkCount != 2 || result.Inserted != 2 || result.Deduplicated != 0 {
		t.Errorf("counts = %+v", result)
	}
	if len(store.upserted) != 2 {
		t.Fatalf("upserted %d chunks, want 2", len(store.upserted))
	}
	if len(index.indexed) != 2 {
		t.Fatalf("indexed %d docs, want 2", len(index.indexed))
	}
	ch := store.upserted[0]
	if ch.DocID != "doc-1" || ch.ChunkID != 0 || len(ch.Vector) != 16 {
		t.Errorf("stored chunk = %+v", ch)
	}
	if ch.Metadata["lang"] != "en" {
		t.Error("metadata not propagated to stored chunk")
	}
	if index.indexed[0].Text != "abcdefghij" {
		t.Errorf("indexed text = %q", index.indexed[0].Text)
	}
}

func TestPipelineGeneratesDocID(t *testing.T) {
	p := newTestPipeline(t, &fakeStore{}, &fakeIndex{}, nil)

	chunker := mustChunker(t, DefaultChunkerConfig())
	result, err := p.Process(context.Background(), "", "some text to ingest", chunker, nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.DocumentID == "" {
		t.Error("expected a generated document id")
	}
}

func TestPipelineEmptyText(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(t, store, &fakeIndex{}, nil)

	chunker := mustChunker(t, DefaultChunkerConfig())
	result, err := p.Process(context.Background(), "doc", "", chunker, nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.ChunkCount != 0 || result.Inserted != 0 {
		t.Errorf("counts = %+v, want zeros", result)
	}
	if len(store.upserted) != 0 {
		t.Error("nothing should be stored for empty text")
	}
}

func TestPipelineDeduplicatesRepeatedChunks(t *testing.T) {
	qc := cache.New("", slog.New(slog.DiscardHandler))
	t.Cleanup(func() { qc.Close() })

	store := &fakeStore{}
	p := newTestPipeline(t, store, &fakeIndex{}, qc)
	chunker := mustChunker(t, ChunkerConfig{Strategy: StrategyChar, Size: 100, Overlap: 0})

	first, err := p.Process(context.Background(), "doc-1", "identical content", chunker, nil)
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	if first.Inserted != 1 {
		t.Fatalf("first run inserted %d, want 1", first.Inserted)
	}

	second, err := p.Process(context.Background(), "doc-2", "identical content", chunker, nil)
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if second.Deduplicated != 1 || second.Inserted != 0 {
		t.Errorf("second run = %+v, want full dedup", second)
	}
	if len(store.upserted) != 1 {
		t.Errorf("store holds %d chunks, want 1", len(store.upserted))
	}
}

func TestPipelineUpsertFailurePropagates(t *testing.T) {
	store := &fakeStore{err: errors.New("qdrant down")}
	p := newTestPipeline(t, store, &fakeIndex{}, nil)

	chunker := mustChunker(t, DefaultChunkerConfig())
	if _, err := p.Process(context.Background(), "doc", "some text", chunker, nil); err == nil {
		t.Fatal("expected error when upsert fails")
	}
}
