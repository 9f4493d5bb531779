package lexical

import (
	"context"
	"testing"
)

func newMemIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex failed: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func seedDocs(t *testing.T, idx *BleveIndex) {
	t.Helper()
	err := idx.Index(context.Background(), []Document{
		{DocID: "doc-1", ChunkID: 0, Text: "the quick brown fox jumps over the lazy dog"},
		{DocID: "doc-1", ChunkID: 1, Text: "vector databases store embeddings for similarity search"},
		{DocID: "doc-2", ChunkID: 0, Text: "bm25 is a classic lexical ranking function"},
	})
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
}

func TestBleveIndexAndSearch(t *testing.T) {
	idx := newMemIndex(t)
	seedDocs(t, idx)

	hits, err := idx.Search(context.Background(), "lexical ranking", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits for indexed terms")
	}
	top := hits[0]
	if top.DocID != "doc-2" {
		t.Errorf("top doc = %s, want doc-2", top.DocID)
	}
	if top.ChunkID == nil || *top.ChunkID != 0 {
		t.Errorf("top chunk = %v, want 0", top.ChunkID)
	}
	if top.Text == "" {
		t.Error("hit missing stored text")
	}
	if top.Score == nil || *top.Score <= 0 {
		t.Errorf("score = %v, want > 0", top.Score)
	}
}

func TestBleveSearchEmptyQuery(t *testing.T) {
	idx := newMemIndex(t)
	seedDocs(t, idx)

	hits, err := idx.Search(context.Background(), "", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("empty query returned %d hits, want 0", len(hits))
	}
}

func TestBleveSearchRespectsK(t *testing.T) {
	idx := newMemIndex(t)

	docs := make([]Document, 10)
	for i := range docs {
		docs[i] = Document{DocID: "doc", ChunkID: int64(i), Text: "repeated searchable phrase"}
	}
	if err := idx.Index(context.Background(), docs); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	hits, err := idx.Search(context.Background(), "searchable phrase", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) > 3 {
		t.Errorf("returned %d hits, want at most 3", len(hits))
	}
}

func TestBleveDocCount(t *testing.T) {
	idx := newMemIndex(t)
	seedDocs(t, idx)

	n, err := idx.DocCount()
	if err != nil {
		t.Fatalf("DocCount failed: %v", err)
	}
	if n != 3 {
		t.Errorf("doc count = %d, want 3", n)
	}
}

func TestBleveSearchAfterClose(t *testing.T) {
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex failed: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := idx.Search(context.Background(), "anything", 5); err == nil {
		t.Error("expected error searching a closed index")
	}
}
