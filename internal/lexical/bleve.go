package lexical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/gaozhen0523/rag-milvus-enterprise/internal/retrieval"
)

const (
	fieldDocID   = "doc_id"
	fieldChunkID = "chunk_id"
	fieldText    = "text"
)

// BleveIndex wraps Bleve v2 for BM25-scored keyword search over chunks.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// bleveDocument is the indexed document structure.
type bleveDocument struct {
	DocID   string `json:"doc_id"`
	ChunkID int64  `json:"chunk_id"`
	Text    string `json:"text"`
}

// NewBleveIndex creates or opens a lexical index at path. An empty path
// creates an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, bleve.NewIndexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open lexical index: %w", err)
	}

	return &BleveIndex{index: idx, path: path}, nil
}

// Index adds documents to the corpus in one batch.
func (b *BleveIndex) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		id := fmt.Sprintf("%s::%d", doc.DocID, doc.ChunkID)
		entry := bleveDocument{
			DocID:   doc.DocID,
			ChunkID: doc.ChunkID,
			Text:    doc.Text,
		}
		if err := batch.Index(id, entry); err != nil {
			return fmt.Errorf("failed to index document %s: %w", id, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search returns the k best chunks for the query, scored by BM25 and
// converted to retrieval hits. An empty query yields no hits.
func (b *BleveIndex) Search(ctx context.Context, query string, k int) ([]retrieval.Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	if strings.TrimSpace(query) == "" {
		return []retrieval.Hit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField(fieldText)

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = k
	searchRequest.Fields = []string{fieldDocID, fieldChunkID, fieldText}

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	hits := make([]retrieval.Hit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		score := hit.Score
		entry := retrieval.Hit{Score: &score}
		if docID, ok := hit.Fields[fieldDocID].(string); ok {
			entry.DocID = docID
		}
		// Bleve returns stored numeric fields as float64.
		if chunkID, ok := hit.Fields[fieldChunkID].(float64); ok {
			id := int64(chunkID)
			entry.ChunkID = &id
		}
		if text, ok := hit.Fields[fieldText].(string); ok {
			entry.Text = text
		}
		hits = append(hits, entry)
	}
	return hits, nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, fmt.Errorf("lexical index is closed")
	}
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

// Verify interface implementations
var (
	_ Index                     = (*BleveIndex)(nil)
	_ retrieval.LexicalSearcher = (*BleveIndex)(nil)
)
