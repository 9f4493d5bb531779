// Package lexical provides sparse lexical (BM25) retrieval over the chunk
// corpus, backed by a Bleve index.
package lexical

import "context"

// Document is one chunk entry in the lexical index.
type Document struct {
	DocID   string
	ChunkID int64
	Text    string
}

// Index defines the write side of the lexical corpus, consumed by the
// ingestion pipeline.
type Index interface {
	// Index adds documents to the corpus.
	Index(ctx context.Context, docs []Document) error

	// DocCount returns the number of indexed chunks.
	DocCount() (uint64, error)

	// Close releases the index.
	Close() error
}
