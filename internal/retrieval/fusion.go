package retrieval

import (
	"fmt"
	"sort"
)

// DefaultRRFK is the standard RRF smoothing constant. k=60 is empirically
// validated across domains (used by Azure AI Search, OpenSearch, etc.).
const DefaultRRFK = 60

// RRFFuser merges two independently ranked hit lists into one ranking using
// Reciprocal Rank Fusion:
//
//	RRF(d) = Σ_s 1 / (k + rank_s(d))
//
// Entries are keyed by "doc_id::chunk_id"; hits without a chunk id fall back
// to a per-source-per-rank key so every input hit is represented. Vector hits
// are folded in before lexical hits so that vector-supplied doc_id/text
// populate a shared entry first, and so that ties keep vector-first order.
type RRFFuser struct {
	K int
}

// NewRRFFuser creates a fuser with the given smoothing constant.
// k <= 0 falls back to DefaultRRFK.
func NewRRFFuser(k int) *RRFFuser {
	if k <= 0 {
		k = DefaultRRFK
	}
	return &RRFFuser{K: k}
}

// Fuse combines vector and lexical hits, sorted descending by RRF score.
// The sort is stable over insertion order, which is vector hits first and
// lexical-only keys in lexical arrival order.
func (f *RRFFuser) Fuse(vectorHits, lexicalHits []Hit) []FusedEntry {
	byKey := make(map[string]int, len(vectorHits)+len(lexicalHits))
	entries := make([]FusedEntry, 0, len(vectorHits)+len(lexicalHits))

	fold := func(hits []Hit, source string) {
		for i, hit := range hits {
			rank := i + 1
			key := entryKey(hit, source, rank)

			idx, ok := byKey[key]
			if !ok {
				entry := FusedEntry{
					DocID:    hit.DocID,
					ChunkID:  hit.ChunkID,
					Metadata: hit.Metadata,
				}
				if source == SourceVector {
					entry.Text = vectorHitText(hit)
				} else {
					entry.Text = hit.Text
				}
				byKey[key] = len(entries)
				idx = len(entries)
				entries = append(entries, entry)
			}

			entry := &entries[idx]
			if !containsSource(entry.Sources, source) {
				entry.Sources = append(entry.Sources, source)
			}
			if entry.Text == "" && hit.Text != "" {
				entry.Text = hit.Text
			}
			if hit.Score != nil {
				score := *hit.Score
				if source == SourceVector {
					entry.ScoreVector = &score
				} else {
					entry.ScoreBM25 = &score
				}
			}
			entry.RRFScore += 1.0 / float64(f.K+rank)
		}
	}

	fold(vectorHits, SourceVector)
	fold(lexicalHits, SourceBM25)

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].RRFScore > entries[j].RRFScore
	})
	return entries
}

// entryKey builds the fusion identity key. doc_id + chunk_id when the chunk
// id is known, else a synthetic source:rank key that is unique per input hit.
func entryKey(hit Hit, source string, rank int) string {
	if hit.ChunkID != nil {
		return fmt.Sprintf("%s::%d", hit.DocID, *hit.ChunkID)
	}
	return fmt.Sprintf("%s:%d", source, rank)
}

// vectorHitText resolves passage text for a vector hit. Qdrant payloads may
// carry the text under metadata instead of the top-level field.
func vectorHitText(hit Hit) string {
	if hit.Text != "" {
		return hit.Text
	}
	if hit.Metadata == nil {
		return ""
	}
	if text := hit.Metadata["text"]; text != "" {
		return text
	}
	return hit.Metadata["content"]
}

func containsSource(sources []string, source string) bool {
	for _, s := range sources {
		if s == source {
			return true
		}
	}
	return false
}
