// Package ingestion handles document processing: chunking, deduplication, and pipeline orchestration.
package ingestion

import (
	"fmt"
	"strings"
	"unicode"
)

// Chunking strategies.
const (
	StrategyChar     = "char"
	StrategySentence = "sentence"
)

// Chunk represents a piece of chunked content. Start and End are
// rune offsets into the original text (End exclusive).
type Chunk struct {
	Index    int
	Text     string
	Start    int
	End      int
	Metadata map[string]string
}

// ChunkerConfig controls how text is split.
type ChunkerConfig struct {
	// Strategy selects the splitting algorithm: "char" uses fixed-size
	// character windows, "sentence" packs whole sentences up to Size.
	Strategy string `json:"strategy"`

	// Size is the maximum chunk length in characters.
	Size int `json:"size"`

	// Overlap is the number of characters shared between adjacent
	// chunks. Must satisfy 0 <= Overlap < Size.
	Overlap int `json:"overlap"`
}

// DefaultChunkerConfig returns the standard chunking parameters.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		Strategy: StrategyChar,
		Size:     800,
		Overlap:  100,
	}
}

// Validate checks the configuration invariants.
func (c ChunkerConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be > 0, got %d", c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d", c.Overlap, c.Size)
	}
	switch c.Strategy {
	case StrategyChar, StrategySentence:
	default:
		return fmt.Errorf("unknown chunk strategy %q", c.Strategy)
	}
	return nil
}

// Chunker splits text into overlapping chunks.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker creates a Chunker after validating the configuration.
func NewChunker(config ChunkerConfig) (*Chunker, error) {
	if config.Strategy == "" {
		config.Strategy = StrategyChar
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{config: config}, nil
}

// Chunk splits text according to the configured strategy. Empty input
// yields no chunks.
func (c *Chunker) Chunk(text string, metadata map[string]string) []Chunk {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	switch c.config.Strategy {
	case StrategySentence:
		return c.chunkBySentence(runes, metadata)
	default:
		return c.chunkByChar(runes, metadata)
	}
}

func (c *Chunker) chunkByChar(runes []rune, metadata map[string]string) []Chunk {
	var chunks []Chunk
	n := len(runes)
	pos := 0
	for pos < n {
		end := pos + c.config.Size
		if end > n {
			end = n
		}
		chunks = append(chunks, Chunk{
			Index:    len(chunks),
			Text:     string(runes[pos:end]),
			Start:    pos,
			End:      end,
			Metadata: metadata,
		})
		if end == n {
			break
		}
		pos = end - c.config.Overlap
	}
	return chunks
}

// sentenceSpan is a sentence's rune range within the original text.
type sentenceSpan struct {
	start int
	end   int
}

// isSentenceBoundary reports whether r terminates a sentence. Covers
// ASCII and fullwidth CJK punctuation plus semicolons.
func isSentenceBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '；', ';':
		return true
	}
	return false
}

// splitSentences returns trimmed sentence spans. Boundaries are
// sentence-ending punctuation and newlines. Text with no boundary
// degenerates to a single span covering everything.
func splitSentences(runes []rune) []sentenceSpan {
	var spans []sentenceSpan
	n := len(runes)
	last := 0
	i := 0
	for i < n {
		r := runes[i]
		boundary := false
		segEnd := i
		if isSentenceBoundary(r) {
			boundary = true
			segEnd = i + 1
		} else if r == '\n' {
			boundary = true
		}
		if boundary {
			if s, ok := trimSpan(runes, last, segEnd); ok {
				spans = append(spans, s)
			}
			// Consume the delimiter and any trailing whitespace.
			i++
			for i < n && unicode.IsSpace(runes[i]) {
				i++
			}
			last = i
			continue
		}
		i++
	}
	if last < n {
		if s, ok := trimSpan(runes, last, n); ok {
			spans = append(spans, s)
		}
	}
	if len(spans) == 0 {
		spans = []sentenceSpan{{start: 0, end: n}}
	}
	return spans
}

// trimSpan shrinks [start, end) to exclude surrounding whitespace.
func trimSpan(runes []rune, start, end int) (sentenceSpan, bool) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if start >= end {
		return sentenceSpan{}, false
	}
	return sentenceSpan{start: start, end: end}, true
}

func (c *Chunker) chunkBySentence(runes []rune, metadata map[string]string) []Chunk {
	sentences := splitSentences(runes)
	var chunks []Chunk
	n := len(sentences)
	i := 0
	for i < n {
		// Pack as many whole sentences as fit within Size characters,
		// measured from the first sentence's start.
		start := sentences[i].start
		end := sentences[i].end
		j := i
		for j+1 < n && sentences[j+1].end-start <= c.config.Size {
			j++
			end = sentences[j].end
		}

		chunks = append(chunks, Chunk{
			Index:    len(chunks),
			Text:     string(runes[start:end]),
			Start:    start,
			End:      end,
			Metadata: metadata,
		})

		if j == n-1 {
			break
		}

		// Step back Overlap characters and snap forward to the first
		// sentence starting at or after that point, always advancing
		// past i to guarantee progress.
		desired := end - c.config.Overlap
		if desired < start {
			desired = start
		}
		next := j + 1
		for k := i; k <= j; k++ {
			if sentences[k].start >= desired {
				next = k
				break
			}
		}
		if next <= i {
			next = i + 1
		}
		i = next
	}
	return chunks
}

// PreviewCount reports how many chunks the text would produce without
// materializing them beyond the split itself. Used by dry-run ingest.
func (c *Chunker) PreviewCount(text string) int {
	return len(c.Chunk(text, nil))
}

// wordCount is used for pipeline statistics.
func wordCount(text string) int {
	return len(strings.Fields(text))
}
