package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"
)

// DefaultDummyDimension matches the dimension of the real models the service
// is typically paired with.
const DefaultDummyDimension = 768

// DummyEmbedder produces deterministic pseudo-embeddings: the text is hashed
// and the hash seeds a PRNG that draws a unit-normalized gaussian vector.
// The same text always maps to the same vector, which makes the retrieval
// pipeline fully exercisable without a model server.
type DummyEmbedder struct {
	dimension int
}

// NewDummyEmbedder creates a dummy embedder. dimension <= 0 falls back to
// DefaultDummyDimension.
func NewDummyEmbedder(dimension int) *DummyEmbedder {
	if dimension <= 0 {
		dimension = DefaultDummyDimension
	}
	return &DummyEmbedder{dimension: dimension}
}

// Embed derives a deterministic unit vector from text.
func (e *DummyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	digest := sha256.Sum256([]byte(text))
	seed := int64(binary.LittleEndian.Uint64(digest[:8]))
	rng := rand.New(rand.NewSource(seed))

	vector := make([]float32, e.dimension)
	var norm float64
	for i := range vector {
		v := rng.NormFloat64()
		vector[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vector {
			vector[i] = float32(float64(vector[i]) / norm)
		}
	}
	return vector, nil
}

// EmbedBatch embeds each text in order.
func (e *DummyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}

// Dimension returns the configured vector dimension.
func (e *DummyEmbedder) Dimension() int {
	return e.dimension
}

// ModelName identifies the dummy variant.
func (e *DummyEmbedder) ModelName() string {
	return "dummy"
}

// Ensure DummyEmbedder implements Embedder interface.
var _ Embedder = (*DummyEmbedder)(nil)
