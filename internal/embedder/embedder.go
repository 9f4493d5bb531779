// Package embedder provides interfaces and implementations for text
// embedding. Variants are selected by name at construction time: "dummy"
// (deterministic pseudo-embeddings, no external service), "ollama", or
// "openai".
package embedder

import (
	"context"
	"fmt"
	"strings"
)

// Embedder defines the interface for text embedding services.
type Embedder interface {
	// Embed generates an embedding vector for a single text input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for multiple text inputs.
	// Returns a slice of embeddings in the same order as the input texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the embedding vectors.
	Dimension() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}

// Config selects and configures an embedding variant.
type Config struct {
	Provider  string // dummy | ollama | openai
	Dimension int    // used by the dummy variant
	OllamaURL string
	Model     string // provider-specific model name
	APIKey    string // openai only
}

// New constructs the embedder named by cfg.Provider.
func New(cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "dummy":
		return NewDummyEmbedder(cfg.Dimension), nil
	case "ollama":
		return NewOllamaEmbedder(OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.Model,
		}), nil
	case "openai":
		return NewOpenAIEmbedder(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}
