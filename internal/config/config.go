// Package config loads configuration from environment variables and .env files.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the retrieval service
type Config struct {
	// Server
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// API key auth; empty disables authentication (local development)
	APIGatewayToken string `env:"API_GATEWAY_TOKEN"`

	// Qdrant
	QdrantGRPCURL    string `env:"QDRANT_GRPC_URL" envDefault:"localhost:6334"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"rag_chunks"`

	// Embedding
	EmbeddingProvider string `env:"EMBEDDING_MODEL" envDefault:"dummy"`
	EmbeddingDim      int    `env:"EMBEDDING_DIM" envDefault:"768"`
	EmbeddingModel    string `env:"EMBEDDING_MODEL_NAME"`
	OllamaURL         string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`

	// Lexical index; empty path keeps the index in memory
	BM25IndexPath string `env:"BM25_INDEX_PATH"`

	// Query cache; empty dir keeps the primary store in memory
	CacheDir string        `env:"CACHE_DIR"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	DedupTTL time.Duration `env:"DEDUP_TTL" envDefault:"24h"`

	// Query log
	QueryLogFile        string `env:"QUERY_LOG_FILE" envDefault:"logs/query.log"`
	QueryLogDatabaseURL string `env:"QUERYLOG_DATABASE_URL"`

	// Retrieval
	VectorSearchTimeout time.Duration `env:"VECTOR_SEARCH_TIMEOUT" envDefault:"5s"`
	RRFK                int           `env:"RRF_K" envDefault:"60"`
	DefaultTopK         int           `env:"DEFAULT_TOP_K" envDefault:"5"`
	DefaultVectorK      int           `env:"DEFAULT_VECTOR_K" envDefault:"5"`
	DefaultBM25K        int           `env:"DEFAULT_BM25_K" envDefault:"5"`
	DefaultPageSize     int           `env:"DEFAULT_PAGE_SIZE" envDefault:"10"`

	// Rerank weights
	RerankAlpha float64 `env:"RERANK_ALPHA" envDefault:"1.0"`
	RerankBeta  float64 `env:"RERANK_BETA" envDefault:"0.2"`
	RerankGamma float64 `env:"RERANK_GAMMA" envDefault:"0.2"`
	RerankDelta float64 `env:"RERANK_DELTA" envDefault:"0.3"`
}

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
