package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gaozhen0523/rag-milvus-enterprise/internal/cache"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/config"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/embedder"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/ingestion"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/lexical"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/querylog"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/reranker"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/retrieval"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/server"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/service"
	"github.com/gaozhen0523/rag-milvus-enterprise/internal/vectorstore"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting retrieval service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	// Initialize embedder
	embed, err := embedder.New(embedder.Config{
		Provider:  cfg.EmbeddingProvider,
		Dimension: cfg.EmbeddingDim,
		OllamaURL: cfg.OllamaURL,
		Model:     cfg.EmbeddingModel,
		APIKey:    cfg.OpenAIAPIKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	slog.Info("initialized embedder", "provider", cfg.EmbeddingProvider, "model", embed.ModelName())

	// Initialize Qdrant vector store behind a circuit breaker
	qdrant, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL, cfg.QdrantCollection)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer qdrant.Close()
	if err := qdrant.EnsureCollection(ctx, embed.Dimension()); err != nil {
		slog.Warn("could not ensure collection, continuing degraded", "error", err)
	}
	store := vectorstore.NewBreakerStore(qdrant, vectorstore.DefaultBreakerConfig(), slog.Default())
	slog.Info("connected to Qdrant", "collection", cfg.QdrantCollection)

	// Initialize BM25 index
	index, err := lexical.NewBleveIndex(cfg.BM25IndexPath)
	if err != nil {
		return fmt.Errorf("failed to open BM25 index: %w", err)
	}
	defer index.Close()
	slog.Info("opened BM25 index", "path", cfg.BM25IndexPath)

	// Initialize query cache
	qc := cache.New(cfg.CacheDir, slog.Default())
	defer qc.Close()

	// Initialize query log (file + optional Postgres)
	var qlogRepo *querylog.PostgresRepo
	if cfg.QueryLogDatabaseURL != "" {
		qlogRepo, err = querylog.NewPostgresRepo(ctx, cfg.QueryLogDatabaseURL)
		if err != nil {
			slog.Warn("query log database unavailable, file sink only", "error", err)
		} else {
			defer qlogRepo.Close()
		}
	}
	qlog, err := querylog.New(cfg.QueryLogFile, qlogRepo, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open query log: %w", err)
	}
	defer qlog.Close()

	// Assemble the retrieval pipeline
	vectorRetriever := vectorstore.NewRetriever(store, embed, cfg.VectorSearchTimeout)
	fuser := retrieval.NewRRFFuser(cfg.RRFK)
	rerank := reranker.NewEmbeddingReranker(embed, reranker.Weights{
		Alpha: cfg.RerankAlpha,
		Beta:  cfg.RerankBeta,
		Gamma: cfg.RerankGamma,
		Delta: cfg.RerankDelta,
	})
	hybrid := retrieval.NewHybridRetriever(vectorRetriever, index, fuser, rerank, slog.Default())

	querySvc := service.NewQueryService(hybrid, vectorRetriever, index, qc, store, qlog, cfg.CacheTTL, slog.Default())
	pipeline := ingestion.NewPipeline(embed, store, index, qc, slog.Default())
	ingestSvc := service.NewIngestService(pipeline, nil, slog.Default())

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		APIKey:         cfg.APIGatewayToken,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"}, // Configure in production
	}, querySvc, ingestSvc)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ vectorstore.VectorStore     = (*vectorstore.QdrantStore)(nil)
	_ vectorstore.VectorStore     = (*vectorstore.BreakerStore)(nil)
	_ retrieval.VectorSearcher    = (*vectorstore.Retriever)(nil)
	_ retrieval.LexicalSearcher   = (*lexical.BleveIndex)(nil)
	_ service.HybridSearcher      = (*retrieval.HybridRetriever)(nil)
	_ service.VectorHealthChecker = (*vectorstore.BreakerStore)(nil)
)
