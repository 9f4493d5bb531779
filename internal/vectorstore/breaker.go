package vectorstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerStore wraps a VectorStore with a circuit breaker around Search.
// After repeated backend failures the breaker opens and searches fail fast,
// which keeps degraded requests from stacking up slow Qdrant timeouts.
// Management operations (EnsureCollection, Upsert) bypass the breaker.
type BreakerStore struct {
	inner  VectorStore
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	MaxRequests      uint32        // probes allowed in half-open state
	Interval         time.Duration // rolling window for failure counts
	Timeout          time.Duration // open-state duration before half-open
	ReadyToTripRatio float64       // failure ratio that opens the circuit
}

// DefaultBreakerConfig returns conservative settings: trip after >=3
// requests with a 60% failure ratio, probe again after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		ReadyToTripRatio: 0.6,
	}
}

// NewBreakerStore wraps inner with a circuit breaker.
func NewBreakerStore(inner VectorStore, cfg BreakerConfig, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}

	st := gobreaker.Settings{
		Name:        "vectorstore",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("vector store circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &BreakerStore{
		inner:  inner,
		cb:     gobreaker.NewCircuitBreaker(st),
		logger: logger,
	}
}

// Search executes the inner search through the breaker. An open circuit
// returns gobreaker.ErrOpenState, which callers treat like any other vector
// backend failure.
func (b *BreakerStore) Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	results, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Search(ctx, vector, k)
	})
	if err != nil {
		return nil, err
	}
	return results.([]SearchResult), nil
}

// EnsureCollection delegates to the wrapped store.
func (b *BreakerStore) EnsureCollection(ctx context.Context, dimension int) error {
	return b.inner.EnsureCollection(ctx, dimension)
}

// Upsert delegates to the wrapped store.
func (b *BreakerStore) Upsert(ctx context.Context, chunks []Chunk) error {
	return b.inner.Upsert(ctx, chunks)
}

// Health delegates to the wrapped store.
func (b *BreakerStore) Health(ctx context.Context) error {
	return b.inner.Health(ctx)
}

// Close delegates to the wrapped store.
func (b *BreakerStore) Close() error {
	return b.inner.Close()
}

// Ensure BreakerStore implements VectorStore
var _ VectorStore = (*BreakerStore)(nil)
