package querylog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepo persists query log rows in the query_logs table.
type PostgresRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresRepo connects to Postgres and ensures the query_logs table
// exists.
func NewPostgresRepo(ctx context.Context, databaseURL string) (*PostgresRepo, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &PostgresRepo{pool: pool}
	if err := repo.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *PostgresRepo) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS query_logs (
			id BIGSERIAL PRIMARY KEY,
			trace_id TEXT,
			query TEXT,
			hybrid BOOLEAN,
			top_k INTEGER,
			latency_ms DOUBLE PRECISION,
			result_count INTEGER,
			cache_hit BOOLEAN,
			degraded BOOLEAN,
			degraded_reason TEXT,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create query_logs table: %w", err)
	}
	return nil
}

// Insert writes one query log row.
func (r *PostgresRepo) Insert(ctx context.Context, record Record) error {
	payloadJSON, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO query_logs (trace_id, query, hybrid, top_k, latency_ms, result_count, cache_hit, degraded, degraded_reason, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		record.TraceID, record.Query, record.Hybrid, record.TopK,
		record.LatencyMS, record.ResultCount, record.CacheHit,
		record.Degraded, record.DegradedReason, payloadJSON,
		record.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert query log: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (r *PostgresRepo) Close() {
	r.pool.Close()
}
