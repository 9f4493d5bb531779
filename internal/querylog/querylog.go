// Package querylog provides the query audit log: every request is dual-
// written as a JSON line to a local file and as a structured row to
// Postgres. Either sink may be absent or failing; logging never fails the
// request it records.
package querylog

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one query log entry.
type Record struct {
	TraceID        string  `json:"trace_id"`
	Query          string  `json:"query"`
	Hybrid         bool    `json:"hybrid"`
	TopK           int     `json:"top_k"`
	LatencyMS      float64 `json:"latency_ms"`
	ResultCount    int     `json:"result_count"`
	CacheHit       bool    `json:"cache_hit"`
	Degraded       bool    `json:"degraded"`
	DegradedMode   string  `json:"degraded_mode,omitempty"`
	DegradedReason string  `json:"degraded_reason,omitempty"`
	VectorOK       bool    `json:"vector_ok"`
	CacheOK        bool    `json:"cache_ok"`
	Payload        any     `json:"payload,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Logger dual-writes query records. Both sinks are optional.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	repo   *PostgresRepo
	logger *slog.Logger
}

// New opens the query log. path may be empty to skip the file sink; repo may
// be nil to skip the database sink.
func New(path string, repo *PostgresRepo, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Logger{repo: repo, logger: logger}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		l.file = file
	}
	return l, nil
}

// Log writes the record to every configured sink. Sink failures are logged
// and swallowed.
func (l *Logger) Log(ctx context.Context, record Record) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	if l.file != nil {
		line, err := json.Marshal(record)
		if err == nil {
			l.mu.Lock()
			_, err = l.file.Write(append(line, '\n'))
			l.mu.Unlock()
		}
		if err != nil {
			l.logger.Warn("failed to write query log line", "error", err)
		}
	}

	if l.repo != nil {
		if err := l.repo.Insert(ctx, record); err != nil {
			l.logger.Warn("failed to insert query log row", "error", err)
		}
	}
}

// Close releases the file sink and the database pool.
func (l *Logger) Close() error {
	if l.repo != nil {
		l.repo.Close()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
