package querylog

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "query.log")
	l, err := New(path, nil, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.Log(context.Background(), Record{
		TraceID:     "trace-1",
		Query:       "hello",
		Hybrid:      true,
		TopK:        5,
		LatencyMS:   12.5,
		ResultCount: 3,
	})
	l.Log(context.Background(), Record{
		TraceID:        "trace-2",
		Query:          "world",
		Degraded:       true,
		DegradedMode:   "bm25_only",
		DegradedReason: "vector_search_failed: boom",
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		records = append(records, r)
	}
	if len(records) != 2 {
		t.Fatalf("logged %d records, want 2", len(records))
	}
	if records[0].TraceID != "trace-1" || records[0].LatencyMS != 12.5 {
		t.Errorf("first record = %+v", records[0])
	}
	if records[1].DegradedMode != "bm25_only" {
		t.Errorf("second record degraded_mode = %q", records[1].DegradedMode)
	}
	if records[0].Timestamp.IsZero() {
		t.Error("missing timestamp should be filled in")
	}
}

func TestLoggerWithoutSinks(t *testing.T) {
	l, err := New("", nil, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	// Must not panic with no sinks configured.
	l.Log(context.Background(), Record{TraceID: "t", Query: "q"})
	if err := l.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
