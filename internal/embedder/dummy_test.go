package embedder

import (
	"context"
	"math"
	"testing"
)

func TestDummyEmbedDeterministic(t *testing.T) {
	e := NewDummyEmbedder(64)

	a, err := e.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := e.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}

	c, err := e.Embed(context.Background(), "different text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}
}

func TestDummyEmbedUnitNorm(t *testing.T) {
	e := NewDummyEmbedder(128)

	vec, err := e.Embed(context.Background(), "normalize me")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 128 {
		t.Fatalf("dimension = %d, want 128", len(vec))
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-3 {
		t.Errorf("norm = %v, want ~1.0", math.Sqrt(norm))
	}
}

func TestDummyEmbedBatchOrder(t *testing.T) {
	e := NewDummyEmbedder(32)

	texts := []string{"one", "two", "three"}
	batch, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("batch size = %d, want 3", len(batch))
	}
	for i, text := range texts {
		single, _ := e.Embed(context.Background(), text)
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch[%d] differs from single embed of %q", i, text)
			}
		}
	}
}

func TestDummyDefaultDimension(t *testing.T) {
	e := NewDummyEmbedder(0)
	if e.Dimension() != DefaultDummyDimension {
		t.Errorf("dimension = %d, want %d", e.Dimension(), DefaultDummyDimension)
	}
}

func TestFactorySelectsProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{"", "dummy", false},
		{"dummy", "dummy", false},
		{"DUMMY", "dummy", false},
		{"unknown-provider", "", true},
	}
	for _, tt := range tests {
		e, err := New(Config{Provider: tt.provider, Dimension: 16})
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v, wantErr %v", tt.provider, err, tt.wantErr)
			continue
		}
		if err == nil && e.ModelName() != tt.wantName {
			t.Errorf("New(%q).ModelName() = %q, want %q", tt.provider, e.ModelName(), tt.wantName)
		}
	}
}
