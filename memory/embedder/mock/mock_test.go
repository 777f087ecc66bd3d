package mock

import (
	"context"
	"math"
	"testing"
)

func TestEmbed_DeterministicUnitVectors(t *testing.T) {
	e := NewWithDimensions(16)
	a1, _ := e.Embed(context.Background(), "hello")
	a2, _ := e.Embed(context.Background(), "hello")
	b, _ := e.Embed(context.Background(), "goodbye")

	if len(a1) != 16 {
		t.Fatalf("Expected 16 dims, got %d", len(a1))
	}
	var norm float64
	same := true
	for i := range a1 {
		norm += float64(a1[i]) * float64(a1[i])
		if a1[i] != a2[i] {
			t.Fatalf("Embedding not deterministic at %d", i)
		}
		if a1[i] != b[i] {
			same = false
		}
	}
	if math.Abs(norm-1) > 1e-4 {
		t.Errorf("Expected unit vector, norm=%f", norm)
	}
	if same {
		t.Errorf("Different texts produced identical embeddings")
	}
}
