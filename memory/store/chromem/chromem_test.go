package chromem_test

import (
	"context"
	"testing"

	"github.com/becomeliminal/nim-companion/memory"
	"github.com/becomeliminal/nim-companion/memory/store/chromem"
)

func entryWithEmbedding(owner, user, ai string, emb []float32) *memory.Entry {
	e := memory.NewEntry(owner, user, ai, nil)
	e.Embedding = emb
	return e
}

func TestChromemStore_QueryOrdersAndClamps(t *testing.T) {
	ctx := context.Background()
	store, err := chromem.New(chromem.Options{})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Add(ctx, entryWithEmbedding("u1", "likes tea", "noted", []float32{1, 0, 0})); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}
	if err := store.Add(ctx, entryWithEmbedding("u1", "plays chess", "fun", []float32{0, 1, 0})); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}

	// Asking for more results than stored must not fail.
	hits, err := store.Query(ctx, "u1", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}
	if hits[0].UserSnippet != "likes tea" {
		t.Errorf("Expected closest hit first, got %q", hits[0].UserSnippet)
	}
	if hits[0].Relevance < 0.99 {
		t.Errorf("Expected relevance ~1 for identical vector, got %f", hits[0].Relevance)
	}
	if hits[1].Relevance != 0 {
		t.Errorf("Expected orthogonal vector to clamp to 0, got %f", hits[1].Relevance)
	}
	if hits[0].Timestamp.IsZero() {
		t.Errorf("Expected timestamp to round-trip through metadata")
	}
}

func TestChromemStore_EmptyAndIsolated(t *testing.T) {
	ctx := context.Background()
	store, _ := chromem.New(chromem.Options{})

	hits, err := store.Query(ctx, "nobody", []float32{1, 0}, 3)
	if err != nil || len(hits) != 0 {
		t.Fatalf("Expected no hits and no error for empty collection, got %v, %v", hits, err)
	}

	_ = store.Add(ctx, entryWithEmbedding("alice", "secret", "ok", []float32{1, 0}))
	if n, _ := store.Count(ctx, "bob"); n != 0 {
		t.Errorf("Bob should not see Alice's entries, count=%d", n)
	}
	if n, _ := store.Count(ctx, "alice"); n != 1 {
		t.Errorf("Expected Alice count 1, got %d", n)
	}

	if err := store.Clear(ctx, "alice"); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	if n, _ := store.Count(ctx, "alice"); n != 0 {
		t.Errorf("Expected count 0 after clear, got %d", n)
	}
}

func TestChromemStore_PersistsToDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := chromem.New(chromem.Options{Path: dir})
	if err != nil {
		t.Fatalf("Failed to create persistent store: %v", err)
	}
	if err := store.Add(ctx, entryWithEmbedding("u1", "我喜欢猫", "好的", []float32{0, 1})); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}

	reopened, err := chromem.New(chromem.Options{Path: dir})
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	hits, err := reopened.Query(ctx, "u1", []float32{0, 1}, 1)
	if err != nil {
		t.Fatalf("Failed to query reopened store: %v", err)
	}
	if len(hits) != 1 || hits[0].UserSnippet != "我喜欢猫" {
		t.Fatalf("Expected persisted entry, got %+v", hits)
	}
}
