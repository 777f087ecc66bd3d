package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/becomeliminal/nim-companion/memory"
	"github.com/becomeliminal/nim-companion/memory/embedder/mock"
	"github.com/becomeliminal/nim-companion/memory/store/chromem"
)

// fixedStore returns canned hits regardless of the query.
type fixedStore struct {
	hits  []memory.Hit
	added []*memory.Entry
	err   error
}

func (s *fixedStore) Add(ctx context.Context, e *memory.Entry) error {
	if s.err != nil {
		return s.err
	}
	s.added = append(s.added, e)
	return nil
}

func (s *fixedStore) Query(ctx context.Context, userID string, emb []float32, limit int) ([]memory.Hit, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.hits) {
		return s.hits[:limit], nil
	}
	return s.hits, nil
}

func (s *fixedStore) Count(ctx context.Context, userID string) (int, error) {
	return len(s.added), s.err
}

func (s *fixedStore) Clear(ctx context.Context, userID string) error { return s.err }
func (s *fixedStore) Close() error                                  { return nil }

func TestRecall_OnlyHitAboveThreshold(t *testing.T) {
	store := &fixedStore{hits: []memory.Hit{
		{UserSnippet: "I adopted a cat named Miso", AISnippet: "Miso is a lovely name", Relevance: 0.8},
		{UserSnippet: "Work was long today", AISnippet: "Rest up", Relevance: 0.55},
	}}
	idx := memory.NewIndex(store, mock.New(), &memory.Config{Enabled: true, MinRelevance: 0.6, SearchLimit: 2})

	hit, ok := idx.ForUser("u1").Recall(context.Background(), "how is my cat?")
	if !ok {
		t.Fatalf("Expected a hit above threshold")
	}
	if hit.Relevance != 0.8 {
		t.Errorf("Expected the 0.8 hit, got %f", hit.Relevance)
	}
}

func TestRecall_NothingAboveThreshold(t *testing.T) {
	store := &fixedStore{hits: []memory.Hit{{Relevance: 0.6}, {Relevance: 0.3}}}
	idx := memory.NewIndex(store, mock.New(), &memory.Config{Enabled: true, MinRelevance: 0.6, SearchLimit: 2})

	if _, ok := idx.ForUser("u1").Recall(context.Background(), "q"); ok {
		t.Errorf("Relevance equal to threshold must not be surfaced")
	}
}

func TestAdd_StoreFailureIsStorageUnavailable(t *testing.T) {
	store := &fixedStore{err: errors.New("disk full")}
	idx := memory.NewIndex(store, mock.New(), nil)

	_, err := idx.ForUser("u1").Add(context.Background(), "hi", "hello", nil)
	if !errors.Is(err, memory.ErrStorageUnavailable) {
		t.Fatalf("Expected ErrStorageUnavailable, got %v", err)
	}
	if hits := idx.ForUser("u1").Search(context.Background(), "hi", 3); len(hits) != 0 {
		t.Errorf("Search on failing store should be empty, got %d", len(hits))
	}
}

func TestAdd_DisabledIndex(t *testing.T) {
	idx := memory.NewIndex(&fixedStore{}, mock.New(), &memory.Config{Enabled: false})
	if _, err := idx.ForUser("u1").Add(context.Background(), "a", "b", nil); !errors.Is(err, memory.ErrStorageUnavailable) {
		t.Errorf("Expected ErrStorageUnavailable for disabled index, got %v", err)
	}

	var nilIndex *memory.UserIndex
	if nilIndex.Count(context.Background()) != 0 || nilIndex.Search(context.Background(), "q", 2) != nil {
		t.Errorf("Nil user index should behave as empty")
	}
}

func TestIndex_AddSearchWithChromem(t *testing.T) {
	ctx := context.Background()
	store, err := chromem.New(chromem.Options{})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	idx := memory.NewIndex(store, mock.New(), nil)
	user := idx.ForUser("user123")

	id, err := user.Add(ctx, "My sister is called Lena", "That's a nice name!", map[string]string{"source": "chat"})
	if err != nil {
		t.Fatalf("Failed to add: %v", err)
	}
	if !strings.HasPrefix(id, "conv_") {
		t.Errorf("Expected conv_ id prefix, got %q", id)
	}
	if n := user.Count(ctx); n != 1 {
		t.Fatalf("Expected count 1, got %d", n)
	}

	// The mock embedder is deterministic, so the stored document matches
	// itself exactly.
	hits := user.Search(ctx, memory.FormatDocument("My sister is called Lena", "That's a nice name!"), 5)
	if len(hits) != 1 {
		t.Fatalf("Expected 1 hit, got %d", len(hits))
	}
	if hits[0].Relevance < 0.99 {
		t.Errorf("Expected near-identical relevance, got %f", hits[0].Relevance)
	}

	if other := idx.ForUser("someone-else").Count(ctx); other != 0 {
		t.Errorf("Expected user isolation, got count %d", other)
	}
}

func TestEntry_SnippetsAndFormat(t *testing.T) {
	long := strings.Repeat("é", 600)
	e := memory.NewEntry("u1", long, "short", nil)
	if n := len([]rune(e.UserSnippet)); n != memory.MaxSnippetLength {
		t.Errorf("Expected stored snippet of %d runes, got %d", memory.MaxSnippetLength, n)
	}
	if e.Document != "User: "+long+"\nAssistant: short" {
		t.Errorf("Unexpected document format")
	}

	hit := memory.Hit{UserSnippet: e.UserSnippet, AISnippet: "short"}
	formatted := hit.Format(memory.PromptSnippetLength)
	lines := strings.Split(formatted, "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "U: ") || lines[1] != "A: short" {
		t.Fatalf("Unexpected format: %q", formatted)
	}
	side := strings.TrimPrefix(lines[0], "U: ")
	if n := len([]rune(side)); n != memory.PromptSnippetLength || !strings.HasSuffix(side, "...") {
		t.Errorf("Expected user side cut to %d characters ending in \"...\", got %d: %q", memory.PromptSnippetLength, n, side)
	}
}
