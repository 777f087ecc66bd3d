package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-companion/internal/applog"
	"github.com/becomeliminal/nim-companion/memory"
)

// Metadata keys written alongside every document.
const (
	keyOwnerID     = "owner_id"
	keyTimestamp   = "timestamp"
	keyUserMessage = "user_message"
	keyAIResponse  = "ai_response"
)

// Options configures the store.
type Options struct {
	// Path persists collections to this directory. Empty keeps everything
	// in memory.
	Path string

	// Compress gzips persisted documents.
	Compress bool
}

// ChromemStore wraps chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database.
type ChromemStore struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection // Per-user collections
	mu          sync.RWMutex
}

// New creates a new chromem-based store.
func New(opts Options) (*ChromemStore, error) {
	db := chromem.NewDB()
	if opts.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("open persistent db %q: %w", opts.Path, err)
		}
		applog.Info("[CHROMEM] Opened persistent store", "path", opts.Path, "collections", len(db.ListCollections()))
	}

	return &ChromemStore{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func collectionName(userID string) string {
	return "user_" + userID
}

// collection returns the collection for a user.
// Each user gets their own collection for namespace isolation.
func (s *ChromemStore) collection(userID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[userID]
	s.mu.RUnlock()

	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[userID]; exists {
		return col, nil
	}

	// Reattaches to a collection loaded from disk. Embeddings are always
	// supplied by the caller so no embedding func is needed.
	col, err := s.db.GetOrCreateCollection(collectionName(userID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}

	s.collections[userID] = col
	return col, nil
}

// Add saves an entry with its embedding.
func (s *ChromemStore) Add(ctx context.Context, entry *memory.Entry) error {
	if len(entry.Embedding) == 0 {
		return fmt.Errorf("entry %s has no embedding", entry.ID)
	}

	col, err := s.collection(entry.OwnerID)
	if err != nil {
		return err
	}

	metadata := make(map[string]string, len(entry.Metadata)+4)
	for k, v := range entry.Metadata {
		metadata[k] = v
	}
	metadata[keyOwnerID] = entry.OwnerID
	metadata[keyTimestamp] = entry.Timestamp.Format(time.RFC3339Nano)
	metadata[keyUserMessage] = entry.UserSnippet
	metadata[keyAIResponse] = entry.AISnippet

	doc := chromem.Document{
		ID:        entry.ID,
		Content:   entry.Document,
		Embedding: entry.Embedding,
		Metadata:  metadata,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	applog.Debug("[CHROMEM] Stored entry", "id", entry.ID, "owner", entry.OwnerID)
	return nil
}

// Query retrieves entries by vector similarity.
func (s *ChromemStore) Query(ctx context.Context, userID string, embedding []float32, limit int) ([]memory.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}

	col, err := s.collection(userID)
	if err != nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		if isInsufficientDocsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]memory.Hit, 0, len(results))
	for _, r := range results {
		ts, _ := time.Parse(time.RFC3339Nano, r.Metadata[keyTimestamp])
		hits = append(hits, memory.Hit{
			ID:          r.ID,
			UserSnippet: r.Metadata[keyUserMessage],
			AISnippet:   r.Metadata[keyAIResponse],
			Timestamp:   ts,
			Relevance:   memory.ClampRelevance(float64(r.Similarity)),
		})
	}

	applog.Debug("[CHROMEM] Query", "owner", userID, "limit", limit, "results", len(hits))
	return hits, nil
}

// Count returns the number of entries for a user.
func (s *ChromemStore) Count(ctx context.Context, userID string) (int, error) {
	col, err := s.collection(userID)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Clear deletes the user's collection.
func (s *ChromemStore) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, userID)
	if err := s.db.DeleteCollection(collectionName(userID)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

// Close releases resources. Persistent databases write on every add, so
// there is nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
