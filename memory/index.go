package memory

import (
	"context"
	"fmt"

	"github.com/becomeliminal/nim-companion/internal/applog"
)

// Index is the semantic memory of past exchanges, namespaced by user.
//
// Index is safe for concurrent use as long as its Store and Embedder are.
type Index struct {
	store    Store
	embedder Embedder // Internal: the engine never sees this
	config   *Config
}

// NewIndex creates a new Index.
func NewIndex(store Store, embedder Embedder, config *Config) *Index {
	if config == nil {
		config = DefaultConfig()
	}
	return &Index{
		store:    store,
		embedder: embedder,
		config:   config,
	}
}

// Config returns the index configuration.
func (x *Index) Config() Config {
	return *x.config
}

// ForUser returns the view of the index owned by userID.
func (x *Index) ForUser(userID string) *UserIndex {
	return &UserIndex{index: x, userID: userID}
}

// Close releases the underlying store.
func (x *Index) Close() error {
	if x == nil || x.store == nil {
		return nil
	}
	return x.store.Close()
}

func (x *Index) available() bool {
	return x != nil && x.config.Enabled && x.store != nil && x.embedder != nil
}

// UserIndex is one user's slice of the index. A nil *UserIndex behaves as
// an unavailable, empty index.
type UserIndex struct {
	index  *Index
	userID string
}

// Available reports whether the index can store and search.
func (u *UserIndex) Available() bool {
	return u != nil && u.index.available()
}

// Add stores an exchange and returns its id. Failures wrap
// ErrStorageUnavailable.
func (u *UserIndex) Add(ctx context.Context, userMessage, aiResponse string, metadata map[string]string) (string, error) {
	if u == nil || !u.index.available() {
		return "", fmt.Errorf("%w: memory disabled", ErrStorageUnavailable)
	}

	entry := NewEntry(u.userID, userMessage, aiResponse, metadata)

	embedding, err := u.index.embedder.Embed(ctx, entry.Document)
	if err != nil {
		return "", fmt.Errorf("%w: embed document: %v", ErrStorageUnavailable, err)
	}
	entry.Embedding = embedding

	if err := u.index.store.Add(ctx, entry); err != nil {
		return "", fmt.Errorf("%w: add entry: %v", ErrStorageUnavailable, err)
	}

	applog.Debug("[MEMORY] Stored exchange", "user_id", u.userID, "id", entry.ID)
	return entry.ID, nil
}

// Search returns up to k hits, highest relevance first. It never fails:
// an empty or unavailable index yields no hits.
func (u *UserIndex) Search(ctx context.Context, query string, k int) []Hit {
	if u == nil || !u.index.available() || k <= 0 {
		return nil
	}

	embedding, err := u.index.embedder.Embed(ctx, query)
	if err != nil {
		applog.Warn("[MEMORY] Failed to embed query", "user_id", u.userID, "error", err)
		return nil
	}

	hits, err := u.index.store.Query(ctx, u.userID, embedding, k)
	if err != nil {
		applog.Warn("[MEMORY] Query failed", "user_id", u.userID, "error", err)
		return nil
	}

	applog.Debug("[MEMORY] Retrieved memories", "user_id", u.userID, "count", len(hits), "query", truncate(query, 50))
	return hits
}

// Recall searches with the configured limit and returns the single best
// hit above the relevance threshold.
func (u *UserIndex) Recall(ctx context.Context, query string) (Hit, bool) {
	if u == nil || !u.index.available() {
		return Hit{}, false
	}
	cfg := u.index.config
	return Best(u.Search(ctx, query, cfg.SearchLimit), cfg.MinRelevance)
}

// Count returns the number of stored exchanges, or 0 when unavailable.
func (u *UserIndex) Count(ctx context.Context) int {
	if u == nil || !u.index.available() {
		return 0
	}
	n, err := u.index.store.Count(ctx, u.userID)
	if err != nil {
		applog.Warn("[MEMORY] Count failed", "user_id", u.userID, "error", err)
		return 0
	}
	return n
}

// Clear removes every stored exchange for the user.
func (u *UserIndex) Clear(ctx context.Context) error {
	if u == nil || !u.index.available() {
		return fmt.Errorf("%w: memory disabled", ErrStorageUnavailable)
	}
	if err := u.index.store.Clear(ctx, u.userID); err != nil {
		return fmt.Errorf("%w: clear: %v", ErrStorageUnavailable, err)
	}
	applog.Info("[MEMORY] Cleared memories", "user_id", u.userID)
	return nil
}

// Best returns the most relevant hit whose relevance is strictly above
// threshold. Hits are not assumed to be sorted.
func Best(hits []Hit, threshold float64) (Hit, bool) {
	var best Hit
	found := false
	for _, h := range hits {
		if h.Relevance <= threshold {
			continue
		}
		if !found || h.Relevance > best.Relevance {
			best = h
			found = true
		}
	}
	return best, found
}

// Config holds Index configuration.
type Config struct {
	// Enabled toggles the memory system on/off.
	Enabled bool

	// MinRelevance is the threshold a hit must exceed to reach the prompt.
	// Default: 0.6
	MinRelevance float64

	// SearchLimit is the number of candidates fetched per recall.
	// Default: 2
	SearchLimit int
}

// DefaultConfig returns the defaults used by the companion.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		MinRelevance: 0.6,
		SearchLimit:  2,
	}
}
