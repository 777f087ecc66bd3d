// Package cached memoizes embeddings in a bounded ristretto cache so
// repeated queries (greetings, retried turns) skip the embedding call.
package cached

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-companion/memory"
)

// Config configures the cache.
type Config struct {
	// MaxEntries bounds the number of cached vectors. Default: 10000.
	MaxEntries int64

	// TTL expires entries. Zero keeps them until evicted.
	TTL time.Duration
}

// Embedder wraps another embedder with a cache.
type Embedder struct {
	next  memory.Embedder
	cache *ristretto.Cache
	ttl   time.Duration
}

// New wraps next.
func New(next memory.Embedder, cfg Config) (*Embedder, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &Embedder{next: next, cache: cache, ttl: cfg.TTL}, nil
}

// Embed returns the cached vector for text, computing it on a miss.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		if emb, ok := v.([]float32); ok {
			return emb, nil
		}
	}

	emb, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if e.ttl > 0 {
		e.cache.SetWithTTL(text, emb, 1, e.ttl)
	} else {
		e.cache.Set(text, emb, 1)
	}
	return emb, nil
}

// Dimensions returns the wrapped embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// Wait blocks until pending cache writes are applied.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close stops the cache's background goroutines.
func (e *Embedder) Close() {
	e.cache.Close()
}
