package memory

import (
	"context"
	"errors"
)

// ErrStorageUnavailable is wrapped by every failure to reach the index.
// Callers treat it as non-fatal: the turn continues without memory.
var ErrStorageUnavailable = errors.New("memory storage unavailable")

// Store is the vector storage backend.
// Implementations: chromem (embedded, optionally persisted to disk).
type Store interface {
	// Add saves an entry. The entry's embedding must be set.
	Add(ctx context.Context, entry *Entry) error

	// Query returns up to limit entries owned by userID ordered by
	// relevance, highest first. An empty collection yields no results and
	// no error.
	Query(ctx context.Context, userID string, embedding []float32, limit int) ([]Hit, error)

	// Count returns the number of entries owned by userID.
	Count(ctx context.Context, userID string) (int, error)

	// Clear removes every entry owned by userID.
	Clear(ctx context.Context, userID string) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock (tests), remote (OpenAI/Ollama), cached (wraps
// another embedder), onnx (local model, build tag onnx).
//
// Embedder is an implementation detail of Index; the engine never calls it.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
