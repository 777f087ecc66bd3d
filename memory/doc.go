// Package memory stores past exchanges as embedded documents and recalls
// the most relevant one for a new message.
//
// Memories are namespaced by user id. Each completed turn adds one Entry
// ("User: ...\nAssistant: ..."); recall surfaces at most one Hit, and only
// when its relevance exceeds Config.MinRelevance.
//
// Architecture:
//   - Store: vector storage backend (chromem-go, in memory or on disk)
//   - Embedder: text-to-vector conversion (mock, remote API, ONNX, cached)
//   - Index: embeds, stores and queries; UserIndex binds it to one user
//
// Every failure to reach the store wraps ErrStorageUnavailable and is
// treated as non-fatal by the engine.
package memory
