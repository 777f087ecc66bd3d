// Package remote embeds text through hosted or self-hosted embedding APIs,
// using the embedding functions shipped with chromem-go.
package remote

import (
	"context"
	"fmt"
	"strings"

	chromem "github.com/philippgille/chromem-go"
)

// Config selects the embedding API.
type Config struct {
	// Provider is one of "openai", "ollama" or "openai-compat".
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	// Dimensions is the vector size the model returns.
	Dimensions int
}

// Embedder calls a remote embedding API.
type Embedder struct {
	embed      chromem.EmbeddingFunc
	dimensions int
}

// New builds an embedder for cfg.
func New(cfg Config) (*Embedder, error) {
	var fn chromem.EmbeddingFunc

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedder requires an API key")
		}
		model := chromem.EmbeddingModelOpenAI3Small
		if cfg.Model != "" {
			model = chromem.EmbeddingModelOpenAI(cfg.Model)
		}
		fn = chromem.NewEmbeddingFuncOpenAI(cfg.APIKey, model)
		if cfg.Dimensions == 0 {
			cfg.Dimensions = 1536
		}
	case "ollama":
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		fn = chromem.NewEmbeddingFuncOllama(model, cfg.BaseURL)
		if cfg.Dimensions == 0 {
			cfg.Dimensions = 768
		}
	case "openai-compat":
		if cfg.BaseURL == "" || cfg.Model == "" {
			return nil, fmt.Errorf("openai-compat embedder requires base URL and model")
		}
		fn = chromem.NewEmbeddingFuncOpenAICompat(cfg.BaseURL, cfg.APIKey, cfg.Model, nil)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	return &Embedder{embed: fn, dimensions: cfg.Dimensions}, nil
}

// Embed converts text to a vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("remote embed: %w", err)
	}
	return v, nil
}

// Dimensions returns the configured vector size; 0 means unknown.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
