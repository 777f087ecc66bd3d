package remote

import "testing"

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Provider: "openai"}); err == nil {
		t.Errorf("Expected error for openai without API key")
	}
	if _, err := New(Config{Provider: "openai-compat", BaseURL: "http://localhost:8000/v1"}); err == nil {
		t.Errorf("Expected error for openai-compat without model")
	}
	if _, err := New(Config{Provider: "nope"}); err == nil {
		t.Errorf("Expected error for unknown provider")
	}

	e, err := New(Config{Provider: "ollama"})
	if err != nil {
		t.Fatalf("Failed to create ollama embedder: %v", err)
	}
	if e.Dimensions() != 768 {
		t.Errorf("Expected default 768 dims, got %d", e.Dimensions())
	}
}
