package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/becomeliminal/nim-companion/core"
)

func TestNew_SelectsProvider(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"mock flag wins", Config{Provider: Anthropic, APIKey: "k", UseMock: true}, "mock"},
		{"mock by name", Config{Provider: "MOCK"}, "mock"},
		{"missing key falls back", Config{Provider: OpenAI}, "mock"},
		{"anthropic", Config{Provider: Anthropic, APIKey: "k"}, "anthropic"},
		{"claude alias", Config{Provider: "claude", APIKey: "k"}, "anthropic"},
		{"openai default", Config{APIKey: "k"}, "openai"},
		{"gemini", Config{Provider: Gemini, APIKey: "k"}, "gemini"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := New(tc.cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			var got string
			switch v := m.(type) {
			case *MockModel:
				got = "mock"
			case *AnthropicModel:
				got = "anthropic"
				if v.model != DefaultAnthropicModel {
					t.Errorf("Expected default model, got %q", v.model)
				}
			case *OpenAIModel:
				got = v.name
			}
			if got != tc.want {
				t.Errorf("Got %s model, want %s", got, tc.want)
			}
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "watson", APIKey: "k"}); err == nil {
		t.Errorf("Expected error for unknown provider")
	}
}

func TestNormalizeTurns(t *testing.T) {
	in := []core.Message{
		{Role: core.RoleAssistant, Content: "Hi there, missed you!"},
		{Role: core.RoleUser, Content: "hey"},
		{Role: core.RoleUser, Content: "you there?"},
		{Role: core.RoleAssistant, Content: ""},
		{Role: core.RoleAssistant, Content: "Yes!"},
	}

	got := normalizeTurns(in)
	if len(got) != 2 {
		t.Fatalf("Expected 2 alternating turns, got %d: %+v", len(got), got)
	}
	if got[0].Role != core.RoleUser || got[0].Content != "hey\n\nyou there?" {
		t.Errorf("Unexpected first turn: %+v", got[0])
	}
	if got[1].Role != core.RoleAssistant || got[1].Content != "Yes!" {
		t.Errorf("Unexpected second turn: %+v", got[1])
	}
	if in[1].Content != "hey" {
		t.Errorf("Input should not be mutated")
	}
}

func TestMock_DeterministicAndBounded(t *testing.T) {
	m := NewMock(0)
	msgs := []core.Message{{Role: core.RoleUser, Content: "What should I cook tonight?"}}

	a, err := m.Generate(context.Background(), msgs, "", 250)
	if err != nil || a == "" {
		t.Fatalf("Generate = %q, %v", a, err)
	}
	b, _ := m.Generate(context.Background(), msgs, "", 250)
	if a != b {
		t.Errorf("Mock should be deterministic: %q vs %q", a, b)
	}

	short, _ := m.Generate(context.Background(), msgs, "", 10)
	if len(short) > 23 {
		t.Errorf("Expected reply cut to the token budget, got %d bytes", len(short))
	}
}

func TestMock_DelayHonoursContext(t *testing.T) {
	m := NewMock(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Generate(ctx, nil, "", 100)
	if !core.IsModelError(err, core.ErrorKindTimeout) {
		t.Errorf("Expected timeout model error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected wrapped deadline error, got %v", err)
	}
}
