// Package provider implements core.Model for the hosted chat APIs the
// companion can talk to, plus an offline mock.
//
// Use New to build a model from configuration:
//
//	model, err := provider.New(provider.Config{
//		Provider: provider.Anthropic,
//		APIKey:   os.Getenv("ANTHROPIC_API_KEY"),
//	})
package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/internal/applog"
)

// Provider names.
const (
	Anthropic = "anthropic"
	OpenAI    = "openai"
	Gemini    = "gemini"
	Mock      = "mock"
)

// Default models per provider.
const (
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultGeminiModel    = "gemini-2.5-flash"
)

// GeminiBaseURL is Google's OpenAI-compatible endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	// UseMock forces the mock regardless of Provider.
	UseMock   bool
	MockDelay time.Duration

	MaxRetries int
	// Timeout bounds a single HTTP request; zero uses the SDK default.
	Timeout time.Duration
}

// New builds the configured model. A hosted provider without an API key
// falls back to the mock with a warning so the service still starts.
func New(cfg Config) (core.Model, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch name {
	case "":
		name = OpenAI
	case "claude":
		name = Anthropic
	}

	if cfg.UseMock || name == Mock {
		applog.Info("[PROVIDER] Using mock model", "delay", cfg.MockDelay)
		return NewMock(cfg.MockDelay), nil
	}

	if cfg.APIKey == "" {
		applog.Warn("[PROVIDER] No API key configured, falling back to mock model", "provider", name)
		return NewMock(cfg.MockDelay), nil
	}

	switch name {
	case Anthropic:
		if cfg.Model == "" {
			cfg.Model = DefaultAnthropicModel
		}
		applog.Info("[PROVIDER] Using Anthropic", "model", cfg.Model)
		return NewAnthropic(cfg), nil

	case OpenAI:
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIModel
		}
		applog.Info("[PROVIDER] Using OpenAI", "model", cfg.Model, "base_url", cfg.BaseURL)
		return NewOpenAI(OpenAI, cfg), nil

	case Gemini:
		if cfg.Model == "" {
			cfg.Model = DefaultGeminiModel
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = GeminiBaseURL
		}
		applog.Info("[PROVIDER] Using Gemini via OpenAI-compatible endpoint", "model", cfg.Model)
		return NewOpenAI(Gemini, cfg), nil

	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
