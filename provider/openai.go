package provider

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/becomeliminal/nim-companion/core"
)

// OpenAIModel calls a Chat Completions endpoint. It serves OpenAI itself
// and any OpenAI-compatible API such as Gemini's.
type OpenAIModel struct {
	client openai.Client
	model  string
	name   string
}

// NewOpenAI creates a Chat Completions model. name labels errors and logs.
func NewOpenAI(name string, cfg Config) *OpenAIModel {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIModel{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		name:   name,
	}
}

// Generate implements core.Model.
func (m *OpenAIModel) Generate(ctx context.Context, messages []core.Message, systemPrompt string, maxTokens int) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.model),
		Messages: toOpenAIMessages(messages, systemPrompt),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", core.NewModelError(m.name, apiErr.StatusCode, err)
		}
		return "", core.NewModelError(m.name, 0, err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []core.Message, systemPrompt string) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.SystemMessage(systemPrompt))
	}
	for _, msg := range messages {
		if msg.Role == core.RoleUser {
			out = append(out, openai.UserMessage(msg.Content))
		} else {
			out = append(out, openai.AssistantMessage(msg.Content))
		}
	}
	return out
}
