package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/nim-companion/core"
)

// AnthropicModel calls the Claude Messages API.
type AnthropicModel struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates a Claude-backed model.
func NewAnthropic(cfg Config) *AnthropicModel {
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
	return &AnthropicModel{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
	}
}

// Generate implements core.Model.
func (m *AnthropicModel) Generate(ctx context.Context, messages []core.Message, systemPrompt string, maxTokens int) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: int64(maxTokens),
		Messages:  toAnthropicMessages(messages),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return "", anthropicError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

// toAnthropicMessages converts turns to the alternating user/assistant
// sequence the Messages API requires: leading assistant turns are dropped
// and consecutive turns of the same role are joined.
func toAnthropicMessages(messages []core.Message) []anthropic.MessageParam {
	turns := normalizeTurns(messages)
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == core.RoleUser {
			out = append(out, anthropic.NewUserMessage(block))
		} else {
			out = append(out, anthropic.NewAssistantMessage(block))
		}
	}
	return out
}

func normalizeTurns(messages []core.Message) []core.Message {
	var out []core.Message
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		if len(out) == 0 && msg.Role != core.RoleUser {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == msg.Role {
			out[n-1].Content += "\n\n" + msg.Content
			continue
		}
		out = append(out, msg)
	}
	return out
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return core.NewModelError(Anthropic, apiErr.StatusCode, err)
	}
	return core.NewModelError(Anthropic, 0, err)
}
