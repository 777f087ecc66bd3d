package provider

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/becomeliminal/nim-companion/core"
)

var mockOpeners = []string{
	"That's an interesting question! Let me think about that...",
	"I understand what you're asking. Here's my perspective:",
	"Thanks for sharing that with me. I'd like to respond by saying:",
	"That's a thoughtful point. From my experience:",
	"I appreciate you asking. My thoughts on this are:",
	"That's something I've been thinking about too. Here's what I think:",
	"I see what you mean. Let me offer this perspective:",
	"That's a great question! I believe:",
}

var mockBodies = []string{
	"I think we should consider different perspectives.",
	"There are many ways to approach this.",
	"It's important to remember that everyone has their own view.",
	"I find this topic fascinating.",
	"Let's explore this together.",
	"I'm here to help you think through this.",
	"This reminds me of something important.",
	"I'd love to discuss this more with you.",
}

// MockModel returns canned replies without calling any API. Replies are
// picked deterministically from the last user message.
type MockModel struct {
	delay time.Duration
}

// NewMock creates a mock that waits delay before answering.
func NewMock(delay time.Duration) *MockModel {
	return &MockModel{delay: delay}
}

// Generate implements core.Model.
func (m *MockModel) Generate(ctx context.Context, messages []core.Message, systemPrompt string, maxTokens int) (string, error) {
	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", core.NewModelError(Mock, 0, ctx.Err())
		case <-timer.C:
		}
	}

	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			last = messages[i].Content
			break
		}
	}

	h := fnv.New32a()
	h.Write([]byte(last))
	sum := h.Sum32()

	reply := mockOpeners[sum%uint32(len(mockOpeners))] + " " + mockBodies[(sum/7)%uint32(len(mockBodies))]
	if maxTokens > 0 && len(reply) > maxTokens*2 {
		reply = reply[:maxTokens*2] + "..."
	}
	return reply, nil
}
