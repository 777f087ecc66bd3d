// Package core holds the types shared by every layer of the companion:
// conversation turns, the model capability and character configuration.
package core

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a user's conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Proactive marks assistant turns that were generated without a user
	// message, such as idle check-ins.
	Proactive bool `json:"proactive,omitempty"`
}

// Message is the role/content pair handed to a model.
type Message struct {
	Role    Role
	Content string
}

// NewUserTurn creates a user turn.
func NewUserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// NewAssistantTurn creates an assistant turn.
func NewAssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// Message converts the turn for submission to a model.
func (t Turn) Message() Message {
	return Message{Role: t.Role, Content: t.Content}
}

// Messages converts a slice of turns, preserving order.
func Messages(turns []Turn) []Message {
	out := make([]Message, len(turns))
	for i, t := range turns {
		out[i] = t.Message()
	}
	return out
}
