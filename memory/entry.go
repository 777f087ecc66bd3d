package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxSnippetLength bounds the stored user and assistant snippets.
	MaxSnippetLength = 500

	// PromptSnippetLength bounds each side of a hit injected into a prompt.
	PromptSnippetLength = 100
)

// Entry is one completed user/assistant exchange stored in the index.
// Entries are never mutated after creation.
type Entry struct {
	ID          string
	OwnerID     string
	Document    string
	UserSnippet string
	AISnippet   string
	Timestamp   time.Time
	Metadata    map[string]string
	Embedding   []float32
}

// NewEntry builds an entry for a user message and the assistant's reply.
func NewEntry(ownerID, userMessage, aiResponse string, metadata map[string]string) *Entry {
	now := time.Now().UTC()
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}

	return &Entry{
		ID:          newEntryID(now),
		OwnerID:     ownerID,
		Document:    FormatDocument(userMessage, aiResponse),
		UserSnippet: truncateRunes(userMessage, MaxSnippetLength),
		AISnippet:   truncateRunes(aiResponse, MaxSnippetLength),
		Timestamp:   now,
		Metadata:    md,
	}
}

// FormatDocument renders an exchange as the text that gets embedded.
func FormatDocument(userMessage, aiResponse string) string {
	return fmt.Sprintf("User: %s\nAssistant: %s", userMessage, aiResponse)
}

// Hit is a search result derived from a stored entry.
type Hit struct {
	ID          string
	UserSnippet string
	AISnippet   string
	Timestamp   time.Time

	// Relevance is 1 - cosine distance, clamped to [0, 1].
	Relevance float64
}

// Format renders the hit for prompt injection with each side cut to at
// most maxLen characters.
func (h Hit) Format(maxLen int) string {
	return fmt.Sprintf("U: %s\nA: %s", truncate(h.UserSnippet, maxLen), truncate(h.AISnippet, maxLen))
}

// ClampRelevance converts a cosine similarity to a relevance in [0, 1].
func ClampRelevance(similarity float64) float64 {
	switch {
	case similarity < 0:
		return 0
	case similarity > 1:
		return 1
	default:
		return similarity
	}
}

func newEntryID(now time.Time) string {
	return fmt.Sprintf("conv_%d_%s", now.UnixNano(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

const ellipsis = "..."

// truncate cuts s to at most maxLen characters, the trailing "..." included.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= len(ellipsis) {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-len(ellipsis)]) + ellipsis
}

// truncateRunes cuts s to maxLen characters without a marker.
func truncateRunes(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
