// Package profile maintains the long-term structured profile of a user:
// the record itself, extraction of facts from conversation, and the rules
// for merging them in.
package profile

import (
	"fmt"
	"strings"
	"time"
)

// UserProfile holds durable facts about one user. PersonalityTraits, Goals
// and Facts never contain duplicates.
type UserProfile struct {
	Name              string            `json:"name"`
	PersonalityTraits []string          `json:"personality_traits"`
	Preferences       map[string]string `json:"preferences"`
	Goals             []string          `json:"goals"`
	ImportantDates    map[string]string `json:"important_dates"`
	Facts             []string          `json:"facts"`
	ConversationCount int               `json:"conversation_count"`
	CreatedAt         time.Time         `json:"created_at"`
	LastUpdated       time.Time         `json:"last_updated"`
}

// New returns an empty profile stamped with the current time.
func New() *UserProfile {
	now := now()
	return &UserProfile{
		PersonalityTraits: []string{},
		Preferences:       map[string]string{},
		Goals:             []string{},
		ImportantDates:    map[string]string{},
		Facts:             []string{},
		CreatedAt:         now,
		LastUpdated:       now,
	}
}

// now is replaced in tests.
var now = func() time.Time {
	return time.Now().UTC().Round(0)
}

// Normalize replaces nil collections with empty ones so a loaded profile
// behaves like a fresh one.
func (p *UserProfile) Normalize() {
	if p.PersonalityTraits == nil {
		p.PersonalityTraits = []string{}
	}
	if p.Preferences == nil {
		p.Preferences = map[string]string{}
	}
	if p.Goals == nil {
		p.Goals = []string{}
	}
	if p.ImportantDates == nil {
		p.ImportantDates = map[string]string{}
	}
	if p.Facts == nil {
		p.Facts = []string{}
	}
}

// IsEmpty reports whether nothing has been learned about the user yet.
func (p *UserProfile) IsEmpty() bool {
	return p.Name == "" &&
		len(p.PersonalityTraits) == 0 &&
		len(p.Preferences) == 0 &&
		len(p.Goals) == 0 &&
		len(p.ImportantDates) == 0 &&
		len(p.Facts) == 0
}

// Reset forgets everything learned, keeping CreatedAt.
func (p *UserProfile) Reset() {
	created := p.CreatedAt
	*p = *New()
	p.CreatedAt = created
}

// Clone returns a deep copy.
func (p *UserProfile) Clone() *UserProfile {
	c := *p
	c.PersonalityTraits = append([]string{}, p.PersonalityTraits...)
	c.Goals = append([]string{}, p.Goals...)
	c.Facts = append([]string{}, p.Facts...)
	c.Preferences = make(map[string]string, len(p.Preferences))
	for k, v := range p.Preferences {
		c.Preferences[k] = v
	}
	c.ImportantDates = make(map[string]string, len(p.ImportantDates))
	for k, v := range p.ImportantDates {
		c.ImportantDates[k] = v
	}
	return &c
}

// Summary is a one-line description for logs.
func (p *UserProfile) Summary() string {
	var parts []string
	if p.Name != "" {
		parts = append(parts, "Name: "+p.Name)
	}
	if len(p.PersonalityTraits) > 0 {
		parts = append(parts, "Traits: "+strings.Join(head(p.PersonalityTraits, 3), ", "))
	}
	if len(p.Goals) > 0 {
		parts = append(parts, fmt.Sprintf("Goals: %d items", len(p.Goals)))
	}
	if len(p.Preferences) > 0 {
		parts = append(parts, fmt.Sprintf("Preferences: %d items", len(p.Preferences)))
	}
	parts = append(parts, fmt.Sprintf("Conversations: %d", p.ConversationCount))
	return strings.Join(parts, " | ")
}

// PromptLine renders the profile as a single pipe-joined line for the
// system prompt: name, up to 3 traits, up to 3 goals and up to 5 facts.
// It returns "" when none of those are known.
func (p *UserProfile) PromptLine() string {
	if p == nil {
		return ""
	}
	var parts []string
	if p.Name != "" {
		parts = append(parts, "User: "+p.Name)
	}
	if len(p.PersonalityTraits) > 0 {
		parts = append(parts, "Traits: "+strings.Join(head(p.PersonalityTraits, 3), ", "))
	}
	if len(p.Goals) > 0 {
		parts = append(parts, "Goals: "+strings.Join(head(p.Goals, 3), ", "))
	}
	if len(p.Facts) > 0 {
		parts = append(parts, "Important facts: "+strings.Join(head(p.Facts, 5), ", "))
	}
	return strings.Join(parts, " | ")
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
