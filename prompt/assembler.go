// Package prompt builds the system prompt sent with every conversational
// model call.
package prompt

import (
	"fmt"
	"strings"

	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/memory"
	"github.com/becomeliminal/nim-companion/profile"
)

// DefaultPersona is used when the character has no personality at all.
const DefaultPersona = "You are a friendly and supportive AI companion."

// ProactiveSuffix is appended to the system prompt for check-in messages.
const ProactiveSuffix = `Generate a brief, natural proactive message to check in with the user. ` +
	`Keep it warm, caring, and not intrusive. It should feel like a friend checking in, not a notification. ` +
	`Keep it short (1-2 sentences) and reference something from your recent conversation if it fits naturally.`

// Input is everything the assembler reads. Profile and Memory may be nil.
type Input struct {
	Character core.CharacterConfig
	Profile   *profile.UserProfile
	Memory    *memory.Hit
	MaxTokens int
}

// Assemble renders the system prompt. Sections appear in a fixed order and
// are joined by blank lines; empty sections are omitted:
//
//  1. critical directives from the output example and notes
//  2. the character description
//  3. the user profile line
//  4. the single recalled memory
//  5. default guidelines, only when no directive was given
func Assemble(in Input) string {
	var parts []string
	c := in.Character

	directed := false
	if c.OutputExample != "" {
		parts = append(parts, "⚠️ CRITICAL - Output Example & Performance Requirements (MUST FOLLOW EXACTLY):\n"+c.OutputExample)
		directed = true
	}
	if c.Notes != "" {
		if directed {
			parts = append(parts, "⚠️ CRITICAL - Additional Notes (MUST FOLLOW):\n"+c.Notes)
		} else {
			parts = append(parts, "⚠️ CRITICAL - Response Guidelines (MUST FOLLOW):\n"+c.Notes)
			directed = true
		}
	}

	parts = append(parts, character(c)...)

	if line := in.Profile.PromptLine(); line != "" {
		parts = append(parts, line)
	}

	if in.Memory != nil {
		parts = append(parts, "Relevant memory:\n"+in.Memory.Format(memory.PromptSnippetLength))
	}

	if !directed {
		parts = append(parts, Guidelines(in.MaxTokens))
	}

	return strings.Join(parts, "\n\n")
}

// Proactive renders the check-in variant of the system prompt.
func Proactive(in Input) string {
	return Assemble(in) + "\n\n" + ProactiveSuffix
}

func character(c core.CharacterConfig) []string {
	var lines []string
	switch {
	case c.Personality != "":
		lines = append(lines, "Personality: "+c.Personality)
	case c.SimplePersonality != "":
		lines = append(lines, "Personality: "+c.SimplePersonality)
	default:
		lines = append(lines, DefaultPersona)
	}

	labeled := []struct{ label, value string }{
		{"Backstory", c.Backstory},
		{"Traits", c.Traits},
		{"Preferences", c.Preferences},
		{"Worldview Background", c.WorldviewBackground},
		{"Worldview Setting", c.WorldviewSetting},
	}
	for _, l := range labeled {
		if l.value != "" {
			lines = append(lines, l.label+": "+l.value)
		}
	}
	return lines
}

// LengthTarget maps a token budget to the sentence and word ranges the
// model is asked to stay within.
func LengthTarget(maxTokens int) (sentences, words string) {
	switch {
	case maxTokens <= 100:
		return "1-2", "30-50"
	case maxTokens <= 200:
		return "2-3", "50-80"
	default:
		return "2-4", "80-120"
	}
}

// Guidelines returns the default guidance block for maxTokens.
func Guidelines(maxTokens int) string {
	sentences, words := LengthTarget(maxTokens)
	return fmt.Sprintf(`Guidelines:
- Use the user profile information naturally in conversation
- Reference relevant past conversations when appropriate
- Stay consistent with your personality
- Be proactive and caring
- IMPORTANT: Keep responses concise (%s sentences, %s words). Express your complete thought in these few sentences - be brief but complete. Do not start a long response that gets cut off.`, sentences, words)
}
