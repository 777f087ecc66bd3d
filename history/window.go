// Package history selects and trims the short-term conversation context.
package history

import (
	"strings"
	"unicode"

	"github.com/becomeliminal/nim-companion/core"
)

// Window sizes chosen by Select.
const (
	SimpleWindow   = 3
	ModerateWindow = 8
	ComplexWindow  = 15

	// MaxPersistedTurns is the number of turns kept after every completed turn.
	MaxPersistedTurns = 20

	shortWordLimit    = 10
	moderateWordLimit = 30
)

var greetings = []string{"hello", "hi", "hey", "你好", "嗨"}

// Kind describes how a message was classified.
type Kind struct {
	Greeting bool
	Short    bool
	Question bool
	Words    int
}

// Classify evaluates the greeting, short and question predicates.
func Classify(message string) Kind {
	words := strings.Fields(message)
	return Kind{
		Greeting: isGreeting(message),
		Short:    len(words) < shortWordLimit,
		Question: strings.ContainsAny(message, "?？"),
		Words:    len(words),
	}
}

// WindowSize returns the number of recent turns to keep for message.
func WindowSize(message string) int {
	k := Classify(message)
	switch {
	case k.Greeting, k.Short && !k.Question:
		return SimpleWindow
	case k.Words < moderateWordLimit:
		return ModerateWindow
	default:
		return ComplexWindow
	}
}

// Select returns the most recent turns appropriate for message. The result
// is a new slice; turns is not modified.
func Select(turns []core.Turn, message string) []core.Turn {
	return Last(turns, WindowSize(message))
}

// Trim keeps at most max of the most recent turns.
func Trim(turns []core.Turn, max int) []core.Turn {
	if len(turns) <= max {
		return turns
	}
	return Last(turns, max)
}

// Last copies the final n turns.
func Last(turns []core.Turn, n int) []core.Turn {
	if n < 0 {
		n = 0
	}
	start := len(turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]core.Turn, len(turns)-start)
	copy(out, turns[start:])
	return out
}

func isGreeting(message string) bool {
	lower := strings.ToLower(message)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, g := range greetings {
		if isASCII(g) {
			for _, tok := range tokens {
				if tok == g {
					return true
				}
			}
			continue
		}
		// CJK text is not space delimited.
		if strings.Contains(lower, g) {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
