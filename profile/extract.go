package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/internal/applog"
)

// Extraction is the validated set of facts a model pulled from a
// conversation. A zero Extraction means "nothing new".
type Extraction struct {
	Name              string            `json:"name"`
	PersonalityTraits []string          `json:"personality_traits"`
	Preferences       map[string]string `json:"preferences"`
	Goals             []string          `json:"goals"`
	ImportantDates    map[string]string `json:"important_dates"`
	Facts             []string          `json:"facts"`
}

// IsEmpty reports whether the extraction carries no information.
func (x Extraction) IsEmpty() bool {
	return x.Name == "" && len(x.PersonalityTraits) == 0 && len(x.Preferences) == 0 &&
		len(x.Goals) == 0 && len(x.ImportantDates) == 0 && len(x.Facts) == 0
}

// DefaultExtractionMaxTokens bounds the extraction response.
const DefaultExtractionMaxTokens = 1024

const extractionSystemPrompt = `You are a user profile analyst. Extract key information about the user from the conversation.

CRITICAL: You MUST return ONLY a valid JSON object, with no additional text, explanations, or markdown formatting. Do not include ` + "```json or ```" + ` markers.

Return ONLY this JSON structure (use null for missing fields):
{
  "name": "user's name or null",
  "personality_traits": ["trait1", "trait2"],
  "preferences": {"category": "preference"},
  "goals": ["goal1", "goal2"],
  "important_dates": {"event": "date"},
  "facts": ["fact1", "fact2"]
}

Important:
- Return ONLY the JSON object, nothing else
- Only extract information explicitly mentioned by the user
- Do not infer or assume information
- Use empty arrays [] and empty objects {} if no information found
- Use null for missing string fields
- Ensure valid JSON format (no trailing commas, proper quotes)
- For personality_traits, extract observable traits from the conversation
- For preferences, extract specific likes/dislikes mentioned
- For goals, extract stated goals or aspirations
- For important_dates, extract dates mentioned (birthday, deadlines, etc.)
- For facts, extract other notable information about the user`

const extractionUserPrompt = `Analyze this conversation and extract user information:

%s

Return ONLY the JSON object. Do not include any explanations, markdown formatting, or additional text. Just the JSON.`

// Extractor asks a model for profile facts found in recent turns.
type Extractor struct {
	model     core.Model
	maxTokens int
}

// NewExtractor creates an extractor. maxTokens <= 0 uses
// DefaultExtractionMaxTokens.
func NewExtractor(model core.Model, maxTokens int) *Extractor {
	if maxTokens <= 0 {
		maxTokens = DefaultExtractionMaxTokens
	}
	return &Extractor{model: model, maxTokens: maxTokens}
}

// Extract returns the facts found in turns. It never fails: model and
// parse errors are logged and yield an empty Extraction.
func (e *Extractor) Extract(ctx context.Context, turns []core.Turn) Extraction {
	if len(turns) == 0 {
		return Extraction{}
	}

	prompt := fmt.Sprintf(extractionUserPrompt, FormatConversation(turns))
	messages := []core.Message{{Role: core.RoleUser, Content: prompt}}

	response, err := e.model.Generate(ctx, messages, extractionSystemPrompt, e.maxTokens)
	if err != nil {
		applog.Warn("[PROFILE] Extraction call failed", "error", err)
		return Extraction{}
	}

	x, ok := ParseExtraction(response)
	if !ok {
		applog.Warn("[PROFILE] Could not parse extraction, using empty result", "preview", preview(response, 200))
	}
	return x
}

// FormatConversation renders turns as "User: ..." / "Assistant: ..."
// paragraphs.
func FormatConversation(turns []core.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		role := "Assistant"
		if t.Role == core.RoleUser {
			role = "User"
		}
		lines = append(lines, role+": "+t.Content)
	}
	return strings.Join(lines, "\n\n")
}

// ParseExtraction decodes a model response. It strips code fences, then
// tries the whole text, each balanced {...} object in turn, and finally the
// span from the first "{" to the last "}". ok is false when nothing parsed.
func ParseExtraction(response string) (x Extraction, ok bool) {
	text := stripFences(response)
	if text == "" {
		return Extraction{}, false
	}

	if obj, ok := decodeObject(text); ok {
		return validate(obj), true
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			if obj, ok := decodeObject(text[start : end+1]); ok {
				return validate(obj), true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	first, last := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}')
	if first >= 0 && last > first {
		if obj, ok := decodeObject(text[first : last+1]); ok {
			return validate(obj), true
		}
	}

	return Extraction{}, false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = s[len("```json"):]
	case strings.HasPrefix(s, "```"):
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// matchBrace returns the index of the "}" closing the "{" at start, or -1.
// Braces inside JSON strings are ignored.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	// Trailing content means s was not a single object.
	if dec.More() {
		return nil, false
	}
	return obj, true
}

// validate coerces each field to its expected type. Wrong-typed fields are
// dropped rather than failing the whole extraction.
func validate(obj map[string]any) Extraction {
	var x Extraction
	if name, ok := obj["name"].(string); ok {
		x.Name = strings.TrimSpace(name)
	}
	x.PersonalityTraits = toList(obj["personality_traits"])
	x.Preferences = toMap(obj["preferences"])
	x.Goals = toList(obj["goals"])
	x.ImportantDates = toMap(obj["important_dates"])
	x.Facts = toList(obj["facts"])
	return x
}

func toList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, it := range items {
		if s, ok := scalar(it); ok {
			out = append(out, s)
		}
	}
	return out
}

func toMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := scalar(val); ok && strings.TrimSpace(k) != "" {
			out[k] = s
		}
	}
	return out
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return "", false
		}
		return t, true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
