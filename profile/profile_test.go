package profile_test

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/becomeliminal/nim-companion/profile"
)

func sampleProfile() *profile.UserProfile {
	created := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	return &profile.UserProfile{
		Name:              "Zoë",
		PersonalityTraits: []string{"curious", "warm", "dry humour", "patient"},
		Preferences:       map[string]string{"music": "lo-fi", "食物": "拉面"},
		Goals:             []string{"learn guitar", "run 10k", "read more", "sleep earlier"},
		ImportantDates:    map[string]string{"birthday": "1995-03-15"},
		Facts:             []string{"has a cat 🐱", "lives in Porto", "nurse", "vegetarian", "twin", "left-handed"},
		ConversationCount: 17,
		CreatedAt:         created,
		LastUpdated:       created.Add(48 * time.Hour),
	}
}

func TestUserProfile_JSONRoundTrip(t *testing.T) {
	p := sampleProfile()

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	var got profile.UserProfile
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	if !got.CreatedAt.Equal(p.CreatedAt) || !got.LastUpdated.Equal(p.LastUpdated) {
		t.Errorf("Timestamps did not round-trip")
	}
	got.CreatedAt, got.LastUpdated = p.CreatedAt, p.LastUpdated
	if !reflect.DeepEqual(&got, p) {
		t.Errorf("Round trip mismatch:\n got %+v\nwant %+v", got, *p)
	}
}

func TestUserProfile_EmptyRoundTripKeepsEmptyCollections(t *testing.T) {
	data, _ := json.Marshal(profile.New())
	for _, key := range []string{`"goals":[]`, `"preferences":{}`, `"name":""`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("Expected %s in %s", key, data)
		}
	}
}

func TestUserProfile_PromptLine(t *testing.T) {
	got := sampleProfile().PromptLine()
	want := "User: Zoë | Traits: curious, warm, dry humour | Goals: learn guitar, run 10k, read more | " +
		"Important facts: has a cat 🐱, lives in Porto, nurse, vegetarian, twin"
	if got != want {
		t.Errorf("PromptLine:\n got %q\nwant %q", got, want)
	}

	onlyGoals := profile.New()
	onlyGoals.Goals = []string{"learn guitar"}
	if got := onlyGoals.PromptLine(); got != "Goals: learn guitar" {
		t.Errorf("Expected missing fields to drop silently, got %q", got)
	}
	if got := profile.New().PromptLine(); got != "" {
		t.Errorf("Expected empty line for empty profile, got %q", got)
	}
}

func TestUserProfile_SummaryAndReset(t *testing.T) {
	p := sampleProfile()
	if got := p.Summary(); got != "Name: Zoë | Traits: curious, warm, dry humour | Goals: 4 items | Preferences: 2 items | Conversations: 17" {
		t.Errorf("Unexpected summary %q", got)
	}

	created := p.CreatedAt
	p.Reset()
	if !p.IsEmpty() || p.ConversationCount != 0 {
		t.Errorf("Reset should clear learned fields: %+v", p)
	}
	if !p.CreatedAt.Equal(created) {
		t.Errorf("Reset should keep CreatedAt")
	}
}
