package profile

import (
	"context"
	"fmt"

	"github.com/becomeliminal/nim-companion/internal/applog"
)

// Store persists profiles. LoadProfile returns (nil, nil) for unknown users.
type Store interface {
	LoadProfile(ctx context.Context, userID string) (*UserProfile, error)
	SaveProfile(ctx context.Context, userID string, p *UserProfile) error
}

// Merge applies x to p and reports whether anything changed. When it did,
// LastUpdated is refreshed.
//
//   - Name is set only while the profile has none.
//   - Traits, goals and facts gain items not already present, in order.
//   - Preferences and important dates take new keys and changed values;
//     empty keys or values are ignored.
func Merge(p *UserProfile, x Extraction) bool {
	p.Normalize()
	changed := false

	if p.Name == "" && x.Name != "" {
		p.Name = x.Name
		changed = true
	}

	changed = appendNew(&p.PersonalityTraits, x.PersonalityTraits) || changed
	changed = appendNew(&p.Goals, x.Goals) || changed
	changed = appendNew(&p.Facts, x.Facts) || changed
	changed = upsert(p.Preferences, x.Preferences) || changed
	changed = upsert(p.ImportantDates, x.ImportantDates) || changed

	if changed {
		p.LastUpdated = now()
	}
	return changed
}

func appendNew(dst *[]string, items []string) bool {
	changed := false
	for _, item := range items {
		if item == "" || contains(*dst, item) {
			continue
		}
		*dst = append(*dst, item)
		changed = true
	}
	return changed
}

func upsert(dst map[string]string, items map[string]string) bool {
	changed := false
	for k, v := range items {
		if k == "" || v == "" {
			continue
		}
		if cur, ok := dst[k]; ok && cur == v {
			continue
		}
		dst[k] = v
		changed = true
	}
	return changed
}

func contains(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}

// ShouldUpdate reports whether extraction should run after the given
// number of completed conversations: every 5 up to 20, every 10 up to 50,
// then every 15 counted from 50 (65, 80, 95, ...).
func ShouldUpdate(count int) bool {
	switch {
	case count <= 0:
		return false
	case count <= 20:
		return count%5 == 0
	case count <= 50:
		return count%10 == 0
	default:
		return (count-50)%15 == 0
	}
}

// Merger applies extractions and persists changed profiles.
type Merger struct {
	store Store
}

// NewMerger creates a merger. A nil store keeps profiles in memory only.
func NewMerger(store Store) *Merger {
	return &Merger{store: store}
}

// Apply merges x into p and saves p when something changed. A persistence
// failure is returned but the in-memory change is kept.
func (m *Merger) Apply(ctx context.Context, userID string, p *UserProfile, x Extraction) (bool, error) {
	if !Merge(p, x) {
		applog.Debug("[PROFILE] Extraction added nothing", "user_id", userID)
		return false, nil
	}

	applog.Info("[PROFILE] Profile updated", "user_id", userID, "summary", p.Summary())

	if m.store == nil {
		return true, nil
	}
	if err := m.store.SaveProfile(ctx, userID, p); err != nil {
		return true, fmt.Errorf("save profile: %w", err)
	}
	return true, nil
}
