package core

// CharacterConfig describes the companion's persona. It is owned by
// configuration storage and read-only here.
type CharacterConfig struct {
	Personality         string `json:"personality" yaml:"personality"`
	Backstory           string `json:"backstory" yaml:"backstory"`
	Traits              string `json:"traits" yaml:"traits"`
	Preferences         string `json:"preferences" yaml:"preferences"`
	OutputExample       string `json:"output_example" yaml:"output_example"`
	WorldviewBackground string `json:"worldview_background" yaml:"worldview_background"`
	WorldviewSetting    string `json:"worldview_setting" yaml:"worldview_setting"`
	Notes               string `json:"notes" yaml:"notes"`

	// SimplePersonality is the single-string persona used when Personality
	// is empty.
	SimplePersonality string `json:"simple_personality,omitempty" yaml:"simple_personality,omitempty"`
}

// Merge returns c with every empty field filled from fallback.
func (c CharacterConfig) Merge(fallback CharacterConfig) CharacterConfig {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return CharacterConfig{
		Personality:         pick(c.Personality, fallback.Personality),
		Backstory:           pick(c.Backstory, fallback.Backstory),
		Traits:              pick(c.Traits, fallback.Traits),
		Preferences:         pick(c.Preferences, fallback.Preferences),
		OutputExample:       pick(c.OutputExample, fallback.OutputExample),
		WorldviewBackground: pick(c.WorldviewBackground, fallback.WorldviewBackground),
		WorldviewSetting:    pick(c.WorldviewSetting, fallback.WorldviewSetting),
		Notes:               pick(c.Notes, fallback.Notes),
		SimplePersonality:   pick(c.SimplePersonality, fallback.SimplePersonality),
	}
}
