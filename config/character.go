package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/internal/applog"
)

// CharacterSource supplies the persona for a user.
type CharacterSource interface {
	Character(userID string) (core.CharacterConfig, error)
}

// CharacterSourceFunc adapts a function to CharacterSource.
type CharacterSourceFunc func(userID string) (core.CharacterConfig, error)

func (f CharacterSourceFunc) Character(userID string) (core.CharacterConfig, error) {
	return f(userID)
}

// StaticCharacters serves the same persona to every user.
func StaticCharacters(c core.CharacterConfig) CharacterSource {
	return CharacterSourceFunc(func(string) (core.CharacterConfig, error) {
		return c, nil
	})
}

// LoadCharacter reads a character file. YAML and JSON are both accepted.
// A file holding nothing but a "personality" string is the legacy format
// and becomes the simple personality. A missing file yields an empty
// config and a nil error.
func LoadCharacter(path string) (core.CharacterConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return core.CharacterConfig{}, nil
	}
	if err != nil {
		return core.CharacterConfig{}, fmt.Errorf("read character file %q: %w", path, err)
	}
	return ParseCharacter(data)
}

// ParseCharacter decodes a character definition.
func ParseCharacter(data []byte) (core.CharacterConfig, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return core.CharacterConfig{}, fmt.Errorf("parse character: %w", err)
	}
	if len(raw) == 1 {
		if p, ok := raw["personality"].(string); ok {
			return core.CharacterConfig{SimplePersonality: p}, nil
		}
	}

	var c core.CharacterConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return core.CharacterConfig{}, fmt.Errorf("parse character: %w", err)
	}
	return c, nil
}

// DirCharacters resolves <Dir>/<user>/character.yaml (or .json) per user,
// filling empty fields from Global.
type DirCharacters struct {
	Dir    string
	Global core.CharacterConfig
}

// Character implements CharacterSource. Unreadable per-user files are
// logged and the global persona is used.
func (d DirCharacters) Character(userID string) (core.CharacterConfig, error) {
	if d.Dir == "" || userID == "" {
		return d.Global, nil
	}

	seg := url.PathEscape(userID)
	if seg == "." || seg == ".." {
		return d.Global, nil
	}

	for _, name := range []string{"character.yaml", "character.yml", "character.json"} {
		path := filepath.Join(d.Dir, seg, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		c, err := LoadCharacter(path)
		if err != nil {
			applog.Warn("[CONFIG] Ignoring unreadable character file", "path", path, "error", err)
			return d.Global, nil
		}
		return c.Merge(d.Global), nil
	}
	return d.Global, nil
}
