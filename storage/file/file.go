// Package file stores profiles and history as JSON documents on disk,
// one directory per user.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/internal/applog"
	"github.com/becomeliminal/nim-companion/profile"
)

const (
	profileFile = "profile.json"
	historyFile = "history.json"
)

// Store keeps <dir>/<user>/profile.json and <dir>/<user>/history.json.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates the base directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// LoadProfile returns nil, nil when the user has no profile yet.
func (s *Store) LoadProfile(ctx context.Context, userID string) (*profile.UserProfile, error) {
	var p profile.UserProfile
	found, err := s.read(userID, profileFile, &p)
	if err != nil || !found {
		return nil, err
	}
	p.Normalize()
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, userID string, p *profile.UserProfile) error {
	return s.write(userID, profileFile, p)
}

// LoadHistory returns an empty slice when the user has no history yet.
func (s *Store) LoadHistory(ctx context.Context, userID string) ([]core.Turn, error) {
	turns := []core.Turn{}
	if _, err := s.read(userID, historyFile, &turns); err != nil {
		return []core.Turn{}, err
	}
	return turns, nil
}

func (s *Store) SaveHistory(ctx context.Context, userID string, turns []core.Turn) error {
	if turns == nil {
		turns = []core.Turn{}
	}
	return s.write(userID, historyFile, turns)
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) path(userID, name string) (string, error) {
	seg := url.PathEscape(userID)
	if seg == "" || seg == "." || seg == ".." {
		return "", fmt.Errorf("invalid user id %q", userID)
	}
	return filepath.Join(s.dir, seg, name), nil
}

func (s *Store) read(userID, name string, v any) (bool, error) {
	path, err := s.path(userID, name)
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		applog.Warn("[STORAGE/File] Corrupt document", "path", path, "error", err)
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// write replaces the document atomically via a temp file and rename.
func (s *Store) write(userID, name string, v any) error {
	path, err := s.path(userID, name)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create user dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}

	applog.Debug("[STORAGE/File] Saved", "user_id", userID, "file", name, "bytes", len(data))
	return nil
}
