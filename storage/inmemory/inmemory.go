// Package inmemory keeps profiles and history in process memory.
package inmemory

import (
	"context"
	"sync"

	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/profile"
)

// Store is safe for concurrent use. Values are copied in and out so callers
// never share state with the store.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*profile.UserProfile
	history  map[string][]core.Turn
}

func New() *Store {
	return &Store{
		profiles: make(map[string]*profile.UserProfile),
		history:  make(map[string][]core.Turn),
	}
}

func (s *Store) LoadProfile(ctx context.Context, userID string) (*profile.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (s *Store) SaveProfile(ctx context.Context, userID string, p *profile.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = p.Clone()
	return nil
}

func (s *Store) LoadHistory(ctx context.Context, userID string) ([]core.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Turn{}, s.history[userID]...), nil
}

func (s *Store) SaveHistory(ctx context.Context, userID string, turns []core.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[userID] = append([]core.Turn(nil), turns...)
	return nil
}

func (s *Store) Close() error { return nil }
