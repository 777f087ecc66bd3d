package engine

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry maps user ids to live sessions. Get-or-create is atomic per
// user: concurrent first requests for the same user share one load.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group
	load     func(ctx context.Context, userID string) *Session
}

// NewRegistry creates a registry that builds missing sessions with load.
func NewRegistry(load func(ctx context.Context, userID string) *Session) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		load:     load,
	}
}

// Get returns the session for userID, loading it on first use.
func (r *Registry) Get(ctx context.Context, userID string) *Session {
	if s, ok := r.Lookup(userID); ok {
		return s
	}

	v, _, _ := r.group.Do(userID, func() (any, error) {
		if s, ok := r.Lookup(userID); ok {
			return s, nil
		}
		// The load is shared by every waiting caller, so it must outlive
		// the first caller's request.
		s := r.load(context.WithoutCancel(ctx), userID)

		r.mu.Lock()
		r.sessions[userID] = s
		r.mu.Unlock()
		return s, nil
	})
	return v.(*Session)
}

// Lookup returns an already loaded session.
func (r *Registry) Lookup(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Sessions returns the loaded sessions ordered by user id.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len returns the number of loaded sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
