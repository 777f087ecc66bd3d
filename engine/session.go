package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/memory"
	"github.com/becomeliminal/nim-companion/profile"
)

// State is where a session is in its current turn.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingModel State = "awaiting_model"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// Session is one user's live conversation: recent turns, profile and
// memory view. Turns for a session run one at a time.
type Session struct {
	UserID         string
	ConversationID string

	// turn serializes Chat and CheckIn for this user.
	turn sync.Mutex

	mu           sync.RWMutex
	state        State
	history      []core.Turn
	profile      *profile.UserProfile
	memory       *memory.UserIndex
	lastActivity time.Time

	// historyUnloaded and profileUnloaded mark stores whose saved copy could
	// not be read. Nothing is written to them until a reload succeeds.
	historyUnloaded bool
	profileUnloaded bool
	// pendingProfile holds extractions merged while the profile was unloaded.
	pendingProfile []profile.Extraction
}

func newSession(userID string, history []core.Turn, p *profile.UserProfile, mem *memory.UserIndex, now time.Time) *Session {
	if history == nil {
		history = []core.Turn{}
	}
	if p == nil {
		p = profile.New()
	}
	return &Session{
		UserID:         userID,
		ConversationID: uuid.NewString(),
		state:          StateIdle,
		history:        history,
		profile:        p,
		memory:         mem,
		lastActivity:   now,
	}
}

// State returns the state of the latest turn.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// History returns a copy of the recent turns.
func (s *Session) History() []core.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Turn{}, s.history...)
}

// Profile returns a copy of the user profile.
func (s *Session) Profile() *profile.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.Clone()
}

// LastActivity is when the user last sent a message.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) appendTurn(t core.Turn) {
	s.mu.Lock()
	s.history = append(s.history, t)
	s.mu.Unlock()
}

// awaitingCheckIn reports whether the last turn is already an unanswered
// proactive message.
func (s *Session) awaitingCheckIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.history)
	return n > 0 && s.history[n-1].Proactive
}
