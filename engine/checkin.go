package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/history"
	"github.com/becomeliminal/nim-companion/internal/applog"
	"github.com/becomeliminal/nim-companion/prompt"
)

var (
	// ErrNoConversation is returned when checking in with a user who has
	// never talked to the companion.
	ErrNoConversation = errors.New("no conversation to check in on")

	// ErrAlreadyCheckedIn is returned when the last turn is an unanswered
	// check-in.
	ErrAlreadyCheckedIn = errors.New("already checked in")
)

// checkInInstruction stands in for the user turn when generating a
// check-in.
const checkInInstruction = "[Generate a proactive check-in message based on our conversation context and your personality]"

// CheckIn generates a proactive message from the last few turns and
// appends it to the history. Failures leave the history untouched.
func (e *Engine) CheckIn(ctx context.Context, userID string) (*Output, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.ErrEmptyUserID
	}

	s := e.sessions.Get(ctx, userID)
	s.turn.Lock()
	defer s.turn.Unlock()
	e.reload(ctx, s)

	s.mu.RLock()
	recent := history.Last(s.history, e.config.CheckInContext)
	userProfile := s.profile.Clone()
	s.mu.RUnlock()

	if len(recent) == 0 {
		return nil, ErrNoConversation
	}
	if s.awaitingCheckIn() {
		return nil, ErrAlreadyCheckedIn
	}

	messages := append(core.Messages(recent), core.Message{Role: core.RoleUser, Content: checkInInstruction})
	systemPrompt := prompt.Proactive(prompt.Input{
		Character: e.character(userID),
		Profile:   userProfile,
		MaxTokens: e.config.MaxTokens,
	})

	text, err := e.generate(ctx, "checkin", messages, systemPrompt, e.config.MaxTokens)
	if err != nil {
		applog.Warn("[ENGINE] Check-in failed", "user_id", userID, "error", err)
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, core.NewModelError("model", 0, errors.New("empty check-in message"))
	}

	s.appendTurn(core.Turn{Role: core.RoleAssistant, Content: text, Proactive: true})

	out := &Output{
		Text:           text,
		State:          StateCompleted,
		ConversationID: s.ConversationID,
		Proactive:      true,
		Recall:         StepSkipped,
		MemoryWrite:    StepSkipped,
		Profile:        StepSkipped,
	}
	out.Persist, out.MessageCount = e.persistHistory(ctx, s)

	applog.Info("[ENGINE] Sent check-in", "user_id", userID)
	return out, nil
}

// Deliver receives check-ins produced by StartCheckIns.
type Deliver func(userID string, out *Output)

// StartCheckIns checks in, in the background, with every loaded user who
// has been idle for longer than interval. It stops when ctx is done.
func (e *Engine) StartCheckIns(ctx context.Context, interval time.Duration, deliver Deliver) {
	if interval <= 0 {
		return
	}
	tick := interval / 4
	if tick < time.Second {
		tick = time.Second
	}

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		applog.Info("[ENGINE] Check-in loop started", "interval", interval)
		for {
			select {
			case <-ctx.Done():
				applog.Info("[ENGINE] Check-in loop stopped")
				return
			case <-ticker.C:
				e.checkInIdle(ctx, interval, deliver)
			}
		}
	}()
}

// checkInIdle runs one pass over the loaded sessions.
func (e *Engine) checkInIdle(ctx context.Context, interval time.Duration, deliver Deliver) int {
	now := e.now()
	sent := 0
	for _, s := range e.sessions.Sessions() {
		if ctx.Err() != nil {
			return sent
		}
		if now.Sub(s.LastActivity()) < interval || s.awaitingCheckIn() {
			continue
		}

		out, err := e.CheckIn(ctx, s.UserID)
		if err != nil {
			continue
		}
		sent++
		if deliver != nil {
			deliver(s.UserID, out)
		}
	}
	return sent
}
