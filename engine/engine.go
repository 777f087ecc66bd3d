package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/becomeliminal/nim-companion/config"
	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/history"
	"github.com/becomeliminal/nim-companion/internal/applog"
	"github.com/becomeliminal/nim-companion/internal/metrics"
	"github.com/becomeliminal/nim-companion/memory"
	"github.com/becomeliminal/nim-companion/profile"
	"github.com/becomeliminal/nim-companion/prompt"
)

// Engine runs companion conversations: it assembles context from history,
// memory and profile, calls the model and learns from each exchange.
type Engine struct {
	model      core.Model
	memory     *memory.Index          // Optional: semantic recall
	profiles   profile.Store          // Optional: profile persistence
	histories  history.Store          // Optional: history persistence
	characters config.CharacterSource // Optional: persona per user
	metrics    *metrics.Metrics       // Optional
	config     Config
	sessions   *Registry
	now        func() time.Time
}

// Config holds engine tunables.
type Config struct {
	// MaxTokens bounds each conversational reply. Default: 250
	MaxTokens int

	// ModelTimeout bounds every model call. Default: 60s
	ModelTimeout time.Duration

	// ExtractionWindow is how many recent turns profile extraction reads.
	// Default: 10
	ExtractionWindow int

	// ExtractionMaxTokens bounds the extraction response. Default: 1024
	ExtractionMaxTokens int

	// HistoryLimit is how many turns are kept and persisted. Default: 20
	HistoryLimit int

	// CheckInContext is how many recent turns a check-in sees. Default: 3
	CheckInContext int
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:           250,
		ModelTimeout:        60 * time.Second,
		ExtractionWindow:    10,
		ExtractionMaxTokens: profile.DefaultExtractionMaxTokens,
		HistoryLimit:        history.MaxPersistedTurns,
		CheckInContext:      3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = d.ModelTimeout
	}
	if c.ExtractionWindow <= 0 {
		c.ExtractionWindow = d.ExtractionWindow
	}
	if c.ExtractionMaxTokens <= 0 {
		c.ExtractionMaxTokens = d.ExtractionMaxTokens
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.CheckInContext <= 0 {
		c.CheckInContext = d.CheckInContext
	}
	return c
}

// Option configures the engine.
type Option func(*Engine)

// WithMemory configures the engine with a semantic memory index.
func WithMemory(m *memory.Index) Option {
	return func(e *Engine) {
		e.memory = m
	}
}

// WithProfileStore persists user profiles.
func WithProfileStore(s profile.Store) Option {
	return func(e *Engine) {
		e.profiles = s
	}
}

// WithHistoryStore persists recent turns.
func WithHistoryStore(s history.Store) Option {
	return func(e *Engine) {
		e.histories = s
	}
}

// WithCharacters sets where personas come from.
func WithCharacters(c config.CharacterSource) Option {
	return func(e *Engine) {
		e.characters = c
	}
}

// WithMetrics records engine activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithConfig overrides the defaults. Zero fields keep their default.
func WithConfig(c Config) Option {
	return func(e *Engine) {
		e.config = c.withDefaults()
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine around model.
func New(model core.Model, opts ...Option) *Engine {
	e := &Engine{
		model:      model,
		characters: config.StaticCharacters(core.CharacterConfig{}),
		config:     DefaultConfig(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sessions = NewRegistry(e.loadSession)
	return e
}

// Sessions exposes the session registry.
func (e *Engine) Sessions() *Registry {
	return e.sessions
}

// StepOutcome reports how a best-effort step of a turn went.
type StepOutcome string

const (
	StepOK       StepOutcome = "ok"
	StepDegraded StepOutcome = "degraded"
	StepSkipped  StepOutcome = "skipped"
	StepFailed   StepOutcome = "failed"
)

// Output is the result of one turn.
type Output struct {
	// Text is the assistant turn that was appended: the reply, or a
	// user-facing error message when State is StateFailed.
	Text string

	State          State
	ConversationID string

	// MessageCount is the number of turns kept after this one.
	MessageCount int

	// Proactive marks check-in messages.
	Proactive bool

	// Recall is the memory lookup before the model call.
	Recall StepOutcome
	// Remembered reports whether a memory made it into the prompt.
	Remembered bool
	// MemoryWrite is storing this exchange in the memory index.
	MemoryWrite StepOutcome
	// Profile is extraction and merge.
	Profile StepOutcome
	// Persist is saving history.
	Persist StepOutcome

	// Error is the model failure when State is StateFailed.
	Error error
}

// Chat runs one user turn. Model failures do not return an error: the turn
// ends in StateFailed with a visible error reply. Errors are returned only
// for invalid input.
func (e *Engine) Chat(ctx context.Context, userID, message string) (*Output, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.ErrEmptyUserID
	}
	if strings.TrimSpace(message) == "" {
		return nil, core.ErrEmptyMessage
	}

	s := e.sessions.Get(ctx, userID)
	s.turn.Lock()
	defer s.turn.Unlock()
	e.reload(ctx, s)

	out := &Output{
		ConversationID: s.ConversationID,
		Recall:         StepSkipped,
		MemoryWrite:    StepSkipped,
		Profile:        StepSkipped,
		Persist:        StepSkipped,
	}

	s.mu.Lock()
	s.state = StateAwaitingModel
	s.lastActivity = e.now()
	s.history = append(s.history, core.NewUserTurn(message))
	window := history.Select(s.history, message)
	userProfile := s.profile.Clone()
	s.mu.Unlock()

	// === PHASE 1: RECALL ===
	var recalled *memory.Hit
	if s.memory.Available() {
		out.Recall = StepOK
		if hit, ok := s.memory.Recall(ctx, message); ok {
			recalled = &hit
			out.Remembered = true
			e.metrics.Recall("hit")
			applog.Debug("[MEMORY] Using recalled exchange", "user_id", userID, "relevance", hit.Relevance)
		} else {
			e.metrics.Recall("miss")
		}
	} else {
		e.metrics.Recall("unavailable")
	}

	// === PHASE 2: ASSEMBLE ===
	systemPrompt := prompt.Assemble(prompt.Input{
		Character: e.character(userID),
		Profile:   userProfile,
		Memory:    recalled,
		MaxTokens: e.config.MaxTokens,
	})

	// === PHASE 3: GENERATE ===
	reply, err := e.generate(ctx, "chat", core.Messages(window), systemPrompt, e.config.MaxTokens)
	if err != nil {
		applog.Warn("[ENGINE] Model call failed", "user_id", userID, "error", err)
		text := FailureMessage(err)
		s.appendTurn(core.NewAssistantTurn(text))
		s.setState(StateFailed)

		out.Text = text
		out.State = StateFailed
		out.Error = err
		out.Persist, out.MessageCount = e.persistHistory(ctx, s)
		e.metrics.TurnFinished(string(StateFailed))
		return out, nil
	}

	s.appendTurn(core.NewAssistantTurn(reply))
	out.Text = reply

	// === PHASE 4: REMEMBER ===
	if reply != "" && s.memory.Available() {
		if _, err := s.memory.Add(ctx, message, reply, map[string]string{"conversation_id": s.ConversationID}); err != nil {
			applog.Warn("[MEMORY] Failed to store exchange", "user_id", userID, "error", err)
			out.MemoryWrite = StepDegraded
			e.metrics.MemoryWrite("failed")
		} else {
			out.MemoryWrite = StepOK
			e.metrics.MemoryWrite("ok")
		}
	}

	// === PHASE 5: LEARN ===
	out.Profile = e.learn(ctx, s)

	out.Persist, out.MessageCount = e.persistHistory(ctx, s)
	s.setState(StateCompleted)
	out.State = StateCompleted
	e.metrics.TurnFinished(string(StateCompleted))
	return out, nil
}

// learn counts the completed exchange and, when the cadence says so,
// extracts facts from recent turns and merges them into the profile.
func (e *Engine) learn(ctx context.Context, s *Session) StepOutcome {
	s.mu.Lock()
	s.profile.ConversationCount++
	count := s.profile.ConversationCount
	recent := history.Last(s.history, e.config.ExtractionWindow)
	s.mu.Unlock()

	if !profile.ShouldUpdate(count) {
		return StepSkipped
	}

	applog.Info("[PROFILE] Running extraction", "user_id", s.UserID, "conversation_count", count)
	x := profile.NewExtractor(e.timed("extraction"), e.config.ExtractionMaxTokens).Extract(ctx, recent)
	if x.IsEmpty() {
		e.metrics.Extraction("empty")
		return StepOK
	}
	e.metrics.Extraction("parsed")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profileUnloaded {
		profile.Merge(s.profile, x)
		s.pendingProfile = append(s.pendingProfile, x)
		applog.Warn("[PROFILE] Stored profile not loaded, keeping update in memory", "user_id", s.UserID)
		e.metrics.ProfileUpdate("deferred")
		return StepDegraded
	}
	changed, err := profile.NewMerger(e.profiles).Apply(ctx, s.UserID, s.profile, x)
	switch {
	case err != nil:
		applog.Warn("[PROFILE] Failed to persist profile", "user_id", s.UserID, "error", err)
		e.metrics.ProfileUpdate("persist_failed")
		return StepDegraded
	case changed:
		e.metrics.ProfileUpdate("changed")
	default:
		e.metrics.ProfileUpdate("unchanged")
	}
	return StepOK
}

// persistHistory trims the session history and saves it.
func (e *Engine) persistHistory(ctx context.Context, s *Session) (StepOutcome, int) {
	s.mu.Lock()
	s.history = history.Trim(s.history, e.config.HistoryLimit)
	turns := append([]core.Turn{}, s.history...)
	unloaded := s.historyUnloaded
	s.mu.Unlock()

	if e.histories == nil {
		return StepSkipped, len(turns)
	}
	if unloaded {
		applog.Warn("[ENGINE] Stored history not loaded, not overwriting it", "user_id", s.UserID)
		return StepDegraded, len(turns)
	}
	if err := e.histories.SaveHistory(ctx, s.UserID, turns); err != nil {
		applog.Warn("[ENGINE] Failed to persist history", "user_id", s.UserID, "error", err)
		return StepDegraded, len(turns)
	}
	return StepOK, len(turns)
}

// reload retries stores that failed to load when the session was opened.
// Saved turns go before the ones added since, and deferred profile updates
// are merged into the saved profile.
func (e *Engine) reload(ctx context.Context, s *Session) {
	s.mu.RLock()
	historyUnloaded, profileUnloaded := s.historyUnloaded, s.profileUnloaded
	s.mu.RUnlock()

	if historyUnloaded && e.histories != nil {
		turns, err := e.histories.LoadHistory(ctx, s.UserID)
		if err != nil {
			applog.Warn("[ENGINE] History still unavailable", "user_id", s.UserID, "error", err)
		} else {
			s.mu.Lock()
			merged := append(append([]core.Turn{}, turns...), s.history...)
			s.history = history.Trim(merged, e.config.HistoryLimit)
			s.historyUnloaded = false
			s.mu.Unlock()
			applog.Info("[ENGINE] History reloaded", "user_id", s.UserID, "turns", len(turns))
		}
	}

	if profileUnloaded && e.profiles != nil {
		p, err := e.profiles.LoadProfile(ctx, s.UserID)
		if err != nil {
			applog.Warn("[PROFILE] Profile still unavailable", "user_id", s.UserID, "error", err)
			return
		}
		if p == nil {
			p = profile.New()
		}
		s.mu.Lock()
		p.ConversationCount += s.profile.ConversationCount
		for _, x := range s.pendingProfile {
			profile.Merge(p, x)
		}
		s.profile = p
		s.pendingProfile = nil
		s.profileUnloaded = false
		s.mu.Unlock()
		applog.Info("[PROFILE] Profile reloaded", "user_id", s.UserID, "summary", p.Summary())
	}
}

// generate calls the model with the configured timeout and records
// latency and failures.
func (e *Engine) generate(ctx context.Context, purpose string, messages []core.Message, systemPrompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.ModelTimeout)
	defer cancel()

	start := time.Now()
	text, err := e.model.Generate(ctx, messages, systemPrompt, maxTokens)
	e.metrics.ObserveModel(purpose, time.Since(start))
	if err != nil {
		var me *core.ModelError
		if !errors.As(err, &me) {
			me = core.NewModelError("model", 0, err)
			err = me
		}
		e.metrics.ModelFailed(string(me.Kind))
		return "", err
	}
	return text, nil
}

// timed adapts generate to core.Model for helpers that call the model
// themselves.
func (e *Engine) timed(purpose string) core.Model {
	return core.ModelFunc(func(ctx context.Context, messages []core.Message, systemPrompt string, maxTokens int) (string, error) {
		return e.generate(ctx, purpose, messages, systemPrompt, maxTokens)
	})
}

func (e *Engine) character(userID string) core.CharacterConfig {
	c, err := e.characters.Character(userID)
	if err != nil {
		applog.Warn("[ENGINE] Failed to load character, using defaults", "user_id", userID, "error", err)
		return core.CharacterConfig{}
	}
	return c
}

// loadSession builds a session from persisted state. Load failures are
// logged and the session starts empty.
func (e *Engine) loadSession(ctx context.Context, userID string) *Session {
	var (
		p     *profile.UserProfile
		turns []core.Turn
		err   error
	)

	var profileFailed, historyFailed bool
	if e.profiles != nil {
		p, err = e.profiles.LoadProfile(ctx, userID)
		if err != nil {
			applog.Warn("[ENGINE] Failed to load profile, starting fresh", "user_id", userID, "error", err)
			p = nil
			profileFailed = true
		}
	}
	if e.histories != nil {
		turns, err = e.histories.LoadHistory(ctx, userID)
		if err != nil {
			applog.Warn("[ENGINE] Failed to load history, starting fresh", "user_id", userID, "error", err)
			turns = nil
			historyFailed = true
		}
	}

	var mem *memory.UserIndex
	if e.memory != nil {
		mem = e.memory.ForUser(userID)
	}

	s := newSession(userID, history.Trim(turns, e.config.HistoryLimit), p, mem, e.now())
	s.profileUnloaded = profileFailed
	s.historyUnloaded = historyFailed
	e.metrics.SessionOpened()
	applog.Info("[ENGINE] Session opened",
		"user_id", userID,
		"conversation_id", s.ConversationID,
		"turns", len(s.history),
		"memory", mem.Available(),
	)
	return s
}

// History returns the user's recent turns.
func (e *Engine) History(ctx context.Context, userID string) ([]core.Turn, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.ErrEmptyUserID
	}
	return e.sessions.Get(ctx, userID).History(), nil
}

// Profile returns a copy of the user's profile.
func (e *Engine) Profile(ctx context.Context, userID string) (*profile.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.ErrEmptyUserID
	}
	return e.sessions.Get(ctx, userID).Profile(), nil
}

// ResetProfile forgets everything learned about the user.
func (e *Engine) ResetProfile(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return core.ErrEmptyUserID
	}
	s := e.sessions.Get(ctx, userID)

	s.turn.Lock()
	defer s.turn.Unlock()

	// An explicit reset replaces whatever is stored.
	s.mu.Lock()
	s.profile.Reset()
	s.profileUnloaded = false
	s.pendingProfile = nil
	snapshot := s.profile.Clone()
	s.mu.Unlock()

	applog.Info("[PROFILE] Profile reset", "user_id", userID)
	if e.profiles == nil {
		return nil
	}
	if err := e.profiles.SaveProfile(ctx, userID, snapshot); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// ClearMemory removes the user's stored exchanges.
func (e *Engine) ClearMemory(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return core.ErrEmptyUserID
	}
	return e.sessions.Get(ctx, userID).memory.Clear(ctx)
}

// FailureMessage is the assistant turn shown when the model call fails.
func FailureMessage(err error) string {
	var me *core.ModelError
	if !errors.As(err, &me) {
		return "Sorry, I'm having trouble responding right now. Please try again in a moment."
	}
	switch me.Kind {
	case core.ErrorKindTimeout:
		return "Sorry, I took too long to think about that. Could you try again?"
	case core.ErrorKindRateLimit:
		return "I'm getting a lot of messages right now. Please try again in a moment."
	case core.ErrorKindAuth:
		return "I can't connect to my language model. Please check the API key configuration."
	case core.ErrorKindNetwork:
		return "I can't reach my language model right now. Please check your connection and try again."
	default:
		return "Sorry, I'm having trouble responding right now. Please try again in a moment."
	}
}
