package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/mindmeld/game/engine"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrCreationFailed  = errors.New("failed to create session")
)

// DefaultMaxCodeAttempts bounds code regeneration on collisions. With 9000
// codes it only runs out when the code space is nearly exhausted.
const DefaultMaxCodeAttempts = 64

// Timeouts bound how long a session may sit in one phase.
type Timeouts struct {
	// Lobby applies to sessions nobody has joined yet.
	Lobby time.Duration
	// Phase applies to Starting, Guessing and Answers.
	Phase time.Duration
	// Finished is how long a finished session is kept while clients are
	// still connected to it.
	Finished time.Duration
}

// DefaultTimeouts returns the timeouts used when nothing is configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Lobby:    30 * time.Minute,
		Phase:    10 * time.Minute,
		Finished: 5 * time.Minute,
	}
}

func (t Timeouts) limit(kind engine.PhaseKind) time.Duration {
	switch kind {
	case engine.Lobby:
		return t.Lobby
	case engine.Starting, engine.Guessing, engine.Answers:
		return t.Phase
	default:
		return 0
	}
}

// Options configure a Registry. Zero values fall back to defaults. A nil
// Rules or Timeouts selects the defaults; a non-nil one is used as given, so
// LateJoin false and zero (disabled) timeouts survive.
type Options struct {
	Rules           *engine.Rules
	Timeouts        *Timeouts
	MaxCodeAttempts int
	GenerateCode    engine.CodeGenerator
	Now             func() time.Time
	Logger          logrus.FieldLogger
}

// Registry maps session IDs to sessions and keeps an index by join code.
// Its lock guards only the shape of the maps; each Session has its own lock
// for its fields. When both are needed the registry lock is taken first.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	codes    map[int]*Session

	opts     Options
	rules    engine.Rules
	timeouts Timeouts
	log      logrus.FieldLogger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.MaxCodeAttempts <= 0 {
		opts.MaxCodeAttempts = DefaultMaxCodeAttempts
	}
	if opts.GenerateCode == nil {
		opts.GenerateCode = engine.RandomCode
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	rules := engine.DefaultRules()
	if opts.Rules != nil {
		rules = *opts.Rules
	}
	timeouts := DefaultTimeouts()
	if opts.Timeouts != nil {
		timeouts = *opts.Timeouts
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		codes:    make(map[int]*Session),
		opts:     opts,
		rules:    rules,
		timeouts: timeouts,
		log:      log.WithField("component", "registry"),
	}
}

// Create allocates a session in Lobby with a code no live session holds.
func (r *Registry) Create() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.freeCode()
	if err != nil {
		r.log.WithError(err).Warn("Session creation failed")
		return nil, err
	}

	s := newSession(uuid.NewString(), code, r.rules, r.opts.Now)
	r.sessions[s.id] = s
	r.codes[code] = s

	r.log.WithFields(logrus.Fields{
		"code":     code,
		"sessions": len(r.sessions),
	}).Info("Session created")
	return s, nil
}

// freeCode must be called with r.mu held. A code still indexed by a
// finished session may be reissued.
func (r *Registry) freeCode() (int, error) {
	for attempt := 0; attempt < r.opts.MaxCodeAttempts; attempt++ {
		code, err := r.opts.GenerateCode()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrCreationFailed, err)
		}
		if err := engine.ValidateCode(code); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrCreationFailed, err)
		}
		holder, taken := r.codes[code]
		if !taken || holder.finished() {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: no free code after %d attempts", ErrCreationFailed, r.opts.MaxCodeAttempts)
}

// FindByCode returns the session currently holding code.
func (r *Registry) FindByCode(code int) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.codes[code]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List snapshots every session, ordered by code. Each snapshot is consistent
// on its own; the list as a whole is not one atomic view.
func (r *Registry) List() []Snapshot {
	handles := r.handles()
	result := make([]Snapshot, 0, len(handles))
	for _, s := range handles {
		result = append(result, s.Snapshot())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Code < result[j].Code
	})
	return result
}

func (r *Registry) handles() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Remove deletes a session. Removing an unknown ID is a no-op.
func (r *Registry) Remove(id string) bool {
	return r.removeIf(id, func(*Session) bool { return true })
}

// Release removes a session only if it is finished and has no connections
// left. Connection handlers call it after detaching.
func (r *Registry) Release(id string) bool {
	now := r.opts.Now()
	return r.removeIf(id, func(s *Session) bool {
		return s.done(now, Timeouts{})
	})
}

func (r *Registry) removeIf(id string, ok func(*Session) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	if !exists || !ok(s) {
		return false
	}
	r.deleteLocked(s)
	return true
}

func (r *Registry) deleteLocked(s *Session) {
	delete(r.sessions, s.id)
	if r.codes[s.code] == s {
		delete(r.codes, s.code)
	}
	s.close()
	r.log.WithFields(logrus.Fields{
		"code":     s.code,
		"sessions": len(r.sessions),
	}).Info("Session removed")
}

// SweepResult reports what a sweep did.
type SweepResult struct {
	Expired int
	Removed int
}

// Sweep finishes sessions stuck past their phase timeout and removes
// finished sessions that nobody is attached to anymore.
func (r *Registry) Sweep(now time.Time) SweepResult {
	var res SweepResult
	for _, s := range r.handles() {
		if s.expire(now, r.timeouts) {
			res.Expired++
			r.log.WithField("code", s.code).Info("Session timed out")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.done(now, r.timeouts) {
			r.deleteLocked(s)
			res.Removed++
		}
	}
	return res
}

// Count returns the number of sessions, finished ones included.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
