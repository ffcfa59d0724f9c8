package session

import (
	"sync"
	"time"

	"github.com/wricardo/mindmeld/game/engine"
)

// EventType names a session state change.
type EventType string

const (
	EventPlayerJoined EventType = "player_joined"
	EventPlayerLeft   EventType = "player_left"
	EventProgress     EventType = "progress"
	EventPhaseChanged EventType = "phase_changed"
	EventClosed       EventType = "session_closed"
)

// Event is delivered to every subscriber of a session. Seq increases by one
// per event within a session, so subscribers observe changes in order.
type Event struct {
	Type   EventType    `json:"type"`
	Seq    uint64       `json:"seq"`
	Player string       `json:"player,omitempty"`
	State  engine.State `json:"state"`
}

// Subscriber receives the events of the session it joined. Deliver is called
// with the session lock held: it must not block and must not call back into
// the session.
type Subscriber interface {
	Deliver(Event)
}

// Snapshot is the observable state of a session at one instant.
type Snapshot struct {
	engine.State
	ID         string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	PhaseSince time.Time `json:"phase_since"`
}

// JoinResult is returned by a successful Join.
type JoinResult struct {
	Rejoined bool
	Snapshot Snapshot
}

// Session is a handle to one game. Every method takes the session's own
// mutex for the duration of a single operation; the registry lock is never
// needed to mutate a session.
type Session struct {
	id        string
	code      int
	createdAt time.Time
	now       func() time.Time

	mu          sync.Mutex
	game        *engine.Game
	subscribers map[Subscriber]string
	seq         uint64
	phaseSince  time.Time
	removed     bool
}

func newSession(id string, code int, rules engine.Rules, now func() time.Time) *Session {
	created := now()
	return &Session{
		id:          id,
		code:        code,
		createdAt:   created,
		now:         now,
		game:        engine.NewGame(code, rules),
		subscribers: make(map[Subscriber]string),
		phaseSince:  created,
	}
}

// ID returns the internal identifier. It is never shown to players.
func (s *Session) ID() string { return s.id }

// Code returns the join code; it never changes.
func (s *Session) Code() int { return s.code }

// Join admits playerID and subscribes sub to the session's events.
func (s *Session) Join(playerID string, sub Subscriber) (JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return JoinResult{}, ErrSessionNotFound
	}
	rejoined, t, err := s.game.Join(playerID)
	if err != nil {
		return JoinResult{Snapshot: s.snapshotLocked()}, err
	}
	s.subscribers[sub] = playerID
	s.publish(EventPlayerJoined, playerID)
	if t.Advanced() {
		s.phaseSince = s.now()
		s.publish(EventPhaseChanged, playerID)
	}
	return JoinResult{Rejoined: rejoined, Snapshot: s.snapshotLocked()}, nil
}

// Ready records a ready signal from playerID.
func (s *Session) Ready(playerID string) (Snapshot, error) {
	return s.apply(playerID, func(g *engine.Game) (engine.Transition, error) {
		return g.Ready(playerID)
	})
}

// SubmitAnswer records playerID's answer for the round.
func (s *Session) SubmitAnswer(playerID, text string) (Snapshot, error) {
	return s.apply(playerID, func(g *engine.Game) (engine.Transition, error) {
		return g.SubmitAnswer(playerID, text)
	})
}

// Ack records that playerID has seen the reveal.
func (s *Session) Ack(playerID string) (Snapshot, error) {
	return s.apply(playerID, func(g *engine.Game) (engine.Transition, error) {
		return g.Ack(playerID)
	})
}

func (s *Session) apply(playerID string, op func(*engine.Game) (engine.Transition, error)) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return Snapshot{}, ErrSessionNotFound
	}
	t, err := op(s.game)
	if err != nil {
		return s.snapshotLocked(), err
	}
	if t.Advanced() {
		s.phaseSince = s.now()
		s.publish(EventPhaseChanged, playerID)
	} else {
		s.publish(EventProgress, playerID)
	}
	return s.snapshotLocked(), nil
}

// Detach unsubscribes sub and releases its player's connection. It is a
// no-op for a subscriber that is not attached, so calling it twice is safe.
// The returned flag reports whether the session can now be removed.
func (s *Session) Detach(sub Subscriber) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	playerID, ok := s.subscribers[sub]
	if !ok {
		return s.snapshotLocked(), false
	}
	delete(s.subscribers, sub)
	if err := s.game.Detach(playerID); err == nil {
		s.publish(EventPlayerLeft, playerID)
	}
	return s.snapshotLocked(), !s.removed && s.game.Phase().Terminal() && s.game.Connections() == 0
}

// Snapshot copies the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:      s.game.State(),
		ID:         s.id,
		CreatedAt:  s.createdAt,
		PhaseSince: s.phaseSince,
	}
}

// publish must be called with s.mu held.
func (s *Session) publish(typ EventType, playerID string) {
	s.seq++
	ev := Event{
		Type:   typ,
		Seq:    s.seq,
		Player: playerID,
		State:  s.game.State(),
	}
	for sub := range s.subscribers {
		sub.Deliver(ev)
	}
}

// expire finishes the game when it has stayed in one phase too long.
func (s *Session) expire(now time.Time, timeouts Timeouts) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return false
	}
	limit := timeouts.limit(s.game.Phase().Kind)
	if limit <= 0 || now.Sub(s.phaseSince) < limit {
		return false
	}
	s.game.Abandon(engine.FinishTimeout)
	s.phaseSince = now
	s.publish(EventPhaseChanged, "")
	return true
}

// done reports whether the registry may drop the session.
func (s *Session) done(now time.Time, timeouts Timeouts) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.game.Phase().Terminal() {
		return false
	}
	if s.game.Connections() == 0 {
		return true
	}
	return timeouts.Finished > 0 && now.Sub(s.phaseSince) >= timeouts.Finished
}

func (s *Session) finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.Phase().Terminal()
}

// close marks the session removed and tells remaining subscribers.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return
	}
	s.removed = true
	s.publish(EventClosed, "")
	for sub := range s.subscribers {
		delete(s.subscribers, sub)
	}
}
