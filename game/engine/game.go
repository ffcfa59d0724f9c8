package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

type player struct {
	connections int
	acted       bool
}

// Game is the state machine of one session. It is not safe for concurrent
// use; callers serialize access (see session.Session).
type Game struct {
	code        int
	rules       Rules
	phase       Phase
	playersNum  int
	connections int
	readies     int
	answers     []string
	players     map[string]*player
	reason      FinishReason
}

// NewGame returns a game in Lobby with zero counters.
func NewGame(code int, rules Rules) *Game {
	if rules.MaxPlayers == 0 {
		rules.MaxPlayers = DefaultMaxPlayers
	}
	if rules.MaxAnswerLength == 0 {
		rules.MaxAnswerLength = DefaultMaxAnswerLength
	}
	return &Game{
		code:    code,
		rules:   rules,
		phase:   Phase{Kind: Lobby},
		players: make(map[string]*player),
	}
}

func (g *Game) Code() int                  { return g.code }
func (g *Game) Phase() Phase               { return g.phase }
func (g *Game) PlayersNum() int            { return g.playersNum }
func (g *Game) Connections() int           { return g.connections }
func (g *Game) FinishReason() FinishReason { return g.reason }

// HasPlayer reports whether playerID has joined at some point.
func (g *Game) HasPlayer(playerID string) bool {
	_, ok := g.players[playerID]
	return ok
}

// Answers returns a copy of the collected answers in arrival order.
func (g *Game) Answers() []string {
	out := make([]string, len(g.answers))
	copy(out, g.answers)
	return out
}

// State copies the observable state. Answers are only included once the
// reveal has started so that guesses do not leak while players still answer.
func (g *Game) State() State {
	st := State{
		Code:         g.code,
		Phase:        g.phase,
		PlayersNum:   g.playersNum,
		Connections:  g.connections,
		AnswerCount:  len(g.answers),
		FinishReason: g.reason,
	}
	if g.phase.Kind >= Answers {
		st.Answers = g.Answers()
	}
	return st
}

// Join attaches a connection for playerID. A player seen before resumes
// without changing players_num or pending; a new player is admitted only
// while the game is still gathering players.
func (g *Game) Join(playerID string) (rejoined bool, t Transition, err error) {
	t = Transition{From: g.phase, To: g.phase}
	if playerID == "" {
		return false, t, fmt.Errorf("%w: empty player id", ErrUnknownPlayer)
	}
	if g.phase.Kind == Finished {
		return false, t, ErrSessionClosed
	}
	if p, ok := g.players[playerID]; ok {
		p.connections++
		g.connections++
		return true, t, nil
	}
	if !g.acceptsNewPlayers() {
		return false, t, ErrSessionClosed
	}
	if g.playersNum >= g.rules.MaxPlayers {
		return false, t, fmt.Errorf("%w: %d players", ErrSessionFull, g.playersNum)
	}

	g.players[playerID] = &player{connections: 1}
	g.playersNum++
	g.connections++
	switch g.phase.Kind {
	case Lobby:
		g.enter(Starting)
	case Starting:
		g.phase.Pending++
	}
	t.To = g.phase
	return false, t, nil
}

func (g *Game) acceptsNewPlayers() bool {
	switch g.phase.Kind {
	case Lobby:
		return true
	case Starting:
		return g.rules.LateJoin || g.readies == 0
	default:
		return false
	}
}

// Detach releases one connection of playerID. Players and pending are left
// alone: a disconnect is not a forfeit, the player may come back.
func (g *Game) Detach(playerID string) error {
	p, ok := g.players[playerID]
	if !ok || p.connections == 0 {
		return ErrUnknownPlayer
	}
	p.connections--
	g.connections--
	return nil
}

// Ready records that playerID is ready to start guessing.
func (g *Game) Ready(playerID string) (Transition, error) {
	p, err := g.actor(playerID, Starting, "ready")
	if err != nil {
		return Transition{From: g.phase, To: g.phase}, err
	}
	p.acted = true
	g.readies++
	return g.countdown(), nil
}

// SubmitAnswer appends playerID's single answer for this round.
func (g *Game) SubmitAnswer(playerID, text string) (Transition, error) {
	p, err := g.actor(playerID, Guessing, "answer")
	if err != nil {
		return Transition{From: g.phase, To: g.phase}, err
	}
	answer := strings.TrimSpace(text)
	if answer == "" {
		return Transition{From: g.phase, To: g.phase}, fmt.Errorf("%w: empty", ErrInvalidAnswer)
	}
	if n := utf8.RuneCountInString(answer); n > g.rules.MaxAnswerLength {
		return Transition{From: g.phase, To: g.phase},
			fmt.Errorf("%w: %d characters, at most %d allowed", ErrInvalidAnswer, n, g.rules.MaxAnswerLength)
	}
	p.acted = true
	g.answers = append(g.answers, answer)
	return g.countdown(), nil
}

// Ack records that playerID has seen the revealed answers.
func (g *Game) Ack(playerID string) (Transition, error) {
	p, err := g.actor(playerID, Answers, "ack")
	if err != nil {
		return Transition{From: g.phase, To: g.phase}, err
	}
	p.acted = true
	return g.countdown(), nil
}

// Abandon finishes the game regardless of pending players.
func (g *Game) Abandon(reason FinishReason) Transition {
	t := Transition{From: g.phase}
	if g.phase.Kind != Finished {
		g.finish(reason)
	}
	t.To = g.phase
	return t
}

func (g *Game) actor(playerID string, want PhaseKind, event string) (*player, error) {
	if g.phase.Kind != want {
		return nil, fmt.Errorf("%w: %s is not accepted while %s", ErrInvalidTransition, event, g.phase.Kind)
	}
	p, ok := g.players[playerID]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	if p.acted {
		return nil, ErrAlreadyActed
	}
	return p, nil
}

// countdown is the only place pending is decremented.
func (g *Game) countdown() Transition {
	t := Transition{From: g.phase}
	if g.phase.Pending > 0 {
		g.phase.Pending--
	}
	if g.phase.Pending == 0 {
		switch g.phase.Kind {
		case Starting:
			g.enter(Guessing)
		case Guessing:
			if consensus(g.answers) {
				g.finish(FinishConsensus)
			} else {
				g.enter(Answers)
			}
		case Answers:
			g.finish(FinishAcknowledged)
		}
	}
	t.To = g.phase
	return t
}

func (g *Game) enter(kind PhaseKind) {
	g.phase = Phase{Kind: kind, Pending: g.playersNum}
	for _, p := range g.players {
		p.acted = false
	}
	if kind == Guessing {
		g.answers = make([]string, 0, g.playersNum)
	}
}

func (g *Game) finish(reason FinishReason) {
	g.phase = Phase{Kind: Finished}
	g.reason = reason
}

// consensus reports whether every answer is the same word, ignoring case.
func consensus(answers []string) bool {
	if len(answers) == 0 {
		return false
	}
	fold := cases.Fold()
	first := fold.String(answers[0])
	for _, a := range answers[1:] {
		if fold.String(a) != first {
			return false
		}
	}
	return true
}
