package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when an event arrives in a phase that
	// does not accept it. The game is left untouched.
	ErrInvalidTransition = errors.New("invalid transition")
	ErrSessionClosed     = fmt.Errorf("%w: session is closed to new players", ErrInvalidTransition)
	ErrAlreadyActed      = fmt.Errorf("%w: player already acted in this phase", ErrInvalidTransition)
	ErrUnknownPlayer     = fmt.Errorf("%w: player has not joined this session", ErrInvalidTransition)

	ErrSessionFull   = errors.New("session is full")
	ErrInvalidAnswer = errors.New("invalid answer")
)

// Validation constants
const (
	DefaultMaxPlayers      = 16
	DefaultMaxAnswerLength = 64
	MaxPlayersLimit        = 64
)

// Rules are the per-session policies that are not fixed by the phase order.
type Rules struct {
	// MaxPlayers caps distinct players; zero means DefaultMaxPlayers.
	MaxPlayers int `json:"max_players" yaml:"max_players"`

	// LateJoin keeps a Starting session open to new players after the first
	// ready signal. When false, joining is only possible until someone is ready.
	LateJoin bool `json:"late_join" yaml:"late_join"`

	// MaxAnswerLength is measured in runes after trimming.
	MaxAnswerLength int `json:"max_answer_length" yaml:"max_answer_length"`
}

// DefaultRules returns the rules used when nothing is configured.
func DefaultRules() Rules {
	return Rules{
		MaxPlayers:      DefaultMaxPlayers,
		LateJoin:        true,
		MaxAnswerLength: DefaultMaxAnswerLength,
	}
}

// Validate rejects rules that would make a session unplayable.
func (r Rules) Validate() error {
	if r.MaxPlayers < 0 || r.MaxPlayers > MaxPlayersLimit {
		return fmt.Errorf("max_players must be between 0 and %d, got %d", MaxPlayersLimit, r.MaxPlayers)
	}
	if r.MaxAnswerLength < 0 {
		return fmt.Errorf("max_answer_length must not be negative, got %d", r.MaxAnswerLength)
	}
	return nil
}

// FinishReason records why a game reached Finished.
type FinishReason string

const (
	FinishConsensus    FinishReason = "consensus"
	FinishAcknowledged FinishReason = "acknowledged"
	FinishTimeout      FinishReason = "timeout"
)

// Transition describes the phase before and after an operation.
type Transition struct {
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

// Advanced reports whether the operation moved the game to another phase.
func (t Transition) Advanced() bool {
	return t.From.Kind != t.To.Kind
}

// State is a point-in-time copy of a game, safe to hand to other goroutines.
type State struct {
	Code         int          `json:"code"`
	Phase        Phase        `json:"phase"`
	PlayersNum   int          `json:"players_num"`
	Connections  int          `json:"connections"`
	AnswerCount  int          `json:"answer_count"`
	Answers      []string     `json:"answers,omitempty"` // only once revealed
	FinishReason FinishReason `json:"finish_reason,omitempty"`
}
