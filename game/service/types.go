package service

import (
	"time"

	"github.com/wricardo/mindmeld/game/engine"
	"github.com/wricardo/mindmeld/game/session"
)

// SessionInfo is the public view of a session. It never carries the
// internal session ID.
type SessionInfo struct {
	Code         int                 `json:"code"`
	Phase        engine.PhaseKind    `json:"phase"`
	Pending      int                 `json:"pending"`
	PlayersNum   int                 `json:"players_num"`
	Connections  int                 `json:"connections"`
	AnswerCount  int                 `json:"answer_count"`
	Answers      []string            `json:"answers,omitempty"`
	FinishReason engine.FinishReason `json:"finish_reason,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	PhaseSince   time.Time           `json:"phase_since"`
}

// NewSessionInfo converts a registry snapshot.
func NewSessionInfo(snap session.Snapshot) *SessionInfo {
	return &SessionInfo{
		Code:         snap.Code,
		Phase:        snap.Phase.Kind,
		Pending:      snap.Phase.Pending,
		PlayersNum:   snap.PlayersNum,
		Connections:  snap.Connections,
		AnswerCount:  snap.AnswerCount,
		Answers:      snap.Answers,
		FinishReason: snap.FinishReason,
		CreatedAt:    snap.CreatedAt,
		PhaseSince:   snap.PhaseSince,
	}
}
