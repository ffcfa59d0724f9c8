package service

import (
	"context"

	"github.com/wricardo/mindmeld/game/session"
)

// GameService defines the operations exposed to transports.
type GameService interface {
	// Session management
	CreateSession(ctx context.Context) (*SessionInfo, error)
	GetSession(ctx context.Context, code int) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, code int) error

	// Connections
	Attach(ctx context.Context, code int) (*session.Session, error)
	Release(ctx context.Context, sess *session.Session) bool
}

// SessionRegistry defines session storage operations
type SessionRegistry interface {
	Create() (*session.Session, error)
	FindByCode(code int) (*session.Session, error)
	List() []session.Snapshot
	Remove(id string) bool
	Release(id string) bool
}
