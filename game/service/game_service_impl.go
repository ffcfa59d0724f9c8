package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wricardo/mindmeld/game/engine"
	"github.com/wricardo/mindmeld/game/session"
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionRegistry
	log      logrus.FieldLogger
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionRegistry, log logrus.FieldLogger) GameService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &gameServiceImpl{
		sessions: sessions,
		log:      log.WithField("component", "service"),
	}
}

// CreateSession creates a new game session
func (s *gameServiceImpl) CreateSession(ctx context.Context) (*SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sess, err := s.sessions.Create()
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return NewSessionInfo(sess.Snapshot()), nil
}

// GetSession retrieves session information by join code
func (s *gameServiceImpl) GetSession(ctx context.Context, code int) (*SessionInfo, error) {
	sess, err := s.find(code)
	if err != nil {
		return nil, err
	}
	return NewSessionInfo(sess.Snapshot()), nil
}

// ListSessions returns every live session ordered by code
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	snapshots := s.sessions.List()
	result := make([]*SessionInfo, 0, len(snapshots))
	for _, snap := range snapshots {
		result = append(result, NewSessionInfo(snap))
	}
	return result, nil
}

// DeleteSession removes a session; attached players are told it closed
func (s *gameServiceImpl) DeleteSession(ctx context.Context, code int) error {
	sess, err := s.find(code)
	if err != nil {
		return err
	}
	if !s.sessions.Remove(sess.ID()) {
		return fmt.Errorf("session %d: %w", code, session.ErrSessionNotFound)
	}
	s.log.WithField("code", code).Info("Session deleted")
	return nil
}

// Attach returns the session a connection wants to join
func (s *gameServiceImpl) Attach(ctx context.Context, code int) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.find(code)
}

// Release drops a finished session once its last connection has left
func (s *gameServiceImpl) Release(ctx context.Context, sess *session.Session) bool {
	if !s.sessions.Release(sess.ID()) {
		return false
	}
	s.log.WithField("code", sess.Code()).Debug("Released finished session")
	return true
}

func (s *gameServiceImpl) find(code int) (*session.Session, error) {
	if err := engine.ValidateCode(code); err != nil {
		return nil, err
	}
	sess, err := s.sessions.FindByCode(code)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", code, err)
	}
	return sess, nil
}
