package memory

import (
	"context"
	"sync"

	"telegram-quiz-bot/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionStore.
// It stores and hands out copies, so callers never share a session.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]*app.Session),
	}
}

func (s *SessionStore) Get(_ context.Context, userID int64) (*app.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	if !ok {
		return nil, false, nil
	}
	return session.Clone(), true, nil
}

func (s *SessionStore) Put(_ context.Context, userID int64, session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = session.Clone()
	return nil
}

func (s *SessionStore) Remove(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
