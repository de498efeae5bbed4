package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string][]byte)}
}

func (s *SessionStore) GetSession(_ context.Context, roomID string) (*domain.GameSession, error) {
	s.mu.RLock()
	data, ok := s.sessions[roomID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	var session domain.GameSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionStore) SaveSession(_ context.Context, session *domain.GameSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[session.RoomID] = data
	s.mu.Unlock()
	return nil
}
