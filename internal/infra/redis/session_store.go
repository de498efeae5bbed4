package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
)

const sessionKeyPrefix = "game:"

// SessionStore persists game sessions under game:{roomID}. The TTL is
// refreshed on every write, which also gives finished sessions a bounded
// retention window for late result readers.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

func NewSessionStore(client *redis.Client, ttl time.Duration, log *logrus.Logger) *SessionStore {
	return &SessionStore{client: client, ttl: ttl, log: log}
}

func (s *SessionStore) GetSession(ctx context.Context, roomID string) (*domain.GameSession, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+roomID).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.WithError(err).WithField("room", roomID).Warn("session read degraded to not-found")
		}
		return nil, domain.ErrSessionNotFound
	}

	var session domain.GameSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	if session.Answers == nil {
		session.Answers = make(map[string][]domain.PlayerAnswer)
	}
	if session.Scores == nil {
		session.Scores = make(map[string]int)
	}
	if session.PlayerNames == nil {
		session.PlayerNames = make(map[string]string)
	}
	return &session, nil
}

func (s *SessionStore) SaveSession(ctx context.Context, session *domain.GameSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.RoomID, data, s.ttl).Err(); err != nil {
		s.log.WithError(err).WithField("room", session.RoomID).Error("session write failed")
	}
	return nil
}
