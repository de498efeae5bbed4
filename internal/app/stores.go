package app

import (
	"context"
	"time"

	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
)

// RoomStore abstracts how rooms are stored (in-memory, Redis, etc). Rooms are
// single-key aggregates: every mutation is one read plus one write of one
// key, last writer wins. Implementations refresh the TTL on every save.
type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*domain.Room, error)
	SaveRoom(ctx context.Context, room *domain.Room) error
	DeleteRoom(ctx context.Context, room *domain.Room) error
	ListRooms(ctx context.Context) ([]*domain.Room, error)
}

// SessionStore persists live game sessions keyed by room id. Finished
// sessions are retained until their TTL lapses so late readers can fetch a
// final snapshot.
type SessionStore interface {
	GetSession(ctx context.Context, roomID string) (*domain.GameSession, error)
	SaveSession(ctx context.Context, session *domain.GameSession) error
}

// QuizRepository loads quiz definitions (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// GameRecord is the write-once archival shape of a finished game.
type GameRecord struct {
	RoomID         string         `json:"roomId"`
	RoomCode       string         `json:"roomCode"`
	HostAuthUserID string         `json:"hostAuthUserId"`
	QuizID         string         `json:"quizId"`
	TotalQuestions int            `json:"totalQuestions"`
	StartedAt      time.Time      `json:"startedAt"`
	FinishedAt     time.Time      `json:"finishedAt"`
	Players        []PlayerResult `json:"players"`
}

// PlayerResult is one player's end-of-game summary line.
type PlayerResult struct {
	PlayerID          string  `json:"playerId"`
	Username          string  `json:"username"`
	Score             int     `json:"score"`
	Rank              int     `json:"rank"`
	Accuracy          float64 `json:"accuracy"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
	MaxStreak         int     `json:"maxStreak"`
}

// GameArchiver flushes finished games to long-term storage. Calls are
// fire-and-forget: failures are logged, never surfaced to players.
type GameArchiver interface {
	Archive(ctx context.Context, record GameRecord) error
}

// Broadcaster fans events out to room members (best effort, at most once).
type Broadcaster interface {
	ToRoom(roomID, event string, payload any)
	ToAll(event string, payload any)
}
