package domain

import "time"

// RoomStatus is the lifecycle state of a waiting room.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "WAITING"
	RoomStarting RoomStatus = "STARTING"
)

// SessionStatus is the lifecycle state of a running game.
type SessionStatus string

const (
	SessionPlaying  SessionStatus = "PLAYING"
	SessionFinished SessionStatus = "FINISHED"
)

// Player is a participant of a Room and, once started, of its GameSession.
// The ID is stable for the room's lifetime; ConnectionID is transient and
// replaced on every reconnect.
type Player struct {
	ID           string    `json:"id"`
	Identity     Identity  `json:"identity"`
	ConnectionID string    `json:"connectionId"`
	Username     string    `json:"username"`
	IsHost       bool      `json:"isHost"`
	IsReady      bool      `json:"isReady"`
	IsConnected  bool      `json:"isConnected"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Room is a pre-game lobby keyed by a short numeric join code.
// Players is serialized as a field-keyed object; consumers must not rely on
// enumeration order.
type Room struct {
	ID                  string             `json:"id"`
	Code                string             `json:"code"`
	QuizID              string             `json:"quizId"`
	HostPlayerID        string             `json:"hostPlayerId"`
	MaxPlayers          int                `json:"maxPlayers"`
	QuestionTimeSeconds int                `json:"questionTimeSeconds"`
	IsPrivate           bool               `json:"isPrivate"`
	PasswordHash        string             `json:"passwordHash,omitempty"`
	Status              RoomStatus         `json:"status"`
	Players             map[string]*Player `json:"players"`
	CreatedAt           time.Time          `json:"createdAt"`
	StartedAt           *time.Time         `json:"startedAt,omitempty"`
}

// Host returns the host player, or nil if the room is in a broken state.
func (r *Room) Host() *Player {
	for _, p := range r.Players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

// Question is a single timed multiple-choice question. CorrectAnswerIndex is
// server-side only and must never be broadcast before the reveal.
type Question struct {
	ID                 string   `json:"id"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	TimeLimitSeconds   int      `json:"timeLimitSeconds"`
	Points             int      `json:"points"`
}

// Quiz is the read-only quiz definition consumed at game start.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// PlayerAnswer is one entry of a player's answer log.
type PlayerAnswer struct {
	QuestionID     string    `json:"questionId"`
	AnswerIndex    int       `json:"answerIndex"`
	IsCorrect      bool      `json:"isCorrect"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	PointsAwarded  int       `json:"pointsAwarded"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// GameSession is the live run of questions derived from a started Room.
// Answers and Scores are serialized as field-keyed objects keyed by player id.
type GameSession struct {
	RoomID               string                    `json:"roomId"`
	RoomCode             string                    `json:"roomCode"`
	HostID               string                    `json:"hostId"`
	HostAuthUserID       string                    `json:"hostAuthUserId,omitempty"`
	QuizID               string                    `json:"quizId"`
	Questions            []Question                `json:"questions"`
	CurrentQuestionIndex int                       `json:"currentQuestionIndex"`
	QuestionStartedAt    time.Time                 `json:"questionStartedAt"`
	Answers              map[string][]PlayerAnswer `json:"answers"`
	Scores               map[string]int            `json:"scores"`
	PlayerNames          map[string]string         `json:"playerNames"`
	Status               SessionStatus             `json:"status"`
	StartedAt            time.Time                 `json:"startedAt"`
	FinishedAt           *time.Time                `json:"finishedAt,omitempty"`
}

// CurrentQuestion returns the active question, or nil when the index is out
// of range (pre-start or exhausted).
func (s *GameSession) CurrentQuestion() *Question {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.CurrentQuestionIndex]
}

// HasAnswered reports whether the player already has a log entry for the
// given question id.
func (s *GameSession) HasAnswered(playerID, questionID string) bool {
	for _, a := range s.Answers[playerID] {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// AnswerResult is the unicast outcome of one accepted submission.
type AnswerResult struct {
	IsCorrect          bool  `json:"isCorrect"`
	CorrectAnswerIndex int   `json:"correctAnswer"`
	Points             int   `json:"points"`
	ResponseTimeMs     int64 `json:"timeMs"`
	NewScore           int   `json:"newScore"`
	Rank               int   `json:"rank"`
}

// LeaderboardEntry is one row of the ranked scoreboard. Rank is dense:
// 1-based position in the descending score sort, no gaps.
type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// RoomSummary is the public-listing view of a waiting room.
type RoomSummary struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	QuizID       string    `json:"quizId"`
	QuizTitle    string    `json:"quizTitle"`
	HostUsername string    `json:"hostUsername"`
	PlayerCount  int       `json:"playerCount"`
	MaxPlayers   int       `json:"maxPlayers"`
	CreatedAt    time.Time `json:"createdAt"`
}
