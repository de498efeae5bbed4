package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/vincentsi/FastQuizParty-sub000/internal/app"
)

// gameResultRow is the bun model of one archived player result.
type gameResultRow struct {
	bun.BaseModel `bun:"table:game_results"`

	ID                int64     `bun:"id,pk,autoincrement"`
	RoomID            string    `bun:"room_id,notnull"`
	RoomCode          string    `bun:"room_code,notnull"`
	HostAuthUserID    string    `bun:"host_auth_user_id,notnull"`
	QuizID            string    `bun:"quiz_id,notnull"`
	PlayerID          string    `bun:"player_id,notnull"`
	Username          string    `bun:"username,notnull"`
	Score             int       `bun:"score,notnull"`
	Rank              int       `bun:"rank,notnull"`
	Accuracy          float64   `bun:"accuracy,notnull"`
	AvgResponseTimeMs float64   `bun:"avg_response_time_ms,notnull"`
	MaxStreak         int       `bun:"max_streak,notnull"`
	TotalQuestions    int       `bun:"total_questions,notnull"`
	StartedAt         time.Time `bun:"started_at,notnull"`
	FinishedAt        time.Time `bun:"finished_at,notnull"`
}

// GameArchiver writes finished games to long-term storage. Write-once,
// fire-and-forget: the caller logs failures and moves on.
type GameArchiver struct {
	db *bun.DB
}

func NewGameArchiver(db *bun.DB) *GameArchiver {
	return &GameArchiver{db: db}
}

func (a *GameArchiver) Archive(ctx context.Context, record app.GameRecord) error {
	rows := make([]gameResultRow, 0, len(record.Players))
	for _, p := range record.Players {
		rows = append(rows, gameResultRow{
			RoomID:            record.RoomID,
			RoomCode:          record.RoomCode,
			HostAuthUserID:    record.HostAuthUserID,
			QuizID:            record.QuizID,
			PlayerID:          p.PlayerID,
			Username:          p.Username,
			Score:             p.Score,
			Rank:              p.Rank,
			Accuracy:          p.Accuracy,
			AvgResponseTimeMs: p.AvgResponseTimeMs,
			MaxStreak:         p.MaxStreak,
			TotalQuestions:    record.TotalQuestions,
			StartedAt:         record.StartedAt,
			FinishedAt:        record.FinishedAt,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	_, err := a.db.NewInsert().Model(&rows).Exec(ctx)
	return err
}
