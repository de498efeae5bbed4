package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vincentsi/FastQuizParty-sub000/internal/app"
	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
)

// ResultsHandler is the read-only REST surface next to the websocket: final
// game results and room code lookup.
type ResultsHandler struct {
	rooms *app.RoomService
	games *app.GameService
	log   *logrus.Logger
}

func NewResultsHandler(rooms *app.RoomService, games *app.GameService, log *logrus.Logger) *ResultsHandler {
	return &ResultsHandler{rooms: rooms, games: games, log: log}
}

// Register mounts the handler's routes on mux.
func (h *ResultsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/games/{roomId}/results", h.GameResults)
	mux.HandleFunc("GET /api/rooms/{roomId}/code", h.RoomCode)
}

type gameResultsResponse struct {
	RoomID      string                    `json:"roomId"`
	QuizID      string                    `json:"quizId"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	Questions   int                       `json:"questions"`
	StartedAt   time.Time                 `json:"startedAt"`
	FinishedAt  time.Time                 `json:"finishedAt"`
	DurationMs  int64                     `json:"durationMs"`
}

// GameResults returns the final leaderboard of a finished game. In-flight or
// unknown games are indistinguishable to the caller: both are 404.
func (h *ResultsHandler) GameResults(w http.ResponseWriter, r *http.Request) {
	session, err := h.games.Results(r.Context(), r.PathValue("roomId"))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrGameNotFinished) {
			http.Error(w, "results not found", http.StatusNotFound)
			return
		}
		h.log.WithError(err).Error("fetching game results")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := gameResultsResponse{
		RoomID:      session.RoomID,
		QuizID:      session.QuizID,
		Leaderboard: app.Leaderboard(session),
		Questions:   len(session.Questions),
		StartedAt:   session.StartedAt,
	}
	if session.FinishedAt != nil {
		resp.FinishedAt = *session.FinishedAt
		resp.DurationMs = session.FinishedAt.Sub(session.StartedAt).Milliseconds()
	}
	writeJSON(w, http.StatusOK, resp)
}

// RoomCode resolves a room id to its join code, for share links.
func (h *ResultsHandler) RoomCode(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetRoom(r.Context(), r.PathValue("roomId"))
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		h.log.WithError(err).Error("fetching room code")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"roomId": room.ID, "code": room.Code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
