package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/vincentsi/FastQuizParty-sub000/internal/app"
	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
)

// WSHandler upgrades HTTP requests to websockets and routes client commands
// into the room and game services. Command failures are returned to the
// caller as {success:false, error} and never tear down the connection.
type WSHandler struct {
	rooms    *app.RoomService
	games    *app.GameService
	hub      *Hub
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(rooms *app.RoomService, games *app.GameService, hub *Hub, log *logrus.Logger) *WSHandler {
	return &WSHandler{
		rooms: rooms,
		games: games,
		hub:   hub,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

var errUnknownCommand = errors.New("unknown command")

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createRoomPayload struct {
	QuizID       string `json:"quizId"`
	MaxPlayers   int    `json:"maxPlayers"`
	QuestionTime int    `json:"questionTime"`
	IsPrivate    bool   `json:"isPrivate"`
	Password     string `json:"password"`
}

type joinRoomPayload struct {
	Code     string `json:"code"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type answerPayload struct {
	Answer    any   `json:"answer"`
	Timestamp int64 `json:"timestamp"`
}

// playerView is the client-facing shape of a player; identity internals stay
// server-side.
type playerView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	IsHost      bool      `json:"isHost"`
	IsReady     bool      `json:"isReady"`
	IsConnected bool      `json:"isConnected"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// roomView is the client-facing room snapshot: players as an ordered list,
// password hash omitted.
type roomView struct {
	ID                  string            `json:"id"`
	Code                string            `json:"code"`
	QuizID              string            `json:"quizId"`
	HostPlayerID        string            `json:"hostPlayerId"`
	MaxPlayers          int               `json:"maxPlayers"`
	QuestionTimeSeconds int               `json:"questionTimeSeconds"`
	IsPrivate           bool              `json:"isPrivate"`
	Status              domain.RoomStatus `json:"status"`
	Players             []playerView      `json:"players"`
	CreatedAt           time.Time         `json:"createdAt"`
}

func newPlayerView(p *domain.Player) playerView {
	return playerView{
		ID:          p.ID,
		Username:    p.Username,
		IsHost:      p.IsHost,
		IsReady:     p.IsReady,
		IsConnected: p.IsConnected,
		JoinedAt:    p.JoinedAt,
	}
}

func newRoomView(room *domain.Room) roomView {
	players := make([]playerView, 0, len(room.Players))
	for _, p := range room.Players {
		players = append(players, newPlayerView(p))
	}
	sort.Slice(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ID < players[j].ID
	})
	return roomView{
		ID:                  room.ID,
		Code:                room.Code,
		QuizID:              room.QuizID,
		HostPlayerID:        room.HostPlayerID,
		MaxPlayers:          room.MaxPlayers,
		QuestionTimeSeconds: room.QuestionTimeSeconds,
		IsPrivate:           room.IsPrivate,
		Status:              room.Status,
		Players:             players,
		CreatedAt:           room.CreatedAt,
	}
}

func ok(data map[string]any) map[string]any {
	result := map[string]any{"success": true}
	for k, v := range data {
		result[k] = v
	}
	return result
}

func fail(err error) map[string]any {
	return map[string]any{"success": false, "error": err.Error()}
}

// ServeWS is the persistent bidirectional command surface. Each connection
// gets an opaque connection id; identity arrives pre-verified via query
// parameters (userId for authenticated players, guestId for guests).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	identity := identityFromRequest(r)
	username := r.URL.Query().Get("username")

	c := &client{
		id:   uuid.NewString(),
		send: make(chan outboundMessage, 32),
	}
	h.hub.register(c)
	h.log.WithFields(logrus.Fields{"connection": c.id, "remote": r.RemoteAddr}).Info("websocket connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r.Context(), c, identity, username, inbound)
	}

	h.handleDisconnect(c)
	h.hub.unregister(c)
	close(c.send)
	<-writerDone
	h.log.WithField("connection", c.id).Info("websocket disconnected")
}

func (h *WSHandler) dispatch(ctx context.Context, c *client, identity domain.Identity, username string, msg inboundMessage) {
	switch msg.Type {
	case "room.create":
		h.handleCreate(ctx, c, identity, username, msg.Payload)
	case "room.join":
		h.handleJoin(ctx, c, identity, username, msg.Payload)
	case "room.leave":
		h.handleLeave(ctx, c)
	case "room.ready":
		h.handleReady(ctx, c)
	case "room.start":
		h.handleStart(ctx, c)
	case "room.list":
		h.handleList(ctx, c)
	case "game.answer":
		h.handleAnswer(ctx, c, msg.Payload)
	default:
		h.reply(c, msg.Type+".result", fail(errUnknownCommand))
	}
}

func (h *WSHandler) handleCreate(ctx context.Context, c *client, identity domain.Identity, username string, raw json.RawMessage) {
	var payload createRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.reply(c, "room.create.result", fail(domain.ErrInvalidRoomSettings))
		return
	}

	room, err := h.rooms.CreateRoom(ctx, identity, username, c.id, app.RoomSettings{
		QuizID:              payload.QuizID,
		MaxPlayers:          payload.MaxPlayers,
		QuestionTimeSeconds: payload.QuestionTime,
		IsPrivate:           payload.IsPrivate,
		Password:            payload.Password,
	})
	if err != nil {
		h.reply(c, "room.create.result", fail(err))
		return
	}

	h.hub.joinRoom(c, room.ID, room.HostPlayerID)
	h.reply(c, "room.create.result", ok(map[string]any{"room": newRoomView(room)}))
	if !room.IsPrivate {
		h.hub.ToAll("room.list.updated", nil)
	}
}

func (h *WSHandler) handleJoin(ctx context.Context, c *client, identity domain.Identity, username string, raw json.RawMessage) {
	var payload joinRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.reply(c, "room.join.result", fail(domain.ErrRoomNotFound))
		return
	}
	if payload.Username != "" {
		username = payload.Username
	}

	room, player, err := h.rooms.JoinRoom(ctx, payload.Code, identity, username, c.id, payload.Password)
	if err != nil {
		h.reply(c, "room.join.result", fail(err))
		return
	}

	h.hub.joinRoom(c, room.ID, player.ID)
	h.reply(c, "room.join.result", ok(map[string]any{
		"room":   newRoomView(room),
		"player": newPlayerView(player),
	}))
	h.hub.ToRoom(room.ID, "room.player.joined", map[string]any{"player": newPlayerView(player)})
	h.hub.ToRoom(room.ID, "room.updated", map[string]any{"room": newRoomView(room)})
}

func (h *WSHandler) handleLeave(ctx context.Context, c *client) {
	roomID, playerID := c.roomID, c.playerID
	if roomID == "" || playerID == "" {
		h.reply(c, "room.leave.result", fail(domain.ErrRoomNotFound))
		return
	}

	room, deleted, err := h.rooms.LeaveRoom(ctx, roomID, playerID)
	if err != nil {
		h.reply(c, "room.leave.result", fail(err))
		return
	}

	h.hub.leaveRoom(c)
	h.reply(c, "room.leave.result", ok(nil))

	if deleted {
		h.games.Abort(roomID)
		h.hub.ToRoom(roomID, "room.deleted", map[string]any{"roomId": roomID})
		h.hub.dropRoom(roomID)
		h.hub.ToAll("room.list.updated", nil)
		return
	}
	h.hub.ToRoom(roomID, "room.player.left", map[string]any{"playerId": playerID})
	h.hub.ToRoom(roomID, "room.updated", map[string]any{"room": newRoomView(room)})
}

func (h *WSHandler) handleReady(ctx context.Context, c *client) {
	if c.roomID == "" || c.playerID == "" {
		h.reply(c, "room.ready.result", fail(domain.ErrRoomNotFound))
		return
	}

	room, player, err := h.rooms.ToggleReady(ctx, c.roomID, c.playerID)
	if err != nil {
		h.reply(c, "room.ready.result", fail(err))
		return
	}

	h.reply(c, "room.ready.result", ok(map[string]any{"isReady": player.IsReady}))
	h.hub.ToRoom(room.ID, "room.player.ready", map[string]any{
		"playerId": player.ID,
		"isReady":  player.IsReady,
	})
	h.hub.ToRoom(room.ID, "room.updated", map[string]any{"room": newRoomView(room)})
}

func (h *WSHandler) handleStart(ctx context.Context, c *client) {
	if c.roomID == "" || c.playerID == "" {
		h.reply(c, "room.start.result", fail(domain.ErrRoomNotFound))
		return
	}

	room, err := h.rooms.StartGame(ctx, c.roomID, c.playerID)
	if err != nil {
		h.reply(c, "room.start.result", fail(err))
		return
	}

	if _, err := h.games.Begin(ctx, room); err != nil {
		h.reply(c, "room.start.result", fail(err))
		h.hub.ToRoom(room.ID, "game.error", map[string]any{"message": err.Error()})
		return
	}

	h.reply(c, "room.start.result", ok(nil))
	h.hub.ToRoom(room.ID, "room.updated", map[string]any{"room": newRoomView(room)})
	if !room.IsPrivate {
		h.hub.ToAll("room.list.updated", nil)
	}
}

func (h *WSHandler) handleList(ctx context.Context, c *client) {
	summaries, err := h.rooms.ListPublicRooms(ctx)
	if err != nil {
		h.reply(c, "room.list.result", fail(err))
		return
	}
	h.reply(c, "room.list.result", ok(map[string]any{"rooms": summaries}))
}

func (h *WSHandler) handleAnswer(ctx context.Context, c *client, raw json.RawMessage) {
	if c.roomID == "" || c.playerID == "" {
		h.reply(c, "game.answer.result", fail(domain.ErrSessionNotFound))
		return
	}

	var payload answerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.reply(c, "game.answer.result", fail(domain.ErrInvalidAnswerFormat))
		return
	}

	result, err := h.games.SubmitAnswer(ctx, c.roomID, c.playerID, payload.Answer, payload.Timestamp)
	if err != nil {
		h.reply(c, "game.answer.result", fail(err))
		return
	}
	h.reply(c, "game.answer.result", ok(map[string]any{
		"isCorrect":     result.IsCorrect,
		"correctAnswer": result.CorrectAnswerIndex,
		"points":        result.Points,
		"timeMs":        result.ResponseTimeMs,
		"newScore":      result.NewScore,
		"rank":          result.Rank,
	}))
}

// handleDisconnect marks the player disconnected (not removed) so the same
// identity can reclaim the seat on rejoin.
func (h *WSHandler) handleDisconnect(c *client) {
	roomID, playerID := c.roomID, c.playerID
	if roomID == "" || playerID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room, marked, err := h.rooms.HandleDisconnect(ctx, roomID, playerID, c.id)
	if err != nil || !marked {
		return
	}
	h.hub.ToRoom(roomID, "room.player.disconnected", map[string]any{"playerId": playerID})
	h.hub.ToRoom(roomID, "room.updated", map[string]any{"room": newRoomView(room)})
}

func (h *WSHandler) reply(c *client, msgType string, payload any) {
	h.hub.deliver(c, outboundMessage{Type: msgType, Payload: payload})
}

func identityFromRequest(r *http.Request) domain.Identity {
	if userID := r.URL.Query().Get("userId"); userID != "" {
		return domain.AuthenticatedIdentity(userID)
	}
	guestID := r.URL.Query().Get("guestId")
	if guestID == "" {
		guestID = uuid.NewString()
	}
	return domain.GuestIdentity(guestID)
}
