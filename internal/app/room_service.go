package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
)

const (
	defaultMaxPlayers          = 10
	defaultQuestionTimeSeconds = 15

	minPlayers     = 2
	maxPlayersCap  = 50
	minQuestionSec = 5
	maxQuestionSec = 60
	minPasswordLen = 4
	maxPasswordLen = 20

	codeAttempts = 10
)

// RoomSettings is the validated input of room creation. Zero values fall
// back to the documented defaults.
type RoomSettings struct {
	QuizID              string
	MaxPlayers          int
	QuestionTimeSeconds int
	IsPrivate           bool
	Password            string
}

// RoomService owns the room lifecycle: creation, join/leave, ready state,
// code-based discovery and guest-identity reconciliation.
type RoomService struct {
	rooms   RoomStore
	quizzes QuizRepository
	log     *logrus.Logger
	now     func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRoomService(rooms RoomStore, quizzes QuizRepository, log *logrus.Logger) *RoomService {
	return &RoomService{
		rooms:   rooms,
		quizzes: quizzes,
		log:     log,
		now:     time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateRoom validates the settings, generates a unique 6-digit join code and
// seeds the host player. The host is implicitly always ready.
func (s *RoomService) CreateRoom(ctx context.Context, identity domain.Identity, username, connectionID string, settings RoomSettings) (*domain.Room, error) {
	if settings.MaxPlayers == 0 {
		settings.MaxPlayers = defaultMaxPlayers
	}
	if settings.QuestionTimeSeconds == 0 {
		settings.QuestionTimeSeconds = defaultQuestionTimeSeconds
	}
	if settings.MaxPlayers < minPlayers || settings.MaxPlayers > maxPlayersCap {
		return nil, fmt.Errorf("%w: maxPlayers must be %d-%d", domain.ErrInvalidRoomSettings, minPlayers, maxPlayersCap)
	}
	if settings.QuestionTimeSeconds < minQuestionSec || settings.QuestionTimeSeconds > maxQuestionSec {
		return nil, fmt.Errorf("%w: questionTime must be %d-%ds", domain.ErrInvalidRoomSettings, minQuestionSec, maxQuestionSec)
	}
	if settings.IsPrivate && (len(settings.Password) < minPasswordLen || len(settings.Password) > maxPasswordLen) {
		return nil, fmt.Errorf("%w: password must be %d-%d characters", domain.ErrInvalidRoomSettings, minPasswordLen, maxPasswordLen)
	}

	if _, err := s.quizzes.GetQuiz(ctx, settings.QuizID); err != nil {
		return nil, domain.ErrQuizNotFound
	}

	code, err := s.generateCode(ctx)
	if err != nil {
		return nil, err
	}

	var passwordHash string
	if settings.IsPrivate {
		hash, err := bcrypt.GenerateFromPassword([]byte(settings.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		passwordHash = string(hash)
	}

	now := s.now()
	host := &domain.Player{
		ID:           uuid.NewString(),
		Identity:     identity,
		ConnectionID: connectionID,
		Username:     displayName(username),
		IsHost:       true,
		IsReady:      true,
		IsConnected:  true,
		JoinedAt:     now,
	}

	room := &domain.Room{
		ID:                  uuid.NewString(),
		Code:                code,
		QuizID:              settings.QuizID,
		HostPlayerID:        host.ID,
		MaxPlayers:          settings.MaxPlayers,
		QuestionTimeSeconds: settings.QuestionTimeSeconds,
		IsPrivate:           settings.IsPrivate,
		PasswordHash:        passwordHash,
		Status:              domain.RoomWaiting,
		Players:             map[string]*domain.Player{host.ID: host},
		CreatedAt:           now,
	}

	if err := s.rooms.SaveRoom(ctx, room); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"room": room.ID, "code": room.Code, "host": host.ID}).Info("room created")
	return room, nil
}

// JoinRoom resolves the joining identity against existing members and either
// reclaims an existing player entity or appends a new one.
//
// Resolution order: authenticated user id; guest id (reconnect across page
// reloads before the disconnect is observed); connection id; finally a
// disconnected guest entry with the same display name, but only when no other
// currently connected player shares that name. Stale disconnected duplicates
// of the same guest id are purged before the capacity check so ghosts never
// hold seats.
func (s *RoomService) JoinRoom(ctx context.Context, code string, identity domain.Identity, username, connectionID, password string) (*domain.Room, *domain.Player, error) {
	room, err := s.rooms.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if room.Status != domain.RoomWaiting {
		return nil, nil, domain.ErrGameAlreadyStarted
	}
	if room.IsPrivate {
		if bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(password)) != nil {
			return nil, nil, domain.ErrInvalidPassword
		}
	}

	name := displayName(username)

	existing := s.matchPlayer(room, identity, connectionID, name)
	if identity.IsGuest() {
		s.purgeZombies(room, identity, existing)
	}

	if existing != nil {
		existing.ConnectionID = connectionID
		existing.IsConnected = true
		// Name-based reclaim means the client lost its guest token; adopt the
		// new one so the next reconnect matches directly.
		if identity.IsGuest() && existing.Identity.IsGuest() {
			existing.Identity = identity
		}
		if err := s.rooms.SaveRoom(ctx, room); err != nil {
			return nil, nil, err
		}
		s.log.WithFields(logrus.Fields{"room": room.ID, "player": existing.ID}).Info("player reconnected")
		return room, existing, nil
	}

	if len(room.Players) >= room.MaxPlayers {
		return nil, nil, domain.ErrRoomFull
	}

	player := &domain.Player{
		ID:           uuid.NewString(),
		Identity:     identity,
		ConnectionID: connectionID,
		Username:     name,
		IsConnected:  true,
		JoinedAt:     s.now(),
	}
	room.Players[player.ID] = player

	if err := s.rooms.SaveRoom(ctx, room); err != nil {
		return nil, nil, err
	}
	s.log.WithFields(logrus.Fields{"room": room.ID, "player": player.ID, "username": name}).Info("player joined")
	return room, player, nil
}

// purgeZombies drops disconnected duplicates of the joining guest id, keeping
// the entry being reclaimed. A rapid refresh must not leave duplicate ghosts
// holding seats.
func (s *RoomService) purgeZombies(room *domain.Room, identity domain.Identity, keep *domain.Player) {
	for id, p := range room.Players {
		if p == keep || p.IsHost || p.IsConnected {
			continue
		}
		if p.Identity.Matches(identity) {
			delete(room.Players, id)
			s.log.WithFields(logrus.Fields{"room": room.ID, "player": id}).Debug("purged zombie player")
		}
	}
}

func (s *RoomService) matchPlayer(room *domain.Room, identity domain.Identity, connectionID, name string) *domain.Player {
	if !identity.IsGuest() {
		for _, p := range room.Players {
			if p.Identity.Matches(identity) {
				return p
			}
		}
		return nil
	}

	for _, p := range room.Players {
		if p.Identity.Matches(identity) {
			return p
		}
	}
	for _, p := range room.Players {
		if p.ConnectionID == connectionID {
			return p
		}
	}
	// Same display name held by a connected player is a different person.
	for _, p := range room.Players {
		if p.IsConnected && p.Username == name {
			return nil
		}
	}
	for _, p := range room.Players {
		if !p.IsConnected && p.Identity.IsGuest() && p.Username == name {
			return p
		}
	}
	return nil
}

// LeaveRoom removes the player. A departing host dissolves the whole room;
// draining the last player deletes it too. Returns the surviving room, or nil
// with deleted=true.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, playerID string) (*domain.Room, bool, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	player, ok := room.Players[playerID]
	if !ok {
		return nil, false, domain.ErrPlayerNotFound
	}

	if player.IsHost {
		if err := s.rooms.DeleteRoom(ctx, room); err != nil {
			return nil, false, err
		}
		s.log.WithFields(logrus.Fields{"room": room.ID, "host": playerID}).Info("host left, room deleted")
		return nil, true, nil
	}

	delete(room.Players, playerID)
	if len(room.Players) == 0 {
		if err := s.rooms.DeleteRoom(ctx, room); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	if err := s.rooms.SaveRoom(ctx, room); err != nil {
		return nil, false, err
	}
	return room, false, nil
}

// ToggleReady flips the ready flag of a non-host player.
func (s *RoomService) ToggleReady(ctx context.Context, roomID, playerID string) (*domain.Room, *domain.Player, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	player, ok := room.Players[playerID]
	if !ok {
		return nil, nil, domain.ErrPlayerNotFound
	}
	if player.IsHost {
		return nil, nil, domain.ErrHostCannotToggle
	}
	player.IsReady = !player.IsReady

	if err := s.rooms.SaveRoom(ctx, room); err != nil {
		return nil, nil, err
	}
	return room, player, nil
}

// StartGame transitions a WAITING room to STARTING. Only the host may start,
// every non-host player must be ready, and a match needs at least two
// players.
func (s *RoomService) StartGame(ctx context.Context, roomID, requesterID string) (*domain.Room, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	requester, ok := room.Players[requesterID]
	if !ok || !requester.IsHost {
		return nil, domain.ErrNotHost
	}
	if room.Status != domain.RoomWaiting {
		return nil, domain.ErrGameAlreadyStarted
	}
	if len(room.Players) < minPlayers {
		return nil, domain.ErrNotAllPlayersReady
	}
	for _, p := range room.Players {
		if !p.IsHost && !p.IsReady {
			return nil, domain.ErrNotAllPlayersReady
		}
	}

	now := s.now()
	room.Status = domain.RoomStarting
	room.StartedAt = &now

	if err := s.rooms.SaveRoom(ctx, room); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"room": room.ID, "players": len(room.Players)}).Info("game starting")
	return room, nil
}

// ListPublicRooms returns summaries of every non-private WAITING room,
// newest first, annotated with the live quiz title and host name.
func (s *RoomService) ListPublicRooms(ctx context.Context) ([]domain.RoomSummary, error) {
	rooms, err := s.rooms.ListRooms(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		if room.IsPrivate || room.Status != domain.RoomWaiting {
			continue
		}
		summary := domain.RoomSummary{
			ID:          room.ID,
			Code:        room.Code,
			QuizID:      room.QuizID,
			PlayerCount: len(room.Players),
			MaxPlayers:  room.MaxPlayers,
			CreatedAt:   room.CreatedAt,
		}
		if host := room.Host(); host != nil {
			summary.HostUsername = host.Username
		}
		if quiz, err := s.quizzes.GetQuiz(ctx, room.QuizID); err == nil {
			summary.QuizTitle = quiz.Title
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// HandleDisconnect marks a player disconnected without removing them, so a
// later join by the same identity can reclaim the entry. Only the connection
// that owns the seat may mark it: when the player already reconnected on a
// new socket, the old socket's late close is a no-op (marked=false).
func (s *RoomService) HandleDisconnect(ctx context.Context, roomID, playerID, connectionID string) (*domain.Room, bool, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	player, ok := room.Players[playerID]
	if !ok {
		return nil, false, domain.ErrPlayerNotFound
	}
	if player.ConnectionID != connectionID {
		s.log.WithFields(logrus.Fields{"room": roomID, "player": playerID, "connection": connectionID}).Debug("ignoring stale disconnect")
		return room, false, nil
	}
	player.IsConnected = false

	if err := s.rooms.SaveRoom(ctx, room); err != nil {
		return nil, false, err
	}
	s.log.WithFields(logrus.Fields{"room": roomID, "player": playerID}).Info("player disconnected")
	return room, true, nil
}

// GetRoom exposes a room snapshot (read-only HTTP surface).
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	return s.rooms.GetRoom(ctx, roomID)
}

func (s *RoomService) generateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		s.mu.Lock()
		code := fmt.Sprintf("%06d", s.rnd.Intn(1000000))
		s.mu.Unlock()

		if _, err := s.rooms.GetRoomByCode(ctx, code); errors.Is(err, domain.ErrRoomNotFound) {
			return code, nil
		}
	}
	return "", domain.ErrCodeGenerationExhausted
}

func displayName(username string) string {
	if username == "" {
		return "Guest"
	}
	return username
}
