package app_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vincentsi/FastQuizParty-sub000/internal/app"
	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
	"github.com/vincentsi/FastQuizParty-sub000/internal/infra/memory"
)

func TestCreateRoomDefaults(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newRoomService(t)

	room, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g-host"), "Alice", "conn-1", app.RoomSettings{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if room.MaxPlayers != 10 || room.QuestionTimeSeconds != 15 {
		t.Fatalf("expected defaults 10/15, got %d/%d", room.MaxPlayers, room.QuestionTimeSeconds)
	}
	if len(room.Code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", room.Code)
	}
	if room.Status != domain.RoomWaiting {
		t.Fatalf("expected WAITING, got %s", room.Status)
	}
	host := room.Host()
	if host == nil || !host.IsHost || !host.IsReady || !host.IsConnected {
		t.Fatalf("expected connected ready host, got %+v", host)
	}
}

func TestCreateRoomValidation(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newRoomService(t)

	cases := []struct {
		name     string
		settings app.RoomSettings
	}{
		{"too few players", app.RoomSettings{QuizID: "quiz-1", MaxPlayers: 1}},
		{"too many players", app.RoomSettings{QuizID: "quiz-1", MaxPlayers: 51}},
		{"question time too short", app.RoomSettings{QuizID: "quiz-1", QuestionTimeSeconds: 3}},
		{"question time too long", app.RoomSettings{QuizID: "quiz-1", QuestionTimeSeconds: 61}},
		{"private without password", app.RoomSettings{QuizID: "quiz-1", IsPrivate: true}},
		{"password too short", app.RoomSettings{QuizID: "quiz-1", IsPrivate: true, Password: "abc"}},
	}
	for _, tc := range cases {
		if _, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g1"), "Alice", "c1", tc.settings); !errors.Is(err, domain.ErrInvalidRoomSettings) {
			t.Fatalf("%s: expected invalid settings, got %v", tc.name, err)
		}
	}

	if _, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g1"), "Alice", "c1", app.RoomSettings{QuizID: "missing"}); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestJoinPrivateRoomChecksPassword(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newRoomService(t)

	room, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g-host"), "Alice", "c1", app.RoomSettings{
		QuizID: "quiz-1", IsPrivate: true, Password: "secret",
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if _, _, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g2"), "Bob", "c2", "wrong"); !errors.Is(err, domain.ErrInvalidPassword) {
		t.Fatalf("expected invalid password, got %v", err)
	}
	if _, _, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g2"), "Bob", "c2", "secret"); err != nil {
		t.Fatalf("join with password: %v", err)
	}
}

func TestJoinRoomCapacity(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newRoomService(t)

	room, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g-host"), "Alice", "c1", app.RoomSettings{QuizID: "quiz-1", MaxPlayers: 2})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, _, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g2"), "Bob", "c2", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, _, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g3"), "Carol", "c3", ""); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("expected room full, got %v", err)
	}
}

func TestJoinRejectedAfterStart(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newRoomService(t)

	room := createStartableRoom(ctx, t, rooms)
	if _, err := rooms.StartGame(ctx, room.ID, room.HostPlayerID); err != nil {
		t.Fatalf("start game: %v", err)
	}

	if _, _, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g-late"), "Dave", "c9", ""); !errors.Is(err, domain.ErrGameAlreadyStarted) {
		t.Fatalf("expected already started, got %v", err)
	}
}

func TestGuestReconnectReclaimsSeat(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newRoomService(t)

	room, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g-host"), "Alice", "c1", app.RoomSettings{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	_, bob, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g-bob"), "Bob", "c2", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, marked, err := rooms.HandleDisconnect(ctx, room.ID, bob.ID, "c2"); err != nil || !marked {
		t.Fatalf("disconnect: marked=%v err=%v", marked, err)
	}

	// Same guest token, fresh connection: the seat (and player id) survives.
	got, reclaimed, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g-bob"), "Bob", "c3", "")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if reclaimed.ID != bob.ID {
		t.Fatalf("expected reclaimed player %s, got %s", bob.ID, reclaimed.ID)
	}
	if !reclaimed.IsConnected || reclaimed.ConnectionID != "c3" {
		t.Fatalf("expected reconnected on c3, got %+v", reclaimed)
	}
	if len(got.Players) != 2 {
		t.Fatalf("expected 2 players after reclaim, got %d", len(got.Players))
	}
}

func TestStaleDisconnectIgnoredAfterReconnect(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newRoomService(t)

	room, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g-host"), "Alice", "c1", app.RoomSettings{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	_, bob, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g-bob"), "Bob", "c2", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	// Page refresh: the new socket joins before the old one's close arrives.
	_, again, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g-bob"), "Bob", "c3", "")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if again.ID != bob.ID {
		t.Fatalf("expected reclaim, got %s and %s", bob.ID, again.ID)
	}

	// The old socket's late close no longer owns the seat.
	got, marked, err := rooms.HandleDisconnect(ctx, room.ID, bob.ID, "c2")
	if err != nil {
		t.Fatalf("stale disconnect: %v", err)
	}
	if marked {
		t.Fatalf("stale close must not mark the reconnected player")
	}
	p := got.Players[bob.ID]
	if p == nil || !p.IsConnected || p.ConnectionID != "c3" {
		t.Fatalf("expected player still live on c3, got %+v", p)
	}

	// With the seat still live, a same-named guest is a new player and can
	// never take over the victim's identity.
	_, thief, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g-thief"), "Bob", "c4", "")
	if err != nil {
		t.Fatalf("join duplicate name: %v", err)
	}
	if thief.ID == bob.ID {
		t.Fatalf("connected player's seat reused by a different guest identity")
	}
}

func TestRejoinPurgesZombieDuplicates(t *testing.T) {
	ctx := context.Background()
	rooms, store := newRoomService(t)

	room, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g-host"), "Alice", "c1", app.RoomSettings{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	// A refresh storm can strand several disconnected entries under the same
	// guest token; seed that state directly in the store.
	seeded, err := store.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	for _, id := range []string{"zombie-1", "zombie-2"} {
		seeded.Players[id] = &domain.Player{
			ID:           id,
			Identity:     domain.GuestIdentity("g-bob"),
			ConnectionID: "dead-" + id,
			Username:     "Bob",
			JoinedAt:     time.Now(),
		}
	}
	if err := store.SaveRoom(ctx, seeded); err != nil {
		t.Fatalf("seed room: %v", err)
	}

	got, reclaimed, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g-bob"), "Bob", "c9", "")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if reclaimed.ID != "zombie-1" && reclaimed.ID != "zombie-2" {
		t.Fatalf("expected one of the stranded seats reclaimed, got %s", reclaimed.ID)
	}
	if !reclaimed.IsConnected || reclaimed.ConnectionID != "c9" {
		t.Fatalf("expected reclaimed seat live on c9, got %+v", reclaimed)
	}
	if len(got.Players) != 2 {
		t.Fatalf("expected host plus exactly one Bob, got %d players", len(got.Players))
	}

	// The purge rides the join write, not just the returned snapshot.
	persisted, err := store.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("reload room: %v", err)
	}
	if len(persisted.Players) != 2 {
		t.Fatalf("expected purge persisted, got %d players", len(persisted.Players))
	}
	if _, ok := persisted.Players[reclaimed.ID]; !ok {
		t.Fatalf("reclaimed seat missing after persist")
	}
}

func TestNameReclaimOnlyWhenDisconnected(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newRoomService(t)

	room, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g-host"), "Alice", "c1", app.RoomSettings{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	_, bob, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g-bob"), "Bob", "c2", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	// A second connected "Bob" is a different person.
	_, bob2, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g-other"), "Bob", "c3", "")
	if err != nil {
		t.Fatalf("join duplicate name: %v", err)
	}
	if bob2.ID == bob.ID {
		t.Fatalf("expected a new player for connected duplicate name")
	}

	// Once the only "Bob" in the room is disconnected, a guest with a lost
	// token but the same name reclaims the seat and the entry adopts the new
	// guest id.
	if _, _, err := rooms.LeaveRoom(ctx, room.ID, bob2.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, marked, err := rooms.HandleDisconnect(ctx, room.ID, bob.ID, "c2"); err != nil || !marked {
		t.Fatalf("disconnect: marked=%v err=%v", marked, err)
	}
	_, reclaimed, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g-new-token"), "Bob", "c4", "")
	if err != nil {
		t.Fatalf("rejoin by name: %v", err)
	}
	if reclaimed.ID != bob.ID {
		t.Fatalf("expected reclaimed seat %s, got %s", bob.ID, reclaimed.ID)
	}
	if !reclaimed.Identity.Matches(domain.GuestIdentity("g-new-token")) {
		t.Fatalf("expected adopted guest identity, got %+v", reclaimed.Identity)
	}
}

func TestAuthenticatedReconnectMatchesUserID(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newRoomService(t)

	room, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g-host"), "Alice", "c1", app.RoomSettings{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	_, bob, err := rooms.JoinRoom(ctx, room.Code, domain.AuthenticatedIdentity("user-42"), "Bob", "c2", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	_, again, err := rooms.JoinRoom(ctx, room.Code, domain.AuthenticatedIdentity("user-42"), "Bobby", "c3", "")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if again.ID != bob.ID {
		t.Fatalf("expected same player for same user id, got %s and %s", bob.ID, again.ID)
	}
}

func TestHostLeaveDeletesRoom(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newRoomService(t)

	room, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g-host"), "Alice", "c1", app.RoomSettings{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, _, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g2"), "Bob", "c2", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	_, deleted, err := rooms.LeaveRoom(ctx, room.ID, room.HostPlayerID)
	if err != nil {
		t.Fatalf("host leave: %v", err)
	}
	if !deleted {
		t.Fatalf("expected room deleted when host leaves")
	}
	if _, err := rooms.GetRoom(ctx, room.ID); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room gone, got %v", err)
	}
}

func TestLastPlayerLeaveDeletesRoom(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newRoomService(t)

	room, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g-host"), "Alice", "c1", app.RoomSettings{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	_, bob, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g2"), "Bob", "c2", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	got, deleted, err := rooms.LeaveRoom(ctx, room.ID, bob.ID)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if deleted {
		t.Fatalf("expected room to survive a regular leave")
	}
	if len(got.Players) != 1 {
		t.Fatalf("expected 1 player left, got %d", len(got.Players))
	}
}

func TestToggleReadyAndStartGate(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newRoomService(t)

	room, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g-host"), "Alice", "c1", app.RoomSettings{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	// Solo start is rejected.
	if _, err := rooms.StartGame(ctx, room.ID, room.HostPlayerID); !errors.Is(err, domain.ErrNotAllPlayersReady) {
		t.Fatalf("expected not-ready for solo start, got %v", err)
	}

	_, bob, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g2"), "Bob", "c2", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, _, err := rooms.ToggleReady(ctx, room.ID, room.HostPlayerID); !errors.Is(err, domain.ErrHostCannotToggle) {
		t.Fatalf("expected host toggle rejection, got %v", err)
	}
	if _, err := rooms.StartGame(ctx, room.ID, bob.ID); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected not-host, got %v", err)
	}
	if _, err := rooms.StartGame(ctx, room.ID, room.HostPlayerID); !errors.Is(err, domain.ErrNotAllPlayersReady) {
		t.Fatalf("expected not-ready before toggle, got %v", err)
	}

	if _, _, err := rooms.ToggleReady(ctx, room.ID, bob.ID); err != nil {
		t.Fatalf("toggle ready: %v", err)
	}
	started, err := rooms.StartGame(ctx, room.ID, room.HostPlayerID)
	if err != nil {
		t.Fatalf("start game: %v", err)
	}
	if started.Status != domain.RoomStarting {
		t.Fatalf("expected STARTING, got %s", started.Status)
	}
	if _, err := rooms.StartGame(ctx, room.ID, room.HostPlayerID); !errors.Is(err, domain.ErrGameAlreadyStarted) {
		t.Fatalf("expected already started on second start, got %v", err)
	}
}

func TestListPublicRoomsHidesPrivateAndStarted(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newRoomService(t)

	public, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g1"), "Alice", "c1", app.RoomSettings{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("create public: %v", err)
	}
	if _, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g2"), "Bob", "c2", app.RoomSettings{QuizID: "quiz-1", IsPrivate: true, Password: "hunter2"}); err != nil {
		t.Fatalf("create private: %v", err)
	}
	started := createStartableRoom(ctx, t, rooms)
	if _, err := rooms.StartGame(ctx, started.ID, started.HostPlayerID); err != nil {
		t.Fatalf("start: %v", err)
	}

	summaries, err := rooms.ListPublicRooms(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected only the waiting public room, got %d", len(summaries))
	}
	if summaries[0].ID != public.ID {
		t.Fatalf("expected room %s, got %s", public.ID, summaries[0].ID)
	}
	if summaries[0].QuizTitle != "Capital cities" {
		t.Fatalf("expected quiz title annotation, got %q", summaries[0].QuizTitle)
	}
	if summaries[0].HostUsername != "Alice" {
		t.Fatalf("expected host username, got %q", summaries[0].HostUsername)
	}
}

func createStartableRoom(ctx context.Context, t *testing.T, rooms *app.RoomService) *domain.Room {
	t.Helper()
	room, err := rooms.CreateRoom(ctx, domain.GuestIdentity("g-host-s"), "Host", "cs1", app.RoomSettings{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	_, p, err := rooms.JoinRoom(ctx, room.Code, domain.GuestIdentity("g-p-s"), "Player", "cs2", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, _, err := rooms.ToggleReady(ctx, room.ID, p.ID); err != nil {
		t.Fatalf("toggle ready: %v", err)
	}
	return room
}

func newRoomService(t *testing.T) (*app.RoomService, *memory.RoomStore) {
	t.Helper()
	store := memory.NewRoomStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(testQuizzes()), 5*time.Minute)
	return app.NewRoomService(store, quizzes, testLogger()), store
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Capital cities",
			Questions: []domain.Question{
				{
					ID:                 "q1",
					Text:               "Capital of France?",
					Options:            []string{"Lyon", "Paris", "Nice"},
					CorrectAnswerIndex: 1,
					TimeLimitSeconds:   15,
					Points:             1000,
				},
				{
					ID:                 "q2",
					Text:               "Capital of Japan?",
					Options:            []string{"Kyoto", "Osaka", "Tokyo"},
					CorrectAnswerIndex: 2,
					TimeLimitSeconds:   15,
					Points:             1000,
				},
			},
		},
		"quiz-untimed": {
			ID:    "quiz-untimed",
			Title: "Room-paced quiz",
			Questions: []domain.Question{
				{
					ID:                 "u1",
					Text:               "Pick the first option",
					Options:            []string{"this one", "not this"},
					CorrectAnswerIndex: 0,
					Points:             500,
				},
			},
		},
	}
}
