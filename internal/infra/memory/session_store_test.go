package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
)

func TestSessionStoreRoundTrip(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	session := &domain.GameSession{
		RoomID: "room-1",
		Scores: map[string]int{"p1": 500},
		Status: domain.SessionPlaying,
	}
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetSession(ctx, "room-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Scores["p1"] != 500 {
		t.Fatalf("unexpected session %+v", got)
	}

	// Snapshot semantics: the caller's copy is independent.
	got.Scores["p1"] = 999
	again, _ := store.GetSession(ctx, "room-1")
	if again.Scores["p1"] != 500 {
		t.Fatalf("store leaked caller mutation: %+v", again)
	}
}

func TestSessionStoreMiss(t *testing.T) {
	store := NewSessionStore()
	if _, err := store.GetSession(context.Background(), "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}
