package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore. Rooms are kept
// as JSON snapshots so reads and writes have the same copy semantics as the
// Redis store (no shared pointers between callers).
type RoomStore struct {
	mu     sync.RWMutex
	rooms  map[string][]byte
	byCode map[string]string
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:  make(map[string][]byte),
		byCode: make(map[string]string),
	}
}

func (s *RoomStore) GetRoom(_ context.Context, roomID string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decode(s.rooms[roomID])
}

func (s *RoomStore) GetRoomByCode(_ context.Context, code string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return s.decode(s.rooms[id])
}

func (s *RoomStore) SaveRoom(_ context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = data
	s.byCode[room.Code] = room.ID
	return nil
}

func (s *RoomStore) DeleteRoom(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room.ID)
	delete(s.byCode, room.Code)
	return nil
}

func (s *RoomStore) ListRooms(_ context.Context) ([]*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]*domain.Room, 0, len(s.rooms))
	for _, data := range s.rooms {
		room, err := s.decode(data)
		if err != nil {
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *RoomStore) decode(data []byte) (*domain.Room, error) {
	if data == nil {
		return nil, domain.ErrRoomNotFound
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, err
	}
	if room.Players == nil {
		room.Players = make(map[string]*domain.Player)
	}
	return &room, nil
}
