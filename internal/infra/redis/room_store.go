// Package redis implements the durable ephemeral store contract on top of a
// shared Redis instance so any server process can serve any connection.
// Rooms and sessions are single-key JSON aggregates with last-writer-wins
// semantics; the remaining read-modify-write race between concurrent writers
// to the same room is an accepted trade-off of the storage model.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
)

const (
	roomKeyPrefix = "room:"
	codeKeyPrefix = "roomcode:"
)

// RoomStore persists rooms under room:{id} with a roomcode:{code} index key.
// Both keys are written in one pipelined multi-set and share the same TTL,
// refreshed on every mutation. Reads degrade to not-found when Redis is
// unavailable so the system behaves as an empty world instead of failing
// hard; writes are best-effort log-and-continue.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

func NewRoomStore(client *redis.Client, ttl time.Duration, log *logrus.Logger) *RoomStore {
	return &RoomStore{client: client, ttl: ttl, log: log}
}

func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	data, err := s.client.Get(ctx, roomKeyPrefix+roomID).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.WithError(err).WithField("room", roomID).Warn("room read degraded to not-found")
		}
		return nil, domain.ErrRoomNotFound
	}
	return decodeRoom(data)
}

func (s *RoomStore) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	roomID, err := s.client.Get(ctx, codeKeyPrefix+code).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.WithError(err).WithField("code", code).Warn("code lookup degraded to not-found")
		}
		return nil, domain.ErrRoomNotFound
	}
	return s.GetRoom(ctx, roomID)
}

func (s *RoomStore) SaveRoom(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, roomKeyPrefix+room.ID, data, s.ttl)
	pipe.Set(ctx, codeKeyPrefix+room.Code, room.ID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.WithError(err).WithField("room", room.ID).Error("room write failed")
	}
	return nil
}

func (s *RoomStore) DeleteRoom(ctx context.Context, room *domain.Room) error {
	if err := s.client.Del(ctx, roomKeyPrefix+room.ID, codeKeyPrefix+room.Code).Err(); err != nil {
		s.log.WithError(err).WithField("room", room.ID).Error("room delete failed")
	}
	return nil
}

// ListRooms enumerates room keys with SCAN and bulk-fetches the snapshots.
func (s *RoomStore) ListRooms(ctx context.Context) ([]*domain.Room, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, roomKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.log.WithError(err).Warn("room scan degraded to empty listing")
		return nil, nil
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		s.log.WithError(err).Warn("room bulk read degraded to empty listing")
		return nil, nil
	}

	rooms := make([]*domain.Room, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		room, err := decodeRoom([]byte(raw))
		if err != nil {
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func decodeRoom(data []byte) (*domain.Room, error) {
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, err
	}
	// Players travels as a field-keyed object; rebuild the map on an empty
	// record rather than handing callers a nil container.
	if room.Players == nil {
		room.Players = make(map[string]*domain.Player)
	}
	return &room, nil
}
