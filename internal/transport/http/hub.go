package http

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// outboundMessage is the envelope of every server-to-client frame.
type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// client is one live websocket connection. Writes go through the send
// channel so a single writer goroutine owns the socket.
type client struct {
	id       string
	roomID   string
	playerID string
	send     chan outboundMessage
}

// Hub tracks live connections and fans events out to room members. Delivery
// is best effort, at most once: a slow client's frame is dropped rather than
// blocking the broadcast.
type Hub struct {
	log *logrus.Logger

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]*client
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.detachLocked(c)
	h.mu.Unlock()
}

// joinRoom binds the connection to a room seat. Any other connection still
// fanned out for the same player has been superseded by a reconnect and is
// evicted from the room set; its own close handles the rest.
func (h *Hub) joinRoom(c *client, roomID, playerID string) {
	h.mu.Lock()
	h.detachLocked(c)
	c.roomID = roomID
	c.playerID = playerID
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*client)
		h.rooms[roomID] = members
	}
	for id, other := range members {
		if other.playerID == playerID {
			delete(members, id)
		}
	}
	members[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) leaveRoom(c *client) {
	h.mu.Lock()
	h.detachLocked(c)
	c.roomID = ""
	c.playerID = ""
	h.mu.Unlock()
}

// dropRoom forgets a deleted room's fan-out set. Member connections keep
// their own state and discover the deletion on their next command.
func (h *Hub) dropRoom(roomID string) {
	h.mu.Lock()
	delete(h.rooms, roomID)
	h.mu.Unlock()
}

func (h *Hub) detachLocked(c *client) {
	if c.roomID == "" {
		return
	}
	if members, ok := h.rooms[c.roomID]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, c.roomID)
		}
	}
}

// ToRoom implements app.Broadcaster for room-scoped events.
func (h *Hub) ToRoom(roomID, event string, payload any) {
	msg := outboundMessage{Type: event, Payload: payload}
	h.mu.RLock()
	for _, c := range h.rooms[roomID] {
		h.deliver(c, msg)
	}
	h.mu.RUnlock()
}

// ToAll implements app.Broadcaster for global events.
func (h *Hub) ToAll(event string, payload any) {
	msg := outboundMessage{Type: event, Payload: payload}
	h.mu.RLock()
	for _, c := range h.clients {
		h.deliver(c, msg)
	}
	h.mu.RUnlock()
}

func (h *Hub) deliver(c *client, msg outboundMessage) {
	select {
	case c.send <- msg:
	default:
		h.log.WithFields(logrus.Fields{"connection": c.id, "event": msg.Type}).Warn("dropped frame for slow client")
	}
}
