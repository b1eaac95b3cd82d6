package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Client is a registered receiver of room frames.
type Client interface {
	ID() string
	UserID() uuid.UUID
	Send(payload []byte) error
}

// Hub is the room registry: conversation id to the set of connections joined to it.
// It is updated on join, leave and unregister, and read only by broadcast.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]Client
	rooms       map[uuid.UUID]map[string]Client
	clientRooms map[string]map[uuid.UUID]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:     make(map[string]Client),
		rooms:       make(map[uuid.UUID]map[string]Client),
		clientRooms: make(map[string]map[uuid.UUID]struct{}),
	}
}

func (h *Hub) Register(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
}

// Unregister removes the client and its room memberships.
func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.clientRooms[c.ID()] {
		h.leaveLocked(room, c.ID())
	}
	delete(h.clientRooms, c.ID())
	delete(h.clients, c.ID())
}

// Join adds a registered client to room. It reports false for unknown clients.
func (h *Hub) Join(room uuid.UUID, c Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID()]; !ok {
		return false
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]Client)
		h.rooms[room] = members
	}
	members[c.ID()] = c

	joined := h.clientRooms[c.ID()]
	if joined == nil {
		joined = make(map[uuid.UUID]struct{})
		h.clientRooms[c.ID()] = joined
	}
	joined[room] = struct{}{}
	return true
}

func (h *Hub) Leave(room uuid.UUID, c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, c.ID())
}

// Broadcast sends payload to every member of room and returns the number of deliveries.
func (h *Hub) Broadcast(room uuid.UUID, payload []byte) int {
	h.mu.RLock()
	members := make([]Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range members {
		if c.Send(payload) == nil {
			delivered++
		}
	}
	return delivered
}

// IsMember reports whether the client has joined room.
func (h *Hub) IsMember(room uuid.UUID, c Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][c.ID()]
	return ok
}

func (h *Hub) Members(room uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) leaveLocked(room uuid.UUID, clientID string) {
	if members := h.rooms[room]; members != nil {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if joined := h.clientRooms[clientID]; joined != nil {
		delete(joined, room)
	}
}

// Broadcaster fans a frame out to every member of a room.
type Broadcaster interface {
	Broadcast(ctx context.Context, room uuid.UUID, payload []byte) error
}

// LocalBroadcaster delivers to the members connected to this process only.
type LocalBroadcaster struct {
	Hub *Hub
}

func (b LocalBroadcaster) Broadcast(_ context.Context, room uuid.UUID, payload []byte) error {
	b.Hub.Broadcast(room, payload)
	return nil
}
