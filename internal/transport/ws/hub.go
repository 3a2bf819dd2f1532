package ws

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/cwrk-planet/roomchat/internal/domain"
)

// Conn is a live connection as seen by the Hub. Enqueue must not block; it
// reports false when the connection can not take more events.
type Conn interface {
	ID() string
	Enqueue(ev domain.Event) bool
	Close() error
}

// Hub delivers events to the connections subscribed to a room. Events for
// one connection are queued in the order the Hub received them.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	rooms  map[string]map[string]Conn   // roomID -> connID -> conn
	joined map[string]map[string]struct{} // connID -> roomIDs
}

func NewHub() *Hub {
	return &Hub{
		conns:  make(map[string]Conn),
		rooms:  make(map[string]map[string]Conn),
		joined: make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Attach(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[c.ID()] = c
	if _, ok := h.joined[c.ID()]; !ok {
		h.joined[c.ID()] = make(map[string]struct{})
	}
}

// Detach removes the connection and all of its room subscriptions.
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID := range h.joined[connID] {
		h.unsubscribeLocked(roomID, connID)
	}
	delete(h.joined, connID)
	delete(h.conns, connID)
}

// Subscribe adds an attached connection to the room fan-out.
func (h *Hub) Subscribe(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}
	rs, ok := h.rooms[roomID]
	if !ok {
		rs = make(map[string]Conn)
		h.rooms[roomID] = rs
	}
	rs[connID] = c
	h.joined[connID][roomID] = struct{}{}
}

func (h *Hub) Unsubscribe(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubscribeLocked(roomID, connID)
}

func (h *Hub) unsubscribeLocked(roomID, connID string) {
	if rs, ok := h.rooms[roomID]; ok {
		delete(rs, connID)
		if len(rs) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if js, ok := h.joined[connID]; ok {
		delete(js, roomID)
	}
}

// Broadcast delivers ev to every subscriber of the room, sender included.
func (h *Hub) Broadcast(roomID string, ev domain.Event) {
	h.BroadcastExcept(roomID, "", ev)
}

// BroadcastExcept delivers ev to every subscriber of the room but one.
func (h *Hub) BroadcastExcept(roomID, exceptConnID string, ev domain.Event) {
	var slow []Conn

	h.mu.RLock()
	for id, c := range h.rooms[roomID] {
		if id == exceptConnID {
			continue
		}
		if !c.Enqueue(ev) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	h.drop(slow, roomID)
}

// Send delivers ev to one attached connection.
func (h *Hub) Send(connID string, ev domain.Event) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if !c.Enqueue(ev) {
		h.drop([]Conn{c}, "")
	}
}

// drop closes connections that fell behind. Their read loop then exits and
// the regular disconnect path cleans up.
func (h *Hub) drop(slow []Conn, roomID string) {
	for _, c := range slow {
		slog.Warn("ws connection dropped: send queue full", "conn", c.ID(), "room", roomID)
		_ = c.Close()
	}
}

// Subscribers returns the connection ids subscribed to the room, sorted.
func (h *Hub) Subscribers(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.rooms[roomID]))
	for id := range h.rooms[roomID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CloseAll closes every attached connection, used on shutdown.
func (h *Hub) CloseAll() int {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return len(conns)
}
