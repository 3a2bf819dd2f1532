// Package presence tracks live connections, the users behind them and the
// rooms each connection has joined.
//
// A user occupies a room while at least one of their connections has joined
// it. Registry reports the edges of that relation (first join, last leave) so
// callers can announce presence once per user instead of once per connection.
package presence

import (
	"errors"
	"sort"
	"sync"

	"github.com/cwrk-planet/roomchat/internal/domain"
)

var (
	ErrAlreadyRegistered = errors.New("presence: connection already registered")
	ErrUnknownConnection = errors.New("presence: unknown connection")
)

type connEntry struct {
	user  domain.UserID
	rooms map[string]struct{}
}

type userEntry struct {
	conns map[string]struct{}
	// roomID -> number of this user's connections joined to it
	rooms map[string]int
}

// Registry is safe for concurrent use. Every operation runs under one mutex,
// so the read-decide-mutate sequence for a (user, room) pair is atomic.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*connEntry
	users map[domain.UserID]*userEntry
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*connEntry),
		users: make(map[domain.UserID]*userEntry),
	}
}

// Register binds an authenticated connection to its user.
func (r *Registry) Register(connID string, user domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; ok {
		return ErrAlreadyRegistered
	}
	r.conns[connID] = &connEntry{user: user, rooms: make(map[string]struct{})}

	u, ok := r.users[user]
	if !ok {
		u = &userEntry{
			conns: make(map[string]struct{}),
			rooms: make(map[string]int),
		}
		r.users[user] = u
	}
	u.conns[connID] = struct{}{}

	return nil
}

// AddJoin records that connID joined roomID. It returns true iff no other
// connection of the same user had the room joined before.
func (r *Registry) AddJoin(connID, roomID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return false, ErrUnknownConnection
	}
	if _, joined := c.rooms[roomID]; joined {
		return false, nil
	}
	c.rooms[roomID] = struct{}{}

	u := r.users[c.user]
	u.rooms[roomID]++

	return u.rooms[roomID] == 1, nil
}

// RemoveJoin is the inverse of AddJoin. It returns true iff after removal no
// connection of the user has the room joined.
func (r *Registry) RemoveJoin(connID, roomID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return false, ErrUnknownConnection
	}
	if _, joined := c.rooms[roomID]; !joined {
		return false, nil
	}
	delete(c.rooms, roomID)

	return r.release(r.users[c.user], roomID), nil
}

// Unregister drops connID and returns the rooms in which it was the user's
// last presence. Unknown connections are a no-op with ok=false, so closing
// the same transport twice is harmless.
func (r *Registry) Unregister(connID string) (user domain.UserID, finalize []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return "", nil, false
	}
	delete(r.conns, connID)

	u := r.users[c.user]
	for roomID := range c.rooms {
		if r.release(u, roomID) {
			finalize = append(finalize, roomID)
		}
	}
	sort.Strings(finalize)

	delete(u.conns, connID)
	if len(u.conns) == 0 {
		delete(r.users, c.user)
	}

	return c.user, finalize, true
}

// release decrements the occupancy of roomID and reports whether it hit zero.
func (r *Registry) release(u *userEntry, roomID string) bool {
	n := u.rooms[roomID] - 1
	if n > 0 {
		u.rooms[roomID] = n
		return false
	}
	delete(u.rooms, roomID)
	return true
}

func (r *Registry) Occupies(user domain.UserID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[user]
	if !ok {
		return false
	}
	return u.rooms[roomID] > 0
}

// JoinedRooms returns the rooms joined by one connection, sorted.
func (r *Registry) JoinedRooms(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	return sortedKeys(c.rooms)
}

type Stats struct {
	Connections int
	Users       int
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{Connections: len(r.conns), Users: len(r.users)}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
