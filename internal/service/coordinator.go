package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cwrk-planet/roomchat/internal/cursor"
	"github.com/cwrk-planet/roomchat/internal/domain"
	"github.com/cwrk-planet/roomchat/internal/presence"
)

type CoordinatorConfig struct {
	HistoryLimit     int
	MaxMessageLength int
	StoreTimeout     time.Duration
}

// Coordinator ties registry presence edges to persisted participants and
// room broadcasts. Mutations of one room are serialized, so subscribers see
// events in the order the store applied them.
type Coordinator struct {
	registry *presence.Registry
	store    RoomStore
	bus      Broadcaster
	limiter  MessageLimiter
	secrets  SecretMatcher
	rooms    *keyLock
	cfg      CoordinatorConfig
	now      func() time.Time
}

func NewCoordinator(
	registry *presence.Registry,
	store RoomStore,
	bus Broadcaster,
	limiter MessageLimiter,
	secrets SecretMatcher,
	cfg CoordinatorConfig,
) *Coordinator {
	if limiter == nil {
		limiter = AllowAll
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 2000
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}

	return &Coordinator{
		registry: registry,
		store:    store,
		bus:      bus,
		limiter:  limiter,
		secrets:  secrets,
		rooms:    newKeyLock(),
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Connect registers an authenticated connection. The transport attaches it
// to the broadcaster itself.
func (c *Coordinator) Connect(connID string, user domain.UserID) error {
	if err := c.registry.Register(connID, user); err != nil {
		return fmt.Errorf("connect %s: %w", connID, err)
	}
	slog.Debug("connection registered", "conn", connID, "user", user)
	return nil
}

// JoinRoom subscribes the connection to the room and replies with a room
// snapshot. Only the user's first connection in the room is announced.
func (c *Coordinator) JoinRoom(ctx context.Context, connID string, user domain.UserID, roomID, secret string) (*domain.RoomSnapshot, error) {
	unlock := c.rooms.Lock(roomID)
	defer unlock()

	room, err := c.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	existing, member := room.Participant(user)
	if room.IsPrivate() && !member && !c.secrets.Match(room.SecretHash, secret) {
		return nil, fmt.Errorf("join room %s: %w", roomID, domain.ErrUnauthorized)
	}

	first, err := c.registry.AddJoin(connID, roomID)
	if err != nil {
		return nil, fmt.Errorf("join room %s: %w", roomID, err)
	}
	c.bus.Subscribe(roomID, connID)

	// a connection that joined while the store was failing gets its
	// participant record on the next join
	if first || !member {
		p := existing
		if !member {
			p = domain.Participant{UserID: user, Status: room.StatusForNewcomer(), JoinedAt: c.now()}
			err := c.exec(ctx, "add participant", func(ctx context.Context) error {
				return c.store.AddParticipant(ctx, roomID, p)
			})
			switch {
			case err == nil:
				room.Participants = append(room.Participants, p)
			case errors.Is(err, domain.ErrAlreadyMember):
				if room, err = c.findRoom(ctx, roomID); err != nil {
					return nil, err
				}
				p, _ = room.Participant(user)
			default:
				slog.Error("join: add participant failed", "room", roomID, "user", user, "conn", connID, "err", err)
				return nil, err
			}
		}
		c.bus.BroadcastExcept(roomID, connID, domain.UserJoined{RoomID: roomID, Participant: p})
		slog.Info("user joined room", "room", roomID, "user", user, "conn", connID)
	}

	snap := domain.SnapshotOf(room, c.cfg.HistoryLimit)
	c.bus.Send(connID, snap)
	return &snap, nil
}

// LeaveRoom unsubscribes the connection. Leaving a room the connection never
// joined is a no-op.
func (c *Coordinator) LeaveRoom(ctx context.Context, connID string, user domain.UserID, roomID string) error {
	unlock := c.rooms.Lock(roomID)
	defer unlock()

	c.bus.Unsubscribe(roomID, connID)
	last, err := c.registry.RemoveJoin(connID, roomID)
	if err != nil {
		return fmt.Errorf("leave room %s: %w", roomID, err)
	}
	if !last {
		return nil
	}

	return c.finalizeLeave(ctx, user, roomID)
}

// Stats reports live connections and distinct users.
func (c *Coordinator) Stats() presence.Stats {
	return c.registry.Stats()
}

// HandleDisconnect drops the connection and finalizes every room where it
// was the user's last presence. Safe to call more than once.
func (c *Coordinator) HandleDisconnect(ctx context.Context, connID string) error {
	// Room locks go first so a join from another connection of the same
	// user cannot slip in between Unregister and finalizeLeave.
	unlock := c.lockJoined(connID)
	defer unlock()

	c.bus.Detach(connID)

	user, rooms, ok := c.registry.Unregister(connID)
	if !ok {
		return nil
	}
	slog.Debug("connection unregistered", "conn", connID, "user", user, "rooms", len(rooms))

	var errs []error
	for _, roomID := range rooms {
		if err := c.finalizeLeave(ctx, user, roomID); err != nil {
			slog.Error("disconnect: finalize leave failed", "room", roomID, "user", user, "conn", connID, "err", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// lockJoined takes the locks of every room the connection has joined, in
// sorted order, and retries until the joined set is stable under them.
func (c *Coordinator) lockJoined(connID string) (unlock func()) {
	for {
		rooms := c.registry.JoinedRooms(connID)
		unlocks := make([]func(), 0, len(rooms))
		for _, roomID := range rooms {
			unlocks = append(unlocks, c.rooms.Lock(roomID))
		}
		release := func() {
			for i := len(unlocks) - 1; i >= 0; i-- {
				unlocks[i]()
			}
		}
		if slices.Equal(rooms, c.registry.JoinedRooms(connID)) {
			return release
		}
		release()
	}
}

// finalizeLeave removes the user's participant record once their last
// connection left. The caller holds the room lock.
func (c *Coordinator) finalizeLeave(ctx context.Context, user domain.UserID, roomID string) error {
	// another connection of the user joined in between
	if c.registry.Occupies(user, roomID) {
		return nil
	}

	room, err := c.findRoom(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !room.HasParticipant(user) {
		return nil
	}

	err = c.exec(ctx, "remove participant", func(ctx context.Context) error {
		return c.store.RemoveParticipant(ctx, roomID, user)
	})
	if errors.Is(err, domain.ErrNotAParticipant) {
		return nil
	}
	if err != nil {
		return err
	}

	ev := domain.UserLeft{RoomID: roomID, UserID: user, At: c.now()}
	remaining := room.Without(user)

	switch {
	case len(remaining) == 0:
		if err := c.exec(ctx, "delete room", func(ctx context.Context) error {
			return c.store.Delete(ctx, roomID)
		}); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			return err
		}
		slog.Info("room deleted: last participant left", "room", roomID, "user", user)
	case room.CreatorID == user:
		next := remaining[0].UserID
		if err := c.exec(ctx, "set creator", func(ctx context.Context) error {
			return c.store.SetCreator(ctx, roomID, next)
		}); err != nil {
			return err
		}
		ev.NewCreatorID = next
		slog.Info("room creator transferred", "room", roomID, "from", user, "to", next)
	}

	c.bus.Broadcast(roomID, ev)
	slog.Info("user left room", "room", roomID, "user", user)
	return nil
}

// PostMessage appends a message and broadcasts it to every subscriber,
// the sender's own connections included.
func (c *Coordinator) PostMessage(ctx context.Context, connID string, user domain.UserID, roomID, content string) (domain.Message, error) {
	allowed, err := c.limiter.Allow(ctx, "chat:"+string(user))
	if err != nil {
		slog.Warn("rate limiter unavailable, allowing message", "user", user, "err", err)
	} else if !allowed {
		return domain.Message{}, fmt.Errorf("post message: %w", domain.ErrRateLimited)
	}

	unlock := c.rooms.Lock(roomID)
	defer unlock()

	msg, err := domain.NewMessage(roomID, user, content, c.cfg.MaxMessageLength, c.now())
	if err != nil {
		return domain.Message{}, fmt.Errorf("post message: %w", err)
	}

	room, err := c.findRoom(ctx, roomID)
	if err != nil {
		return domain.Message{}, err
	}
	p, ok := room.Participant(user)
	if !ok || !p.CanPost() {
		return domain.Message{}, fmt.Errorf("post message to %s: %w", roomID, domain.ErrNotAParticipant)
	}

	if err := c.exec(ctx, "append message", func(ctx context.Context) error {
		return c.store.AppendMessage(ctx, roomID, msg)
	}); err != nil {
		slog.Error("post message failed", "room", roomID, "user", user, "conn", connID, "err", err)
		return domain.Message{}, err
	}

	c.bus.Broadcast(roomID, domain.MessagePosted{Message: msg})
	return msg, nil
}

// ChangeStatus lets a participant switch between active and muted. Lobby
// participants wait for the room to go live.
func (c *Coordinator) ChangeStatus(ctx context.Context, connID string, user domain.UserID, roomID string, status domain.ParticipantStatus) error {
	if status != domain.ParticipantActive && status != domain.ParticipantMuted {
		return fmt.Errorf("change status to %q: %w", status, domain.ErrInvalidInput)
	}

	unlock := c.rooms.Lock(roomID)
	defer unlock()

	room, err := c.findRoom(ctx, roomID)
	if err != nil {
		return err
	}
	p, ok := room.Participant(user)
	if !ok {
		return fmt.Errorf("change status in %s: %w", roomID, domain.ErrNotAParticipant)
	}
	if p.Status == domain.ParticipantLobby {
		return fmt.Errorf("change status in %s: lobby: %w", roomID, domain.ErrUnauthorized)
	}

	if err := c.exec(ctx, "update participant status", func(ctx context.Context) error {
		return c.store.UpdateParticipantStatus(ctx, roomID, user, status)
	}); err != nil {
		slog.Error("change status failed", "room", roomID, "user", user, "conn", connID, "err", err)
		return err
	}

	c.bus.Broadcast(roomID, domain.StatusChanged{RoomID: roomID, UserID: user, Status: status, At: c.now()})
	return nil
}

func (c *Coordinator) findRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	var room *domain.Room
	err := c.exec(ctx, "find room", func(ctx context.Context) error {
		var err error
		room, err = c.store.FindByID(ctx, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// exec runs one store call under the store timeout.
func (c *Coordinator) exec(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()

	return storeError(op, fn(ctx))
}

var domainErrors = []error{
	domain.ErrRoomNotFound,
	domain.ErrNotAParticipant,
	domain.ErrAlreadyMember,
	domain.ErrUnauthorized,
	domain.ErrInvalidInput,
	cursor.ErrInvalidCursor,
}

// storeError keeps domain errors and marks everything else as ErrStorage.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}
