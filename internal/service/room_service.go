package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cwrk-planet/roomchat/internal/cursor"
	"github.com/cwrk-planet/roomchat/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// RoomService serves the REST side of rooms. It shares the coordinator's
// store, broadcaster and per-room locks.
type RoomService struct {
	coord   *Coordinator
	secrets SecretHasher
}

func NewRoomService(coord *Coordinator, secrets SecretHasher) *RoomService {
	return &RoomService{coord: coord, secrets: secrets}
}

// CreateRoom creates the room with its creator as the first participant.
func (s *RoomService) CreateRoom(ctx context.Context, user domain.UserID, name string, visibility domain.Visibility, secret string) (*domain.Room, error) {
	var hash string
	if visibility == domain.VisibilityPrivate {
		if strings.TrimSpace(secret) == "" {
			return nil, fmt.Errorf("create room: private room needs a secret: %w", domain.ErrInvalidInput)
		}
		h, err := s.secrets.Hash(secret)
		if err != nil {
			return nil, fmt.Errorf("create room: hash secret: %w", err)
		}
		hash = h
	}

	room, err := domain.NewRoom(name, user, visibility, hash, s.coord.now())
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	var created *domain.Room
	if err := s.coord.exec(ctx, "create room", func(ctx context.Context) error {
		var err error
		created, err = s.coord.store.Create(ctx, room)
		return err
	}); err != nil {
		return nil, err
	}

	slog.Info("room created", "room", created.ID, "creator", user, "visibility", created.Visibility)
	return created, nil
}

// GetRoom returns the room. Private rooms are visible to participants only.
func (s *RoomService) GetRoom(ctx context.Context, user domain.UserID, roomID string) (*domain.Room, error) {
	room, err := s.coord.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.IsPrivate() && !room.HasParticipant(user) {
		return nil, fmt.Errorf("get room %s: %w", roomID, domain.ErrUnauthorized)
	}
	return room, nil
}

// ListLiveRooms returns live public rooms, newest first.
func (s *RoomService) ListLiveRooms(ctx context.Context, limit int, after string) ([]domain.Room, string, error) {
	limit = cursor.ClampLimit(limit, defaultPageSize, maxPageSize)

	var (
		rooms []domain.Room
		next  string
	)
	err := s.coord.exec(ctx, "list live rooms", func(ctx context.Context) error {
		var err error
		rooms, next, err = s.coord.store.ListLive(ctx, limit, after)
		return err
	})
	if err != nil {
		return nil, "", invalidCursor(err)
	}
	return rooms, next, nil
}

// History pages through room messages, newest first.
func (s *RoomService) History(ctx context.Context, user domain.UserID, roomID, after string, limit int) ([]domain.Message, string, error) {
	if _, err := s.GetRoom(ctx, user, roomID); err != nil {
		return nil, "", err
	}
	limit = cursor.ClampLimit(limit, defaultPageSize, maxPageSize)

	var (
		msgs []domain.Message
		next string
	)
	err := s.coord.exec(ctx, "history", func(ctx context.Context) error {
		var err error
		msgs, next, err = s.coord.store.History(ctx, roomID, after, limit)
		return err
	})
	if err != nil {
		return nil, "", invalidCursor(err)
	}
	return msgs, next, nil
}

// SetRoomStatus is creator-only. Going live admits everyone waiting in the
// lobby.
func (s *RoomService) SetRoomStatus(ctx context.Context, user domain.UserID, roomID string, status domain.RoomStatus) (*domain.Room, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("set room status %q: %w", status, domain.ErrInvalidInput)
	}

	c := s.coord
	unlock := c.rooms.Lock(roomID)
	defer unlock()

	room, err := c.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.CreatorID != user {
		return nil, fmt.Errorf("set room status %s: not the creator: %w", roomID, domain.ErrUnauthorized)
	}
	if room.Status == status {
		return room, nil
	}

	if err := c.exec(ctx, "set room status", func(ctx context.Context) error {
		return c.store.SetStatus(ctx, roomID, status)
	}); err != nil {
		return nil, err
	}
	room.Status = status
	now := c.now()
	c.bus.Broadcast(roomID, domain.RoomStatusChanged{RoomID: roomID, Status: status, At: now})

	if status != domain.RoomLive {
		return room, nil
	}
	for i, p := range room.Participants {
		if p.Status != domain.ParticipantLobby {
			continue
		}
		if err := c.exec(ctx, "promote participant", func(ctx context.Context) error {
			return c.store.UpdateParticipantStatus(ctx, roomID, p.UserID, domain.ParticipantActive)
		}); err != nil {
			slog.Error("promote lobby participant failed", "room", roomID, "user", p.UserID, "err", err)
			return nil, err
		}
		room.Participants[i].Status = domain.ParticipantActive
		c.bus.Broadcast(roomID, domain.StatusChanged{RoomID: roomID, UserID: p.UserID, Status: domain.ParticipantActive, At: now})
	}

	return room, nil
}

func invalidCursor(err error) error {
	if errors.Is(err, cursor.ErrInvalidCursor) && !errors.Is(err, domain.ErrInvalidInput) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return err
}
