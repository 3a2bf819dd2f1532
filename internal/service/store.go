package service

import (
	"context"

	"github.com/cwrk-planet/roomchat/internal/domain"
)

// RoomStore persists rooms. Each mutation is atomic for a single room.
// FindByID fails with domain.ErrRoomNotFound and returns the recent message
// tail only; full history is paged through History.
type RoomStore interface {
	FindByID(ctx context.Context, roomID string) (*domain.Room, error)
	Create(ctx context.Context, room *domain.Room) (*domain.Room, error)
	AppendMessage(ctx context.Context, roomID string, msg domain.Message) error
	AddParticipant(ctx context.Context, roomID string, p domain.Participant) error
	RemoveParticipant(ctx context.Context, roomID string, userID domain.UserID) error
	UpdateParticipantStatus(ctx context.Context, roomID string, userID domain.UserID, status domain.ParticipantStatus) error
	SetCreator(ctx context.Context, roomID string, userID domain.UserID) error
	SetStatus(ctx context.Context, roomID string, status domain.RoomStatus) error
	Delete(ctx context.Context, roomID string) error

	ListLive(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error)
	History(ctx context.Context, roomID string, cursor string, limit int) ([]domain.Message, string, error)
}

// Broadcaster fans events out to the connections subscribed to a room.
type Broadcaster interface {
	Subscribe(roomID, connID string)
	Unsubscribe(roomID, connID string)
	Broadcast(roomID string, ev domain.Event)
	BroadcastExcept(roomID, exceptConnID string, ev domain.Event)
	Send(connID string, ev domain.Event)
	Detach(connID string)
}

type MessageLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type SecretMatcher interface {
	Match(hash, secret string) bool
}

type SecretHasher interface {
	SecretMatcher
	Hash(secret string) (string, error)
}

type allowAll struct{}

func (allowAll) Allow(context.Context, string) (bool, error) { return true, nil }

// AllowAll is the limiter used when rate limiting is disabled.
var AllowAll MessageLimiter = allowAll{}
