package domain

import (
	"strings"
	"time"
)

type UserID string

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

type RoomStatus string

const (
	RoomInactive RoomStatus = "inactive"
	RoomLive     RoomStatus = "live"
)

func (s RoomStatus) Valid() bool {
	return s == RoomInactive || s == RoomLive
}

type Room struct {
	ID         string     `db:"id"`
	Name       string     `db:"name"`
	CreatorID  UserID     `db:"creator_id"`
	Visibility Visibility `db:"visibility"`
	// bcrypt hash of the access secret, empty for public rooms
	SecretHash   string        `db:"secret_hash" json:"-"`
	Status       RoomStatus    `db:"status"`
	Participants []Participant `db:"-"`
	Messages     []Message     `db:"-"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

// NewRoom builds a room whose creator is its first, active participant.
// Public rooms start live, private ones inactive.
func NewRoom(name string, creator UserID, visibility Visibility, secretHash string, now time.Time) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || creator == "" || !visibility.Valid() {
		return nil, ErrInvalidInput
	}
	if visibility == VisibilityPrivate && secretHash == "" {
		return nil, ErrInvalidInput
	}
	status := RoomLive
	if visibility == VisibilityPrivate {
		status = RoomInactive
	} else {
		secretHash = ""
	}

	return &Room{
		Name:         name,
		CreatorID:    creator,
		Visibility:   visibility,
		SecretHash:   secretHash,
		Status:       status,
		Participants: []Participant{{UserID: creator, Status: ParticipantActive, JoinedAt: now}},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (r *Room) IsPrivate() bool {
	return r.Visibility == VisibilityPrivate
}

func (r *Room) Participant(id UserID) (Participant, bool) {
	for _, p := range r.Participants {
		if p.UserID == id {
			return p, true
		}
	}
	return Participant{}, false
}

func (r *Room) HasParticipant(id UserID) bool {
	_, ok := r.Participant(id)
	return ok
}

// StatusForNewcomer returns the membership status a joining user gets.
func (r *Room) StatusForNewcomer() ParticipantStatus {
	if r.Status == RoomLive {
		return ParticipantActive
	}
	return ParticipantLobby
}

// Without returns the participants that remain after id leaves, in join order.
func (r *Room) Without(id UserID) []Participant {
	out := make([]Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p.UserID != id {
			out = append(out, p)
		}
	}
	return out
}

// RecentMessages returns at most n trailing messages.
func (r *Room) RecentMessages(n int) []Message {
	if n <= 0 || len(r.Messages) <= n {
		return r.Messages
	}
	return r.Messages[len(r.Messages)-n:]
}

// Clone returns a deep copy, so callers may mutate slices freely.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Participants = append([]Participant(nil), r.Participants...)
	cp.Messages = append([]Message(nil), r.Messages...)
	return &cp
}
