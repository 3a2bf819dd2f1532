package http

import (
	"time"

	"github.com/cwrk-planet/roomchat/internal/domain"
)

type CreateRoomRequest struct {
	Name       string `json:"name"`
	Visibility string `json:"visibility"`
	Secret     string `json:"secret,omitempty"`
}

type SetRoomStatusRequest struct {
	Status string `json:"status"`
}

type ParticipantItem struct {
	UserID   string    `json:"user_id"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
}

// RoomItem never carries the secret hash.
type RoomItem struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	CreatorID    string            `json:"creator_id"`
	Visibility   string            `json:"visibility"`
	Status       string            `json:"status"`
	Participants []ParticipantItem `json:"participants,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type RoomsListResponse struct {
	Items      []RoomItem `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type MessageItem struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type MessagesResponse struct {
	Items      []MessageItem `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

func toRoomItem(r *domain.Room, withParticipants bool) RoomItem {
	item := RoomItem{
		ID:         r.ID,
		Name:       r.Name,
		CreatorID:  string(r.CreatorID),
		Visibility: string(r.Visibility),
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if withParticipants {
		item.Participants = make([]ParticipantItem, 0, len(r.Participants))
		for _, p := range r.Participants {
			item.Participants = append(item.Participants, ParticipantItem{
				UserID:   string(p.UserID),
				Status:   string(p.Status),
				JoinedAt: p.JoinedAt,
			})
		}
	}
	return item
}

func toMessageItem(m domain.Message) MessageItem {
	return MessageItem{
		ID:        m.ID,
		RoomID:    m.RoomID,
		AuthorID:  string(m.AuthorID),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
