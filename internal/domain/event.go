package domain

import "time"

type EventType string

const (
	EventRoomSnapshot      EventType = "room-snapshot"
	EventUserJoined        EventType = "user-joined"
	EventUserLeft          EventType = "user-left"
	EventNewMessage        EventType = "new-message"
	EventStatusChanged     EventType = "status-changed"
	EventRoomStatusChanged EventType = "room-status-changed"
	EventError             EventType = "error"
)

// Event is the closed set of outbound notifications. Only types in this
// package implement it.
type Event interface {
	Type() EventType
	isEvent()
}

type RoomSnapshot struct {
	RoomID       string        `json:"room_id"`
	Name         string        `json:"name"`
	CreatorID    UserID        `json:"creator_id"`
	Visibility   Visibility    `json:"visibility"`
	Status       RoomStatus    `json:"status"`
	Participants []Participant `json:"participants"`
	Messages     []Message     `json:"messages"`
}

type UserJoined struct {
	RoomID      string      `json:"room_id"`
	Participant Participant `json:"participant"`
}

type UserLeft struct {
	RoomID string `json:"room_id"`
	UserID UserID `json:"user_id"`
	// set when the creator role moved to another participant
	NewCreatorID UserID    `json:"new_creator_id,omitempty"`
	At           time.Time `json:"at"`
}

type MessagePosted struct {
	Message Message `json:"message"`
}

type StatusChanged struct {
	RoomID string            `json:"room_id"`
	UserID UserID            `json:"user_id"`
	Status ParticipantStatus `json:"status"`
	At     time.Time         `json:"at"`
}

type RoomStatusChanged struct {
	RoomID string     `json:"room_id"`
	Status RoomStatus `json:"status"`
	At     time.Time  `json:"at"`
}

type ErrorEvent struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	RequestType string `json:"request_type,omitempty"`
	RoomID      string `json:"room_id,omitempty"`
}

func (RoomSnapshot) Type() EventType      { return EventRoomSnapshot }
func (UserJoined) Type() EventType        { return EventUserJoined }
func (UserLeft) Type() EventType          { return EventUserLeft }
func (MessagePosted) Type() EventType     { return EventNewMessage }
func (StatusChanged) Type() EventType     { return EventStatusChanged }
func (RoomStatusChanged) Type() EventType { return EventRoomStatusChanged }
func (ErrorEvent) Type() EventType        { return EventError }

func (RoomSnapshot) isEvent()      {}
func (UserJoined) isEvent()        {}
func (UserLeft) isEvent()          {}
func (MessagePosted) isEvent()     {}
func (StatusChanged) isEvent()     {}
func (RoomStatusChanged) isEvent() {}
func (ErrorEvent) isEvent()        {}

// SnapshotOf copies the room state with at most history trailing messages.
func SnapshotOf(r *Room, history int) RoomSnapshot {
	recent := r.RecentMessages(history)
	return RoomSnapshot{
		RoomID:       r.ID,
		Name:         r.Name,
		CreatorID:    r.CreatorID,
		Visibility:   r.Visibility,
		Status:       r.Status,
		Participants: append(make([]Participant, 0, len(r.Participants)), r.Participants...),
		Messages:     append(make([]Message, 0, len(recent)), recent...),
	}
}
