package ws

import (
	"encoding/json"
	"errors"

	"github.com/cwrk-planet/roomchat/internal/domain"
	"github.com/cwrk-planet/roomchat/internal/presence"
)

// Inbound message types.
const (
	TypeJoinRoom     = "join-room"
	TypeLeaveRoom    = "leave-room"
	TypeSendMessage  = "send-message"
	TypeStatusChange = "status-change"
)

// Message is the envelope for both directions. Outbound payloads are
// domain events, inbound ones stay raw until the type is known.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
	Secret string `json:"secret,omitempty"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"room_id"`
}

type SendMessagePayload struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
}

type StatusChangePayload struct {
	RoomID string `json:"room_id"`
	Status string `json:"status"`
}

func encode(ev domain.Event) Message {
	return Message{Type: string(ev.Type()), Payload: ev}
}

// Error codes sent in error events.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeRoomNotFound    = "room_not_found"
	CodeUnauthorized    = "unauthorized"
	CodeNotAParticipant = "not_a_participant"
	CodeAlreadyMember   = "already_member"
	CodeInvalidInput    = "invalid_input"
	CodeRateLimited     = "rate_limited"
	CodeStorage         = "storage_failure"
	CodeInternal        = "internal"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, domain.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, domain.ErrNotAParticipant):
		return CodeNotAParticipant
	case errors.Is(err, domain.ErrAlreadyMember):
		return CodeAlreadyMember
	case errors.Is(err, domain.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, domain.ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, domain.ErrStorage):
		return CodeStorage
	case errors.Is(err, presence.ErrUnknownConnection):
		return CodeUnauthenticated
	default:
		return CodeInternal
	}
}

// errorEvent hides storage and internal details from the client.
func errorEvent(requestType, roomID string, err error) domain.ErrorEvent {
	code := errorCode(err)
	msg := err.Error()
	switch code {
	case CodeStorage:
		msg = "storage is unavailable, try again later"
	case CodeInternal:
		msg = "internal error"
	}
	return domain.ErrorEvent{
		Code:        code,
		Message:     msg,
		RequestType: requestType,
		RoomID:      roomID,
	}
}
