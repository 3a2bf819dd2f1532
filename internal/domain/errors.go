package domain

import "errors"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrRoomNotFound    = errors.New("room not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotAParticipant = errors.New("user is not a participant of the room")
	ErrAlreadyMember   = errors.New("user already joined the room")
	ErrStorage         = errors.New("storage failure")
	ErrInvalidInput    = errors.New("invalid input")
	ErrRateLimited     = errors.New("rate limited")
)
