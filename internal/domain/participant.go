package domain

import "time"

type ParticipantStatus string

const (
	ParticipantActive ParticipantStatus = "active"
	ParticipantMuted  ParticipantStatus = "muted"
	ParticipantLobby  ParticipantStatus = "lobby"
)

func (s ParticipantStatus) Valid() bool {
	switch s {
	case ParticipantActive, ParticipantMuted, ParticipantLobby:
		return true
	}
	return false
}

type Participant struct {
	UserID   UserID            `db:"user_id" json:"user_id"`
	Status   ParticipantStatus `db:"status" json:"status"`
	JoinedAt time.Time         `db:"joined_at" json:"joined_at"`
}

// CanPost reports whether the participant has been admitted past the lobby.
func (p Participant) CanPost() bool {
	return p.Status == ParticipantActive || p.Status == ParticipantMuted
}
