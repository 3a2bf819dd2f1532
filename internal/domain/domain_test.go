package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestNewRoom(t *testing.T) {
	pub, err := NewRoom("  lounge ", "A", VisibilityPublic, "ignored", t0)
	require.NoError(t, err)
	assert.Equal(t, "lounge", pub.Name)
	assert.Equal(t, RoomLive, pub.Status)
	assert.Empty(t, pub.SecretHash)
	require.Len(t, pub.Participants, 1)
	assert.Equal(t, Participant{UserID: "A", Status: ParticipantActive, JoinedAt: t0}, pub.Participants[0])

	priv, err := NewRoom("standup", "A", VisibilityPrivate, "hash", t0)
	require.NoError(t, err)
	assert.Equal(t, RoomInactive, priv.Status)
	assert.True(t, priv.IsPrivate())
	assert.Equal(t, ParticipantLobby, priv.StatusForNewcomer())

	for _, tc := range []struct {
		name, room string
		creator    UserID
		vis        Visibility
		hash       string
	}{
		{"blank name", " ", "A", VisibilityPublic, ""},
		{"no creator", "r", "", VisibilityPublic, ""},
		{"bad visibility", "r", "A", "secret", ""},
		{"private without hash", "r", "A", VisibilityPrivate, ""},
	} {
		_, err := NewRoom(tc.room, tc.creator, tc.vis, tc.hash, t0)
		assert.ErrorIs(t, err, ErrInvalidInput, tc.name)
	}
}

func TestRoom_ParticipantsHelpers(t *testing.T) {
	r, err := NewRoom("r", "A", VisibilityPublic, "", t0)
	require.NoError(t, err)
	r.Participants = append(r.Participants,
		Participant{UserID: "B", Status: ParticipantLobby},
		Participant{UserID: "C", Status: ParticipantMuted},
	)

	p, ok := r.Participant("B")
	require.True(t, ok)
	assert.False(t, p.CanPost())
	c, _ := r.Participant("C")
	assert.True(t, c.CanPost())
	assert.False(t, r.HasParticipant("Z"))

	rest := r.Without("A")
	require.Len(t, rest, 2)
	assert.Equal(t, UserID("B"), rest[0].UserID)
	assert.Len(t, r.Participants, 3)
}

func TestRoom_CloneIsDeep(t *testing.T) {
	r, err := NewRoom("r", "A", VisibilityPublic, "", t0)
	require.NoError(t, err)
	cp := r.Clone()
	cp.Participants[0].Status = ParticipantMuted
	cp.Messages = append(cp.Messages, Message{ID: "m"})

	assert.Equal(t, ParticipantActive, r.Participants[0].Status)
	assert.Empty(t, r.Messages)
}

func TestNewMessage(t *testing.T) {
	m, err := NewMessage("r1", "A", "  hi  ", 10, t0)
	require.NoError(t, err)
	assert.Equal(t, "hi", m.Content)
	assert.Len(t, m.ID, 26)
	assert.Equal(t, t0, m.CreatedAt)

	next, err := NewMessage("r1", "A", "again", 10, t0)
	require.NoError(t, err)
	assert.Less(t, m.ID, next.ID)

	_, err = NewMessage("r1", "A", "   ", 10, t0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewMessage("r1", "A", strings.Repeat("я", 11), 10, t0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewMessage("r1", "A", strings.Repeat("я", 10), 10, t0)
	assert.NoError(t, err)
}

func TestSnapshotOf(t *testing.T) {
	r, err := NewRoom("r", "A", VisibilityPublic, "", t0)
	require.NoError(t, err)
	r.ID = "r1"
	for i := 0; i < 5; i++ {
		r.Messages = append(r.Messages, Message{ID: string(rune('a' + i))})
	}

	snap := SnapshotOf(r, 3)
	assert.Equal(t, "r1", snap.RoomID)
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "c", snap.Messages[0].ID)
	assert.Equal(t, EventRoomSnapshot, snap.Type())

	snap.Participants[0].Status = ParticipantMuted
	assert.Equal(t, ParticipantActive, r.Participants[0].Status)

	empty := SnapshotOf(&Room{ID: "r2"}, 10)
	assert.NotNil(t, empty.Messages)
	assert.NotNil(t, empty.Participants)
}

func TestStatusValidity(t *testing.T) {
	assert.True(t, ParticipantLobby.Valid())
	assert.False(t, ParticipantStatus("banned").Valid())
	assert.True(t, RoomLive.Valid())
	assert.False(t, RoomStatus("paused").Valid())
}
