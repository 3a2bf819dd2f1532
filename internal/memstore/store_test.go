package memstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cwrk-planet/roomchat/internal/cursor"
	"github.com/cwrk-planet/roomchat/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoom(t *testing.T, s *Store, name string, at time.Time) *domain.Room {
	t.Helper()
	r, err := domain.NewRoom(name, "alice", domain.VisibilityPublic, "", at)
	require.NoError(t, err)
	created, err := s.Create(context.Background(), r)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	return created
}

func TestParticipants(t *testing.T) {
	ctx := context.Background()
	s := New(10)
	r := newRoom(t, s, "general", time.Now())

	bob := domain.Participant{UserID: "bob", Status: domain.ParticipantActive, JoinedAt: time.Now()}
	require.NoError(t, s.AddParticipant(ctx, r.ID, bob))
	require.ErrorIs(t, s.AddParticipant(ctx, r.ID, bob), domain.ErrAlreadyMember)

	require.NoError(t, s.UpdateParticipantStatus(ctx, r.ID, "bob", domain.ParticipantMuted))
	require.NoError(t, s.SetCreator(ctx, r.ID, "bob"))
	require.ErrorIs(t, s.SetCreator(ctx, r.ID, "carol"), domain.ErrNotAParticipant)

	got, err := s.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("bob"), got.CreatorID)
	require.Len(t, got.Participants, 2)
	assert.Equal(t, domain.UserID("alice"), got.Participants[0].UserID)
	assert.Equal(t, domain.ParticipantMuted, got.Participants[1].Status)

	require.NoError(t, s.RemoveParticipant(ctx, r.ID, "alice"))
	require.ErrorIs(t, s.RemoveParticipant(ctx, r.ID, "alice"), domain.ErrNotAParticipant)

	require.NoError(t, s.Delete(ctx, r.ID))
	_, err = s.FindByID(ctx, r.ID)
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
	require.ErrorIs(t, s.Delete(ctx, r.ID), domain.ErrRoomNotFound)
}

func TestFindByID_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New(10)
	r := newRoom(t, s, "general", time.Now())

	got, err := s.FindByID(ctx, r.ID)
	require.NoError(t, err)
	got.Participants[0].Status = domain.ParticipantLobby
	got.Name = "changed"

	again, err := s.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "general", again.Name)
	assert.Equal(t, domain.ParticipantActive, again.Participants[0].Status)
}

func TestHistory_Paging(t *testing.T) {
	ctx := context.Background()
	s := New(3)
	r := newRoom(t, s, "general", time.Now())

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		m, err := domain.NewMessage(r.ID, "alice", fmt.Sprintf("m%d", i), 100, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, s.AppendMessage(ctx, r.ID, m))
	}

	got, err := s.FindByID(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "m6", got.Messages[2].Content)

	var contents []string
	next := ""
	for page := 0; page < 5; page++ {
		msgs, n, err := s.History(ctx, r.ID, next, 3)
		require.NoError(t, err)
		for _, m := range msgs {
			contents = append(contents, m.Content)
		}
		if n == "" {
			break
		}
		next = n
	}
	assert.Equal(t, []string{"m6", "m5", "m4", "m3", "m2", "m1", "m0"}, contents)

	_, _, err = s.History(ctx, r.ID, "%%%", 3)
	require.ErrorIs(t, err, cursor.ErrInvalidCursor)
	_, _, err = s.History(ctx, "missing", "", 3)
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestListLive(t *testing.T) {
	ctx := context.Background()
	s := New(10)
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	a := newRoom(t, s, "a", base)
	b := newRoom(t, s, "b", base.Add(time.Minute))
	c := newRoom(t, s, "c", base.Add(2*time.Minute))
	require.NoError(t, s.SetStatus(ctx, b.ID, domain.RoomInactive))

	priv, err := domain.NewRoom("secret", "alice", domain.VisibilityPrivate, "hash", base)
	require.NoError(t, err)
	priv.Status = domain.RoomLive
	_, err = s.Create(ctx, priv)
	require.NoError(t, err)

	rooms, next, err := s.ListLive(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, c.ID, rooms[0].ID)
	require.NotEmpty(t, next)

	rooms, next, err = s.ListLive(ctx, 1, next)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, a.ID, rooms[0].ID)

	rooms, next, err = s.ListLive(ctx, 1, next)
	require.NoError(t, err)
	assert.Empty(t, rooms)
	assert.Empty(t, next)
}

func TestCanceledContext(t *testing.T) {
	s := New(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FindByID(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}
