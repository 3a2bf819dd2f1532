package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/roomchat/internal/domain"
	"github.com/cwrk-planet/roomchat/internal/memstore"
	"github.com/cwrk-planet/roomchat/internal/presence"
	"github.com/cwrk-planet/roomchat/internal/security"
	"github.com/cwrk-planet/roomchat/internal/service"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// tokenAuth accepts "tok-<user>".
type tokenAuth struct{}

func (tokenAuth) Verify(_ context.Context, token string) (domain.UserID, error) {
	user, ok := strings.CutPrefix(token, "tok-")
	if !ok || user == "" {
		return "", domain.ErrUnauthenticated
	}
	return domain.UserID(user), nil
}

type env struct {
	ts    *httptest.Server
	hub   *Hub
	reg   *presence.Registry
	rooms *service.RoomService
	srv   *Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	hub := NewHub()
	reg := presence.NewRegistry()
	hasher := security.SecretHasher{Cost: bcrypt.MinCost}
	coord := service.NewCoordinator(reg, memstore.New(20), hub, nil, hasher, service.CoordinatorConfig{StoreTimeout: time.Second})
	srv := NewServer(hub, coord, tokenAuth{}, Config{PingPeriod: time.Second, SendBuffer: 16})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWS)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &env{ts: ts, hub: hub, reg: reg, rooms: service.NewRoomService(coord, hasher), srv: srv}
}

func (e *env) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?access_token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func send(t *testing.T, c *websocket.Conn, typ string, payload any) {
	t.Helper()
	require.NoError(t, c.WriteJSON(Message{Type: typ, Payload: payload}))
}

// next reads until an event of the given type shows up.
func next(t *testing.T, c *websocket.Conn, typ domain.EventType, out any) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var env envelope
		require.NoError(t, c.ReadJSON(&env))
		if env.Type == string(typ) {
			if out != nil {
				require.NoError(t, json.Unmarshal(env.Payload, out))
			}
			return
		}
	}
}

func TestHandleWS_RejectsBadToken(t *testing.T) {
	e := newEnv(t)
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?access_token=garbage", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, e.reg.Stats().Connections)
}

func TestHandleWS_PrivateRoomScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	room, err := e.rooms.CreateRoom(ctx, "A", "standup", domain.VisibilityPrivate, "s1")
	require.NoError(t, err)
	_, err = e.rooms.SetRoomStatus(ctx, "A", room.ID, domain.RoomLive)
	require.NoError(t, err)

	a := e.dial(t, "tok-A")
	send(t, a, TypeJoinRoom, JoinRoomPayload{RoomID: room.ID})
	var snapA domain.RoomSnapshot
	next(t, a, domain.EventRoomSnapshot, &snapA)
	assert.Equal(t, "standup", snapA.Name)

	b := e.dial(t, "tok-B")
	send(t, b, TypeJoinRoom, JoinRoomPayload{RoomID: room.ID, Secret: "wrong"})
	var failed domain.ErrorEvent
	next(t, b, domain.EventError, &failed)
	assert.Equal(t, CodeUnauthorized, failed.Code)
	assert.Equal(t, TypeJoinRoom, failed.RequestType)
	assert.Equal(t, room.ID, failed.RoomID)

	send(t, b, TypeJoinRoom, JoinRoomPayload{RoomID: room.ID, Secret: "s1"})
	var snapB domain.RoomSnapshot
	next(t, b, domain.EventRoomSnapshot, &snapB)
	require.Len(t, snapB.Participants, 2)
	assert.Equal(t, domain.UserID("A"), snapB.Participants[0].UserID)

	var joined domain.UserJoined
	next(t, a, domain.EventUserJoined, &joined)
	assert.Equal(t, domain.UserID("B"), joined.Participant.UserID)

	send(t, a, TypeSendMessage, SendMessagePayload{RoomID: room.ID, Content: "hi"})
	var gotA, gotB domain.MessagePosted
	next(t, a, domain.EventNewMessage, &gotA)
	next(t, b, domain.EventNewMessage, &gotB)
	assert.Equal(t, "hi", gotA.Message.Content)
	assert.Equal(t, gotA.Message.ID, gotB.Message.ID)
	assert.True(t, gotA.Message.CreatedAt.Equal(gotB.Message.CreatedAt))

	require.NoError(t, b.Close())
	var left domain.UserLeft
	next(t, a, domain.EventUserLeft, &left)
	assert.Equal(t, domain.UserID("B"), left.UserID)
}

func TestHandleWS_MultiTabSinglePresence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room, err := e.rooms.CreateRoom(ctx, "A", "lounge", domain.VisibilityPublic, "")
	require.NoError(t, err)

	a := e.dial(t, "tok-A")
	send(t, a, TypeJoinRoom, JoinRoomPayload{RoomID: room.ID})
	next(t, a, domain.EventRoomSnapshot, nil)

	tab1 := e.dial(t, "tok-B")
	tab2 := e.dial(t, "tok-B")
	for _, c := range []*websocket.Conn{tab1, tab2} {
		send(t, c, TypeJoinRoom, JoinRoomPayload{RoomID: room.ID})
		next(t, c, domain.EventRoomSnapshot, nil)
	}
	next(t, a, domain.EventUserJoined, nil)

	// closing one tab is silent; the marker message proves nothing came before it
	require.NoError(t, tab1.Close())
	require.Eventually(t, func() bool { return e.reg.Stats().Connections == 2 }, 2*time.Second, 10*time.Millisecond)

	send(t, a, TypeSendMessage, SendMessagePayload{RoomID: room.ID, Content: "marker"})
	require.NoError(t, a.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env envelope
	require.NoError(t, a.ReadJSON(&env))
	assert.Equal(t, string(domain.EventNewMessage), env.Type)

	require.NoError(t, tab2.Close())
	next(t, a, domain.EventUserLeft, nil)
}

func TestHandleWS_BadRequests(t *testing.T) {
	e := newEnv(t)
	a := e.dial(t, "tok-A")

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var ev domain.ErrorEvent
	next(t, a, domain.EventError, &ev)
	assert.Equal(t, CodeInvalidInput, ev.Code)

	send(t, a, "dance", map[string]string{})
	next(t, a, domain.EventError, &ev)
	assert.Equal(t, CodeInvalidInput, ev.Code)
	assert.Equal(t, "dance", ev.RequestType)

	send(t, a, TypeJoinRoom, JoinRoomPayload{})
	next(t, a, domain.EventError, &ev)
	assert.Equal(t, CodeInvalidInput, ev.Code)

	send(t, a, TypeJoinRoom, JoinRoomPayload{RoomID: "missing"})
	next(t, a, domain.EventError, &ev)
	assert.Equal(t, CodeRoomNotFound, ev.Code)
}

func TestServer_WaitAfterCloseAll(t *testing.T) {
	e := newEnv(t)
	e.dial(t, "tok-A")
	require.Eventually(t, func() bool { return e.reg.Stats().Connections == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, e.hub.CloseAll())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.srv.Wait(ctx))
	assert.Zero(t, e.reg.Stats().Connections)
}

func TestErrorEvent_HidesStorageDetails(t *testing.T) {
	ev := errorEvent(TypeSendMessage, "r1", domain.ErrStorage)
	assert.Equal(t, CodeStorage, ev.Code)
	assert.NotContains(t, ev.Message, "storage failure")

	ev = errorEvent(TypeSendMessage, "r1", domain.ErrRateLimited)
	assert.Equal(t, CodeRateLimited, ev.Code)
}
