package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/roomchat/internal/domain"
	"github.com/cwrk-planet/roomchat/internal/transport/http/httputil"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Authenticator interface {
	Verify(ctx context.Context, token string) (domain.UserID, error)
}

// Coordinator is the presence logic behind the socket.
type Coordinator interface {
	Connect(connID string, user domain.UserID) error
	JoinRoom(ctx context.Context, connID string, user domain.UserID, roomID, secret string) (*domain.RoomSnapshot, error)
	LeaveRoom(ctx context.Context, connID string, user domain.UserID, roomID string) error
	HandleDisconnect(ctx context.Context, connID string) error
	PostMessage(ctx context.Context, connID string, user domain.UserID, roomID, content string) (domain.Message, error)
	ChangeStatus(ctx context.Context, connID string, user domain.UserID, roomID string, status domain.ParticipantStatus) error
}

type Config struct {
	PingPeriod     time.Duration
	WriteWait      time.Duration
	ReadLimit      int64
	SendBuffer     int
	AllowedOrigins []string
}

func (c *Config) setDefaults() {
	if c.PingPeriod <= 0 {
		c.PingPeriod = 15 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 5 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 16
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	coord    Coordinator
	auth     Authenticator
	cfg      Config

	wg sync.WaitGroup
}

func NewServer(hub *Hub, coord Coordinator, auth Authenticator, cfg Config) *Server {
	cfg.setDefaults()
	s := &Server{
		hub:   hub,
		coord: coord,
		auth:  auth,
		cfg:   cfg,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// HandleWS serves GET /ws. The token is checked before the upgrade, so a bad
// credential gets a plain 401 and no socket.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token, ok := httputil.BearerToken(r)
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, CodeUnauthenticated, "missing access token")
		return
	}
	user, err := s.auth.Verify(r.Context(), token)
	if err != nil {
		slog.Debug("ws auth failed", "err", err)
		httputil.Error(w, http.StatusUnauthorized, CodeUnauthenticated, "invalid access token")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader already replied
		slog.Warn("ws upgrade failed", "user", user, "err", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	c := newWsConn(uuid.NewString(), conn, s.cfg.SendBuffer)
	s.hub.Attach(c)
	if err := s.coord.Connect(c.id, user); err != nil {
		slog.Error("ws register failed", "conn", c.id, "user", user, "err", err)
		s.hub.Detach(c.id)
		_ = c.Close()
		return
	}
	slog.Info("ws connected", "conn", c.id, "user", user, "remote", r.RemoteAddr)

	go s.writeLoop(c)
	s.readLoop(r.Context(), c, user)

	// the request context may already be gone
	ctx := context.WithoutCancel(r.Context())
	if err := s.coord.HandleDisconnect(ctx, c.id); err != nil {
		slog.Warn("ws disconnect cleanup incomplete", "conn", c.id, "user", user, "err", err)
	}
	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "conn", c.id, "err", err)
	}
	slog.Info("ws disconnected", "conn", c.id, "user", user)
}

// Wait blocks until every connection handler finished its disconnect path.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readLoop handles one inbound event at a time, so a connection's requests
// are applied in the order they were sent.
func (s *Server) readLoop(ctx context.Context, c *wsConn, user domain.UserID) {
	pongWait := 2 * s.cfg.PingPeriod

	c.conn.SetReadLimit(s.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read failed", "conn", c.id, "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(c, errorEvent("", "", fmt.Errorf("malformed message: %w", domain.ErrInvalidInput)))
			continue
		}
		s.dispatch(ctx, c, user, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, c *wsConn, user domain.UserID, msg inbound) {
	var (
		roomID string
		err    error
	)

	switch msg.Type {
	case TypeJoinRoom:
		var p JoinRoomPayload
		if err = decodePayload(msg.Payload, &p, &p.RoomID); err == nil {
			roomID = p.RoomID
			_, err = s.coord.JoinRoom(ctx, c.id, user, p.RoomID, p.Secret)
		}
	case TypeLeaveRoom:
		var p LeaveRoomPayload
		if err = decodePayload(msg.Payload, &p, &p.RoomID); err == nil {
			roomID = p.RoomID
			err = s.coord.LeaveRoom(ctx, c.id, user, p.RoomID)
		}
	case TypeSendMessage:
		var p SendMessagePayload
		if err = decodePayload(msg.Payload, &p, &p.RoomID); err == nil {
			roomID = p.RoomID
			_, err = s.coord.PostMessage(ctx, c.id, user, p.RoomID, p.Content)
		}
	case TypeStatusChange:
		var p StatusChangePayload
		if err = decodePayload(msg.Payload, &p, &p.RoomID); err == nil {
			roomID = p.RoomID
			err = s.coord.ChangeStatus(ctx, c.id, user, p.RoomID, domain.ParticipantStatus(p.Status))
		}
	default:
		err = fmt.Errorf("unknown message type %q: %w", msg.Type, domain.ErrInvalidInput)
	}

	if err != nil {
		slog.Debug("ws request failed", "conn", c.id, "user", user, "type", msg.Type, "room", roomID, "err", err)
		s.reply(c, errorEvent(msg.Type, roomID, err))
	}
}

// decodePayload unmarshals raw into dst and requires a room id.
func decodePayload(raw json.RawMessage, dst any, roomID *string) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload: %w", domain.ErrInvalidInput)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed payload: %w", domain.ErrInvalidInput)
	}
	*roomID = strings.TrimSpace(*roomID)
	if *roomID == "" {
		return fmt.Errorf("room_id is required: %w", domain.ErrInvalidInput)
	}
	return nil
}

func (s *Server) reply(c *wsConn, ev domain.Event) {
	if !c.Enqueue(ev) {
		slog.Warn("ws connection dropped: send queue full", "conn", c.id)
		_ = c.Close()
	}
}

// writeLoop is the only writer of the socket.
func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := c.conn.WriteJSON(encode(ev)); err != nil {
				slog.Debug("ws write failed", "conn", c.id, "err", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteWait)); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					slog.Debug("ws ping failed", "conn", c.id, "err", err)
				}
				return
			}
		case <-c.closed:
			return
		}
	}
}

// --- helpers ---

type wsConn struct {
	id     string
	conn   *websocket.Conn
	send   chan domain.Event
	closed chan struct{}
	once   sync.Once
	err    error
}

func newWsConn(id string, c *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		id:     id,
		conn:   c,
		send:   make(chan domain.Event, buffer),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Enqueue never blocks. A closed connection swallows events.
func (c *wsConn) Enqueue(ev domain.Event) bool {
	select {
	case <-c.closed:
		return true
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *wsConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.err = c.conn.Close()
	})
	return c.err
}
