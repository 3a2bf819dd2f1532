package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cwrk-planet/roomchat/internal/domain"
	"github.com/cwrk-planet/roomchat/internal/service"
	httpmw "github.com/cwrk-planet/roomchat/internal/transport/http/middleware"
	"github.com/cwrk-planet/roomchat/internal/transport/http/httputil"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	rooms *service.RoomService
}

func NewHandler(rooms *service.RoomService) *Handler {
	return &Handler{rooms: rooms}
}

// POST /rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid_input", "invalid json")
		return
	}
	visibility := domain.Visibility(req.Visibility)
	if req.Visibility == "" {
		visibility = domain.VisibilityPublic
	}

	user := httpmw.UserIDFromCtx(r.Context())
	room, err := h.rooms.CreateRoom(r.Context(), user, req.Name, visibility, req.Secret)
	if err != nil {
		writeError(w, r, "handler.CreateRoom", err)
		return
	}
	httputil.Created(w, toRoomItem(room, true))
}

// GET /rooms?limit=&cursor=
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rooms, next, err := h.rooms.ListLiveRooms(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, r, "handler.ListRooms", err)
		return
	}

	resp := RoomsListResponse{Items: make([]RoomItem, 0, len(rooms)), NextCursor: next}
	for i := range rooms {
		resp.Items = append(resp.Items, toRoomItem(&rooms[i], false))
	}
	httputil.OK(w, resp)
}

// GET /rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	user := httpmw.UserIDFromCtx(r.Context())
	room, err := h.rooms.GetRoom(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "handler.GetRoom", err)
		return
	}
	httputil.OK(w, toRoomItem(room, true))
}

// PATCH /rooms/{id}/status
func (h *Handler) SetRoomStatus(w http.ResponseWriter, r *http.Request) {
	var req SetRoomStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid_input", "invalid json")
		return
	}

	user := httpmw.UserIDFromCtx(r.Context())
	room, err := h.rooms.SetRoomStatus(r.Context(), user, chi.URLParam(r, "id"), domain.RoomStatus(req.Status))
	if err != nil {
		writeError(w, r, "handler.SetRoomStatus", err)
		return
	}
	httputil.OK(w, toRoomItem(room, true))
}

// GET /rooms/{id}/messages?cursor=&limit=
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	user := httpmw.UserIDFromCtx(r.Context())
	msgs, next, err := h.rooms.History(r.Context(), user, chi.URLParam(r, "id"), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, r, "handler.GetMessages", err)
		return
	}

	resp := MessagesResponse{Items: make([]MessageItem, 0, len(msgs)), NextCursor: next}
	for _, m := range msgs {
		resp.Items = append(resp.Items, toMessageItem(m))
	}
	httputil.OK(w, resp)
}

// parseLimit returns 0 when the query has no limit; the service applies its default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		httputil.Error(w, http.StatusBadRequest, "invalid_input", "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code, msg := toHTTP(err)
	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, op, slog.Any("err", err))
	httputil.Error(w, status, code, msg)
}

// toHTTP maps domain errors to a status, an error code and a client message.
func toHTTP(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", err.Error()
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized", "access to the room is denied"
	case errors.Is(err, domain.ErrNotAParticipant):
		return http.StatusForbidden, "not_a_participant", "user is not a participant of the room"
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound, "room_not_found", "room not found"
	case errors.Is(err, domain.ErrAlreadyMember):
		return http.StatusConflict, "already_member", "user already joined the room"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "rate limited"
	case errors.Is(err, domain.ErrStorage):
		return http.StatusServiceUnavailable, "storage_failure", "storage is unavailable, try again later"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
