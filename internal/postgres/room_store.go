package postgres

import (
	"context"
	"time"

	"github.com/cwrk-planet/roomchat/internal/cursor"
	"github.com/cwrk-planet/roomchat/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoomStore keeps rooms, participants and messages in PostgreSQL.
type RoomStore struct {
	db           *pgxpool.Pool
	historyLimit int
}

func NewRoomStore(db *pgxpool.Pool, historyLimit int) *RoomStore {
	return &RoomStore{db: db, historyLimit: historyLimit}
}

// FindByID loads the room, its participants in join order and the recent
// message tail from one snapshot.
func (s *RoomStore) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	var room *domain.Room
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		r, err := getRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if r.Participants, err = listParticipants(ctx, tx, roomID); err != nil {
			return err
		}
		if r.Messages, err = scanMessages(tx.Query(ctx, queryRecentMessages, roomID, s.historyLimit)); err != nil {
			return err
		}
		room = r
		return nil
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	return room, nil
}

func (s *RoomStore) Create(ctx context.Context, room *domain.Room) (*domain.Room, error) {
	r := room.Clone()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, queryInsertRoom,
			r.ID, r.Name, string(r.CreatorID), string(r.Visibility), r.SecretHash, string(r.Status), r.CreatedAt, r.UpdatedAt,
		); err != nil {
			return err
		}
		for _, p := range r.Participants {
			if _, err := tx.Exec(ctx, queryInsertParticipant, r.ID, string(p.UserID), string(p.Status), p.JoinedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapPgError(err)
	}

	return r, nil
}

func (s *RoomStore) AppendMessage(ctx context.Context, roomID string, msg domain.Message) error {
	_, err := s.db.Exec(ctx, queryInsertMessage, msg.ID, roomID, string(msg.AuthorID), msg.Content, msg.CreatedAt)
	return mapPgError(err)
}

// AddParticipant locks the room row, so concurrent adds to one room
// serialize.
func (s *RoomStore) AddParticipant(ctx context.Context, roomID string, p domain.Participant) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var one int
		if err := tx.QueryRow(ctx, queryLockRoom, roomID).Scan(&one); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, queryInsertParticipant, roomID, string(p.UserID), string(p.Status), p.JoinedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, queryTouchRoom, roomID, time.Now().UTC())
		return err
	})
	return mapPgError(err)
}

func (s *RoomStore) RemoveParticipant(ctx context.Context, roomID string, userID domain.UserID) error {
	tag, err := s.db.Exec(ctx, queryDeleteParticipant, roomID, string(userID))
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotAParticipant
	}
	return nil
}

func (s *RoomStore) UpdateParticipantStatus(ctx context.Context, roomID string, userID domain.UserID, status domain.ParticipantStatus) error {
	tag, err := s.db.Exec(ctx, queryUpdateParticipantStatus, roomID, string(userID), string(status))
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotAParticipant
	}
	return nil
}

func (s *RoomStore) SetCreator(ctx context.Context, roomID string, userID domain.UserID) error {
	tag, err := s.db.Exec(ctx, querySetCreator, roomID, string(userID), time.Now().UTC())
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotAParticipant
	}
	return nil
}

func (s *RoomStore) SetStatus(ctx context.Context, roomID string, status domain.RoomStatus) error {
	tag, err := s.db.Exec(ctx, querySetRoomState, roomID, string(status), time.Now().UTC())
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

// Delete removes the room; participants and messages go with it (ON DELETE CASCADE).
func (s *RoomStore) Delete(ctx context.Context, roomID string) error {
	tag, err := s.db.Exec(ctx, queryDeleteRoom, roomID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *RoomStore) ListLive(ctx context.Context, limit int, after string) ([]domain.Room, string, error) {
	cur, err := cursor.Decode(after)
	if err != nil {
		return nil, "", err
	}

	var createdAt, id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := s.db.Query(ctx, queryListLive, createdAt, id, limit)
	if err != nil {
		return nil, "", mapPgError(err)
	}
	defer rows.Close()

	rooms := make([]domain.Room, 0, limit)
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, "", err
		}
		rooms = append(rooms, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", mapPgError(err)
	}

	if len(rooms) == 0 {
		return rooms, "", nil
	}
	last := rooms[len(rooms)-1]
	return rooms, cursor.Next(len(rooms), limit, last.CreatedAt, last.ID), nil
}

// History pages room messages ordered by (created_at, id) DESC.
func (s *RoomStore) History(ctx context.Context, roomID string, after string, limit int) ([]domain.Message, string, error) {
	cur, err := cursor.Decode(after)
	if err != nil {
		return nil, "", err
	}

	var createdAt, id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	msgs, err := scanMessages(s.db.Query(ctx, queryHistory, roomID, createdAt, id, limit))
	if err != nil {
		return nil, "", mapPgError(err)
	}
	if len(msgs) == 0 {
		return msgs, "", nil
	}
	last := msgs[len(msgs)-1]
	return msgs, cursor.Next(len(msgs), limit, last.CreatedAt, last.ID), nil
}

func getRoom(ctx context.Context, q querier, roomID string) (*domain.Room, error) {
	return scanRoom(q.QueryRow(ctx, queryGetRoom, roomID))
}

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var r domain.Room
	var creator, visibility, status string
	err := row.Scan(&r.ID, &r.Name, &creator, &visibility, &r.SecretHash, &status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.CreatorID = domain.UserID(creator)
	r.Visibility = domain.Visibility(visibility)
	r.Status = domain.RoomStatus(status)
	return &r, nil
}

func listParticipants(ctx context.Context, q querier, roomID string) ([]domain.Participant, error) {
	rows, err := q.Query(ctx, queryListParticipants, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Participant
	for rows.Next() {
		var p domain.Participant
		var user, status string
		if err := rows.Scan(&user, &status, &p.JoinedAt); err != nil {
			return nil, err
		}
		p.UserID = domain.UserID(user)
		p.Status = domain.ParticipantStatus(status)
		list = append(list, p)
	}
	return list, rows.Err()
}

func scanMessages(rows pgx.Rows, err error) ([]domain.Message, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, 16)
	for rows.Next() {
		var (
			m      domain.Message
			author string
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &author, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.AuthorID = domain.UserID(author)
		out = append(out, m)
	}
	return out, rows.Err()
}
