// Package memstore keeps rooms in process memory. It backs local runs with
// store.driver=memory and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/roomchat/internal/cursor"
	"github.com/cwrk-planet/roomchat/internal/domain"

	"github.com/google/uuid"
)

type Store struct {
	mu           sync.RWMutex
	rooms        map[string]*domain.Room
	historyLimit int
}

func New(historyLimit int) *Store {
	return &Store{
		rooms:        make(map[string]*domain.Room),
		historyLimit: historyLimit,
	}
}

func (s *Store) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := r.Clone()
	cp.Messages = append([]domain.Message(nil), r.RecentMessages(s.historyLimit)...)
	return cp, nil
}

func (s *Store) Create(ctx context.Context, room *domain.Room) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r := room.Clone()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, ok := s.rooms[r.ID]; ok {
		return nil, domain.ErrInvalidInput
	}
	s.rooms[r.ID] = r
	return r.Clone(), nil
}

func (s *Store) AppendMessage(ctx context.Context, roomID string, msg domain.Message) error {
	return s.mutate(ctx, roomID, func(r *domain.Room) error {
		r.Messages = append(r.Messages, msg)
		return nil
	})
}

func (s *Store) AddParticipant(ctx context.Context, roomID string, p domain.Participant) error {
	return s.mutate(ctx, roomID, func(r *domain.Room) error {
		if r.HasParticipant(p.UserID) {
			return domain.ErrAlreadyMember
		}
		r.Participants = append(r.Participants, p)
		return nil
	})
}

func (s *Store) RemoveParticipant(ctx context.Context, roomID string, userID domain.UserID) error {
	return s.mutate(ctx, roomID, func(r *domain.Room) error {
		if !r.HasParticipant(userID) {
			return domain.ErrNotAParticipant
		}
		r.Participants = r.Without(userID)
		return nil
	})
}

func (s *Store) UpdateParticipantStatus(ctx context.Context, roomID string, userID domain.UserID, status domain.ParticipantStatus) error {
	return s.mutate(ctx, roomID, func(r *domain.Room) error {
		for i := range r.Participants {
			if r.Participants[i].UserID == userID {
				r.Participants[i].Status = status
				return nil
			}
		}
		return domain.ErrNotAParticipant
	})
}

func (s *Store) SetCreator(ctx context.Context, roomID string, userID domain.UserID) error {
	return s.mutate(ctx, roomID, func(r *domain.Room) error {
		if !r.HasParticipant(userID) {
			return domain.ErrNotAParticipant
		}
		r.CreatorID = userID
		return nil
	})
}

func (s *Store) SetStatus(ctx context.Context, roomID string, status domain.RoomStatus) error {
	return s.mutate(ctx, roomID, func(r *domain.Room) error {
		r.Status = status
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return domain.ErrRoomNotFound
	}
	delete(s.rooms, roomID)
	return nil
}

// ListLive returns live public rooms ordered by (created_at, id) DESC.
func (s *Store) ListLive(ctx context.Context, limit int, after string) ([]domain.Room, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	cur, err := cursor.Decode(after)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	live := make([]domain.Room, 0)
	for _, r := range s.rooms {
		if r.Status != domain.RoomLive || r.IsPrivate() {
			continue
		}
		if cur != nil && !cur.Before(r.CreatedAt, r.ID) {
			continue
		}
		cp := r.Clone()
		cp.Messages = nil
		live = append(live, *cp)
	}
	s.mu.RUnlock()

	sort.Slice(live, func(i, j int) bool {
		return newerFirst(live[i].CreatedAt, live[i].ID, live[j].CreatedAt, live[j].ID)
	})
	if len(live) > limit {
		live = live[:limit]
	}
	if len(live) == 0 {
		return live, "", nil
	}
	last := live[len(live)-1]
	return live, cursor.Next(len(live), limit, last.CreatedAt, last.ID), nil
}

// History returns messages ordered newest first.
func (s *Store) History(ctx context.Context, roomID string, after string, limit int) ([]domain.Message, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	cur, err := cursor.Decode(after)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	r, ok := s.rooms[roomID]
	if !ok {
		s.mu.RUnlock()
		return nil, "", domain.ErrRoomNotFound
	}
	out := make([]domain.Message, 0, limit)
	for i := len(r.Messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.Messages[i]
		if cur != nil && !cur.Before(m.CreatedAt, m.ID) {
			continue
		}
		out = append(out, m)
	}
	s.mu.RUnlock()

	if len(out) == 0 {
		return out, "", nil
	}
	last := out[len(out)-1]
	return out, cursor.Next(len(out), limit, last.CreatedAt, last.ID), nil
}

func (s *Store) mutate(ctx context.Context, roomID string, fn func(r *domain.Room) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if err := fn(r); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func newerFirst(at1 time.Time, id1 string, at2 time.Time, id2 string) bool {
	if !at1.Equal(at2) {
		return at1.After(at2)
	}
	return id1 > id2
}
