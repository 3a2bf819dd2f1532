package domain

import (
	"crypto/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

var entropy = &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)}

type Message struct {
	ID        string    `db:"id" json:"id"`
	RoomID    string    `db:"room_id" json:"room_id"`
	AuthorID  UserID    `db:"author_id" json:"author_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NewMessage validates content and stamps the message with a ULID, so ids
// sort in creation order.
func NewMessage(roomID string, author UserID, content string, maxLen int, now time.Time) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, ErrInvalidInput
	}
	if maxLen > 0 && utf8.RuneCountInString(content) > maxLen {
		return Message{}, ErrInvalidInput
	}
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return Message{}, err
	}

	return Message{
		ID:        id.String(),
		RoomID:    roomID,
		AuthorID:  author,
		Content:   content,
		CreatedAt: now,
	}, nil
}
