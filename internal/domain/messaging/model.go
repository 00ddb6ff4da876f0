package messaging

import (
	"time"

	"github.com/google/uuid"
)

// MaxContentLength bounds a single message body, in characters.
const MaxContentLength = 2000

type Message struct {
	ID         uuid.UUID  `json:"id"`
	SenderID   uuid.UUID  `json:"sender_id"`
	ReceiverID uuid.UUID  `json:"receiver_id"`
	Content    string     `json:"content"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Filter selects messages. Between restricts to the two-way conversation
// of a pair of users.
type Filter struct {
	Between    *[2]uuid.UUID
	ReceiverID *uuid.UUID
	UnreadOnly bool
	Limit      int
	Offset     int
}

func (f Filter) Match(m *Message) bool {
	if f.Between != nil {
		a, b := f.Between[0], f.Between[1]
		if !(m.SenderID == a && m.ReceiverID == b) && !(m.SenderID == b && m.ReceiverID == a) {
			return false
		}
	}
	if f.ReceiverID != nil && m.ReceiverID != *f.ReceiverID {
		return false
	}
	if f.UnreadOnly && m.IsRead {
		return false
	}
	return true
}
