package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	// Search orders conversations oldest first and inboxes newest first.
	Search(ctx context.Context, f Filter) ([]*Message, int, error)
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error
	CountUnread(ctx context.Context, receiverID uuid.UUID) (int, error)
}
