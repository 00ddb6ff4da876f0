package messaging

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldercare/eldercare/internal/domain/identity"
	"github.com/eldercare/eldercare/internal/platform/auth"
	"github.com/eldercare/eldercare/internal/platform/websocket"
	"github.com/eldercare/eldercare/pkg/apperr"
)

type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// Publisher pushes live events. websocket.Hub satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event websocket.Event) error
}

type Service struct {
	repo      Repository
	users     UserLookup
	publisher Publisher
	now       func() time.Time
}

func NewService(repo Repository, users UserLookup) *Service {
	return &Service{repo: repo, users: users, now: time.Now}
}

// SetPublisher delivers every sent message to the receiver's live topic.
func (s *Service) SetPublisher(p Publisher) { s.publisher = p }

type SendInput struct {
	ReceiverID uuid.UUID `json:"receiver_id" validate:"required"`
	Content    string    `json:"content" validate:"required"`
}

func (s *Service) Send(ctx context.Context, in SendInput) (*Message, error) {
	sender, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apperr.Invalid("content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, apperr.Invalid("content must not exceed %d characters", MaxContentLength)
	}
	if in.ReceiverID == sender {
		return nil, apperr.Invalid("cannot send a message to yourself")
	}
	receiver, err := s.users.GetUser(ctx, in.ReceiverID)
	if err != nil {
		return nil, err
	}
	if !receiver.IsActive {
		return nil, apperr.Invalid("receiver is not active")
	}

	m := &Message{SenderID: sender, ReceiverID: receiver.ID, Content: content}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	if s.publisher != nil {
		ev := websocket.NewEvent("message.created", websocket.UserTopic(m.ReceiverID.String()), "message", m.ID.String(), m)
		if err := s.publisher.Publish(ctx, ev); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("message_id", m.ID.String()).Msg("publish message event")
		}
	}
	return m, nil
}

// Conversation returns the messages exchanged between the caller and other,
// oldest first.
func (s *Service) Conversation(ctx context.Context, other uuid.UUID, limit, offset int) ([]*Message, int, error) {
	me, err := caller(ctx)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.Search(ctx, Filter{Between: &[2]uuid.UUID{me, other}, Limit: limit, Offset: offset})
}

// Inbox returns messages received by the caller, newest first.
func (s *Service) Inbox(ctx context.Context, unreadOnly bool, limit, offset int) ([]*Message, int, error) {
	me, err := caller(ctx)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.Search(ctx, Filter{ReceiverID: &me, UnreadOnly: unreadOnly, Limit: limit, Offset: offset})
}

// MarkRead is only allowed for the receiver. Marking twice keeps the first
// read time.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) (*Message, error) {
	me, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.ReceiverID != me {
		if m.SenderID == me {
			return nil, apperr.Forbidden("only the receiver can mark a message as read")
		}
		return nil, apperr.NotFound("message")
	}
	if m.IsRead {
		return m, nil
	}
	now := s.now()
	if err := s.repo.MarkRead(ctx, id, now); err != nil {
		return nil, err
	}
	m.IsRead = true
	m.ReadAt = &now
	return m, nil
}

func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	me, err := caller(ctx)
	if err != nil {
		return 0, err
	}
	return s.repo.CountUnread(ctx, me)
}

func caller(ctx context.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, apperr.Forbidden("unknown caller")
	}
	return id, nil
}
