package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/eldercare/eldercare/internal/domain/identity"
	"github.com/eldercare/eldercare/internal/platform/auth"
	"github.com/eldercare/eldercare/internal/platform/middleware"
	"github.com/eldercare/eldercare/pkg/apperr"
)

type mockRepo struct {
	items []*Message
	clock time.Time
}

func (m *mockRepo) Create(_ context.Context, msg *Message) error {
	msg.ID = uuid.New()
	m.clock = m.clock.Add(time.Minute)
	msg.CreatedAt = m.clock
	cp := *msg
	m.items = append(m.items, &cp)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Message, error) {
	for _, msg := range m.items {
		if msg.ID == id {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("message")
}

func (m *mockRepo) Search(_ context.Context, f Filter) ([]*Message, int, error) {
	var out []*Message
	for _, msg := range m.items {
		if f.Match(msg) {
			out = append(out, msg)
		}
	}
	if f.Between == nil {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out, len(out), nil
}

func (m *mockRepo) MarkRead(_ context.Context, id uuid.UUID, at time.Time) error {
	for _, msg := range m.items {
		if msg.ID == id {
			msg.IsRead = true
			msg.ReadAt = &at
			return nil
		}
	}
	return apperr.NotFound("message")
}

func (m *mockRepo) CountUnread(_ context.Context, receiverID uuid.UUID) (int, error) {
	n := 0
	for _, msg := range m.items {
		if msg.ReceiverID == receiverID && !msg.IsRead {
			n++
		}
	}
	return n, nil
}

type mockUsers map[uuid.UUID]*identity.User

func (m mockUsers) GetUser(_ context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

type fixture struct {
	repo     *mockRepo
	svc      *Service
	nurse    *identity.User
	daughter *identity.User
	retired  *identity.User
}

func newFixture() *fixture {
	f := &fixture{
		repo:     &mockRepo{clock: time.Date(2024, 8, 1, 8, 0, 0, 0, time.UTC)},
		nurse:    &identity.User{ID: uuid.New(), FullName: "Nurse Mai", Role: auth.RoleStaff, IsActive: true},
		daughter: &identity.User{ID: uuid.New(), FullName: "Le Thu", Role: auth.RoleFamily, IsActive: true},
		retired:  &identity.User{ID: uuid.New(), FullName: "Old Account", Role: auth.RoleStaff},
	}
	f.svc = NewService(f.repo, mockUsers{f.nurse.ID: f.nurse, f.daughter.ID: f.daughter, f.retired.ID: f.retired})
	return f
}

func as(u *identity.User) context.Context {
	return auth.WithUser(context.Background(), u.ID.String(), "", []string{u.Role})
}

func TestService_SendValidation(t *testing.T) {
	f := newFixture()
	ctx := as(f.daughter)

	tests := []struct {
		name string
		in   SendInput
		want error
	}{
		{"blank content", SendInput{ReceiverID: f.nurse.ID, Content: "   "}, apperr.ErrInvalid},
		{"too long", SendInput{ReceiverID: f.nurse.ID, Content: strings.Repeat("a", MaxContentLength+1)}, apperr.ErrInvalid},
		{"to self", SendInput{ReceiverID: f.daughter.ID, Content: "hi"}, apperr.ErrInvalid},
		{"inactive receiver", SendInput{ReceiverID: f.retired.ID, Content: "hi"}, apperr.ErrInvalid},
		{"unknown receiver", SendInput{ReceiverID: uuid.New(), Content: "hi"}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Send(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := f.svc.Send(context.Background(), SendInput{ReceiverID: f.nurse.ID, Content: "hi"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden without a caller, got %v", err)
	}
}

func TestService_ConversationAndUnread(t *testing.T) {
	f := newFixture()
	mustSend := func(from, to *identity.User, content string) *Message {
		t.Helper()
		m, err := f.svc.Send(as(from), SendInput{ReceiverID: to.ID, Content: content})
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		return m
	}
	first := mustSend(f.daughter, f.nurse, "How is my father today?")
	mustSend(f.nurse, f.daughter, "He ate well and walked in the garden.")
	mustSend(f.daughter, f.nurse, "Thank you!")

	conv, total, err := f.svc.Conversation(as(f.nurse), f.daughter.ID, 0, 0)
	if err != nil || total != 3 {
		t.Fatalf("conversation: %d (%v)", total, err)
	}
	if conv[0].ID != first.ID {
		t.Error("conversation should be oldest first")
	}

	n, _ := f.svc.UnreadCount(as(f.nurse))
	if n != 2 {
		t.Errorf("expected 2 unread for the nurse, got %d", n)
	}

	if _, err := f.svc.MarkRead(as(f.daughter), first.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("sender cannot mark read, got %v", err)
	}
	read, err := f.svc.MarkRead(as(f.nurse), first.ID)
	if err != nil || !read.IsRead || read.ReadAt == nil {
		t.Fatalf("mark read: %+v (%v)", read, err)
	}
	n, _ = f.svc.UnreadCount(as(f.nurse))
	if n != 1 {
		t.Errorf("expected 1 unread after marking, got %d", n)
	}

	inbox, total, _ := f.svc.Inbox(as(f.nurse), true, 0, 0)
	if total != 1 || inbox[0].Content != "Thank you!" {
		t.Errorf("unexpected unread inbox %+v", inbox)
	}
}

func newTestServer(f *fixture, u *identity.User) *echo.Echo {
	e := echo.New()
	e.Validator = middleware.NewRequestValidator()
	e.HTTPErrorHandler = middleware.ErrorHandler(zerolog.Nop())
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithUser(c.Request().Context(), u.ID.String(), "", []string{u.Role})))
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(api)
	return e
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Messaging(t *testing.T) {
	f := newFixture()
	daughter := newTestServer(f, f.daughter)
	nurse := newTestServer(f, f.nurse)

	rec := serve(daughter, http.MethodPost, "/api/v1/messages", `{"receiver_id":"`+f.nurse.ID.String()+`","content":"Hello"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(nurse, http.MethodGet, "/api/v1/messages/unread-count", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"unread":1`) {
		t.Errorf("unread count: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(nurse, http.MethodGet, "/api/v1/messages/conversation/"+f.daughter.ID.String(), "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"content":"Hello"`) {
		t.Errorf("conversation: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(nurse, http.MethodPost, "/api/v1/messages/"+f.repo.items[0].ID.String()+"/read", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"is_read":true`) {
		t.Errorf("mark read: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(daughter, http.MethodPost, "/api/v1/messages", `{"content":"no receiver"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without receiver, got %d", rec.Code)
	}
}
