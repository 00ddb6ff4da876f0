package visit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eldercare/eldercare/internal/domain/identity"
	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/internal/platform/auth"
	"github.com/eldercare/eldercare/internal/platform/notification"
	"github.com/eldercare/eldercare/pkg/apperr"
)

type mockRepo struct {
	items map[uuid.UUID]*Visit
}

func (m *mockRepo) Create(_ context.Context, v *Visit) error {
	v.ID = uuid.New()
	cp := *v
	m.items[v.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	v, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("visit")
	}
	cp := *v
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, v *Visit) error {
	if _, ok := m.items[v.ID]; !ok {
		return apperr.NotFound("visit")
	}
	cp := *v
	m.items[v.ID] = &cp
	return nil
}

func (m *mockRepo) Search(_ context.Context, f Filter) ([]*Visit, int, error) {
	var out []*Visit
	for _, v := range m.items {
		if f.Match(v) {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

type mockResidents map[uuid.UUID]*resident.Resident

func (m mockResidents) Get(ctx context.Context, id uuid.UUID) (*resident.Resident, error) {
	r, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("resident")
	}
	if auth.IsFamilyOnly(ctx) && (r.FamilyMemberID == nil || r.FamilyMemberID.String() != auth.UserIDFromContext(ctx)) {
		return nil, apperr.NotFound("resident")
	}
	return r, nil
}

type mockUsers map[uuid.UUID]*identity.User

func (m mockUsers) GetUser(_ context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []map[string]string
}

func (n *recordingNotifier) Notify(_ context.Context, templateID, recipient string, data map[string]string) (*notification.Message, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, data)
	return &notification.Message{ID: uuid.NewString(), TemplateID: templateID, Recipient: recipient}, nil
}

type fixture struct {
	repo     *mockRepo
	notifier *recordingNotifier
	svc      *Service
	family   *identity.User
	resident *resident.Resident
}

// fixedNow is a Monday morning.
var fixedNow = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	fam := &identity.User{ID: uuid.New(), Email: "son@example.com", FullName: "Tran Son", Role: auth.RoleFamily}
	f := &fixture{
		repo:     &mockRepo{items: map[uuid.UUID]*Visit{}},
		notifier: &recordingNotifier{},
		family:   fam,
		resident: &resident.Resident{ID: uuid.New(), FullName: "Tran Ong", FamilyMemberID: &fam.ID},
	}
	f.svc = NewService(f.repo, mockResidents{f.resident.ID: f.resident}, mockUsers{fam.ID: fam}, f.notifier)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) familyCtx() context.Context {
	return auth.WithUser(context.Background(), f.family.ID.String(), f.family.Email, []string{auth.RoleFamily})
}

func staffCtx() context.Context {
	return auth.WithUser(context.Background(), uuid.NewString(), "", []string{auth.RoleStaff})
}
