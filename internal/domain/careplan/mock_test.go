package careplan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eldercare/eldercare/internal/domain/facility"
	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/pkg/apperr"
)

type mockPlanRepo struct{ items map[uuid.UUID]*CarePlan }

func (m *mockPlanRepo) Create(_ context.Context, p *CarePlan) error {
	p.ID = uuid.New()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockPlanRepo) GetByID(_ context.Context, id uuid.UUID) (*CarePlan, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("care plan")
	}
	cp := *p
	return &cp, nil
}

func (m *mockPlanRepo) GetMany(_ context.Context, ids []uuid.UUID) ([]*CarePlan, error) {
	var out []*CarePlan
	for _, id := range uniqueIDs(ids) {
		if p, ok := m.items[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockPlanRepo) Update(_ context.Context, p *CarePlan) error {
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockPlanRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("care plan")
	}
	delete(m.items, id)
	return nil
}

func (m *mockPlanRepo) Search(_ context.Context, f PlanFilter) ([]*CarePlan, int, error) {
	var out []*CarePlan
	for _, p := range m.items {
		if f.Match(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

type mockPackageRepo struct {
	items map[uuid.UUID]*RegistrationPackage
}

func (m *mockPackageRepo) Create(_ context.Context, p *RegistrationPackage) error {
	p.ID = uuid.New()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockPackageRepo) GetByID(_ context.Context, id uuid.UUID) (*RegistrationPackage, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("registration package")
	}
	cp := *p
	return &cp, nil
}

func (m *mockPackageRepo) Update(_ context.Context, p *RegistrationPackage) error {
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockPackageRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *mockPackageRepo) Search(_ context.Context, f PackageFilter) ([]*RegistrationPackage, int, error) {
	var out []*RegistrationPackage
	for _, p := range m.items {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

type mockAssignmentRepo struct{ items map[uuid.UUID]*Assignment }

func (m *mockAssignmentRepo) Create(_ context.Context, a *Assignment) error {
	a.ID = uuid.New()
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockAssignmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Assignment, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("care plan assignment")
	}
	cp := *a
	return &cp, nil
}

func (m *mockAssignmentRepo) Update(_ context.Context, a *Assignment) error {
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockAssignmentRepo) Search(_ context.Context, f AssignmentFilter) ([]*Assignment, int, error) {
	var out []*Assignment
	for _, a := range m.items {
		if f.Match(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	total := len(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *mockAssignmentRepo) SetStatus(_ context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		if a, ok := m.items[id]; ok {
			a.Status = status
			a.UpdatedAt = at
			if status == StatusPaused {
				t := at
				a.PausedAt = &t
			}
			n++
		}
	}
	return n, nil
}

type mockResidents map[uuid.UUID]*resident.Resident

func (m mockResidents) Get(_ context.Context, id uuid.UUID) (*resident.Resident, error) {
	r, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("resident")
	}
	return r, nil
}

type mockRooms map[uuid.UUID]*facility.Room

func (m mockRooms) GetRoom(_ context.Context, id uuid.UUID) (*facility.Room, error) {
	r, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("room")
	}
	return r, nil
}

type fixture struct {
	svc         *Service
	plans       *mockPlanRepo
	packages    *mockPackageRepo
	assignments *mockAssignmentRepo
	residents   mockResidents
	rooms       mockRooms
	family      uuid.UUID
	resident    *resident.Resident
	room        *facility.Room
}

var fixedNow = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{
		plans:       &mockPlanRepo{items: map[uuid.UUID]*CarePlan{}},
		packages:    &mockPackageRepo{items: map[uuid.UUID]*RegistrationPackage{}},
		assignments: &mockAssignmentRepo{items: map[uuid.UUID]*Assignment{}},
		residents:   mockResidents{},
		rooms:       mockRooms{},
		family:      uuid.New(),
	}
	f.resident = &resident.Resident{ID: uuid.New(), FullName: "Tran Van B", FamilyMemberID: &f.family, Status: resident.StatusAdmitted}
	f.residents[f.resident.ID] = f.resident
	f.room = &facility.Room{ID: uuid.New(), RoomNumber: "201", RoomType: "double", MonthlyPrice: decimal.NewFromInt(2000000)}
	f.rooms[f.room.ID] = f.room
	f.svc = NewService(f.plans, f.packages, f.assignments, f.residents, f.rooms)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) addPlan(name, planType string, price int64) *CarePlan {
	p := &CarePlan{ID: uuid.New(), PlanName: name, PlanType: planType, MonthlyPrice: decimal.NewFromInt(price), IsActive: true}
	f.plans.items[p.ID] = p
	return p
}
