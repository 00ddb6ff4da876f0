package facility

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/pkg/apperr"
)

type mockRoomRepo struct{ rooms map[uuid.UUID]*Room }

func (m *mockRoomRepo) Create(_ context.Context, r *Room) error {
	for _, existing := range m.rooms {
		if existing.RoomNumber == r.RoomNumber {
			return apperr.Conflict("room number %s already exists", r.RoomNumber)
		}
	}
	r.ID = uuid.New()
	cp := *r
	m.rooms[r.ID] = &cp
	return nil
}

func (m *mockRoomRepo) GetByID(_ context.Context, id uuid.UUID) (*Room, error) {
	r, ok := m.rooms[id]
	if !ok {
		return nil, apperr.NotFound("room")
	}
	cp := *r
	return &cp, nil
}

func (m *mockRoomRepo) Update(_ context.Context, r *Room) error {
	if _, ok := m.rooms[r.ID]; !ok {
		return apperr.NotFound("room")
	}
	cp := *r
	m.rooms[r.ID] = &cp
	return nil
}

func (m *mockRoomRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.rooms[id]; !ok {
		return apperr.NotFound("room")
	}
	delete(m.rooms, id)
	return nil
}

func (m *mockRoomRepo) Search(_ context.Context, f RoomFilter) ([]*Room, int, error) {
	var out []*Room
	for _, r := range m.rooms {
		if f.Match(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

type mockBedRepo struct{ beds map[uuid.UUID]*Bed }

func (m *mockBedRepo) Create(_ context.Context, b *Bed) error {
	b.ID = uuid.New()
	cp := *b
	m.beds[b.ID] = &cp
	return nil
}

func (m *mockBedRepo) GetByID(_ context.Context, id uuid.UUID) (*Bed, error) {
	b, ok := m.beds[id]
	if !ok {
		return nil, apperr.NotFound("bed")
	}
	cp := *b
	return &cp, nil
}

func (m *mockBedRepo) Update(_ context.Context, b *Bed) error {
	cp := *b
	m.beds[b.ID] = &cp
	return nil
}

func (m *mockBedRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.beds, id)
	return nil
}

func (m *mockBedRepo) Search(_ context.Context, f BedFilter) ([]*Bed, int, error) {
	var out []*Bed
	for _, b := range m.beds {
		if f.Match(b) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BedNumber < out[j].BedNumber })
	return out, len(out), nil
}

type mockAssignmentRepo struct{ items map[uuid.UUID]*BedAssignment }

func (m *mockAssignmentRepo) Create(_ context.Context, a *BedAssignment) error {
	a.ID = uuid.New()
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockAssignmentRepo) GetByID(_ context.Context, id uuid.UUID) (*BedAssignment, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("bed assignment")
	}
	cp := *a
	return &cp, nil
}

func (m *mockAssignmentRepo) Update(_ context.Context, a *BedAssignment) error {
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockAssignmentRepo) Search(_ context.Context, f BedAssignmentFilter) ([]*BedAssignment, int, error) {
	var out []*BedAssignment
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

type fixture struct {
	svc         *Service
	rooms       *mockRoomRepo
	beds        *mockBedRepo
	assignments *mockAssignmentRepo
	residents   mockResidents
}

var fixedNow = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{
		rooms:       &mockRoomRepo{rooms: map[uuid.UUID]*Room{}},
		beds:        &mockBedRepo{beds: map[uuid.UUID]*Bed{}},
		assignments: &mockAssignmentRepo{items: map[uuid.UUID]*BedAssignment{}},
		residents:   mockResidents{},
	}
	f.svc = NewService(f.rooms, f.beds, f.assignments, f.residents, nil)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) addResident(name string) *resident.Resident {
	r := &resident.Resident{ID: uuid.New(), FullName: name, Status: resident.StatusAdmitted}
	f.residents[r.ID] = r
	return r
}
