package jobs

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldercare/eldercare/internal/domain/billing"
	"github.com/eldercare/eldercare/internal/domain/careplan"
	"github.com/eldercare/eldercare/internal/domain/facility"
	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/pkg/apperr"
)

type memAssignments struct {
	items     map[uuid.UUID]*careplan.Assignment
	searchErr error
}

func newMemAssignments() *memAssignments {
	return &memAssignments{items: map[uuid.UUID]*careplan.Assignment{}}
}

func (m *memAssignments) add(status string, end *time.Time, updated time.Time) *careplan.Assignment {
	a := &careplan.Assignment{ID: uuid.New(), ResidentID: uuid.New(), Status: status, EndDate: end, UpdatedAt: updated}
	m.items[a.ID] = a
	return a
}

func (m *memAssignments) Search(_ context.Context, f careplan.AssignmentFilter) ([]*careplan.Assignment, int, error) {
	if m.searchErr != nil {
		return nil, 0, m.searchErr
	}
	var out []*careplan.Assignment
	for _, a := range m.items {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *memAssignments) SetStatus(_ context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		a, ok := m.items[id]
		if !ok {
			continue
		}
		a.Status = status
		a.UpdatedAt = at
		if status == careplan.StatusPaused {
			t := at
			a.PausedAt = &t
		}
		n++
	}
	return n, nil
}

type memBeds struct {
	items map[uuid.UUID]*facility.BedAssignment
}

func (m *memBeds) Search(_ context.Context, f facility.BedAssignmentFilter) ([]*facility.BedAssignment, int, error) {
	var out []*facility.BedAssignment
	for _, a := range m.items {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *memBeds) SetStatus(_ context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error) {
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

func (m *memBeds) Create(_ context.Context, a *facility.BedAssignment) error {
	a.ID = uuid.New()
	m.items[a.ID] = a
	return nil
}

func (m *memBeds) GetByID(_ context.Context, id uuid.UUID) (*facility.BedAssignment, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("bed assignment")
	}
	return a, nil
}

func (m *memBeds) Update(_ context.Context, a *facility.BedAssignment) error {
	m.items[a.ID] = a
	return nil
}

// memRooms and memBedRows back a facility.Service in tests that drive the
// bed workflow end to end.
type memRooms struct {
	items map[uuid.UUID]*facility.Room
}

func (m *memRooms) Create(_ context.Context, r *facility.Room) error {
	r.ID = uuid.New()
	m.items[r.ID] = r
	return nil
}

func (m *memRooms) GetByID(_ context.Context, id uuid.UUID) (*facility.Room, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("room")
	}
	return r, nil
}

func (m *memRooms) Update(_ context.Context, r *facility.Room) error {
	m.items[r.ID] = r
	return nil
}

func (m *memRooms) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *memRooms) Search(_ context.Context, f facility.RoomFilter) ([]*facility.Room, int, error) {
	var out []*facility.Room
	for _, r := range m.items {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

type memBedRows struct {
	items map[uuid.UUID]*facility.Bed
}

func (m *memBedRows) Create(_ context.Context, b *facility.Bed) error {
	b.ID = uuid.New()
	m.items[b.ID] = b
	return nil
}

func (m *memBedRows) GetByID(_ context.Context, id uuid.UUID) (*facility.Bed, error) {
	b, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("bed")
	}
	return b, nil
}

func (m *memBedRows) Update(_ context.Context, b *facility.Bed) error {
	m.items[b.ID] = b
	return nil
}

func (m *memBedRows) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *memBedRows) Search(_ context.Context, f facility.BedFilter) ([]*facility.Bed, int, error) {
	var out []*facility.Bed
	for _, b := range m.items {
		if f.Match(b) {
			out = append(out, b)
		}
	}
	return out, len(out), nil
}

type memResidents struct {
	items map[uuid.UUID]*resident.Resident
}

func (m *memResidents) GetByID(_ context.Context, id uuid.UUID) (*resident.Resident, error) {
	r, ok := m.items[id]
	if !ok || r.IsDeleted {
		return nil, apperr.NotFound("resident")
	}
	return r, nil
}

// Get lets memResidents stand in for the facility service's resident lookup.
func (m *memResidents) Get(ctx context.Context, id uuid.UUID) (*resident.Resident, error) {
	return m.GetByID(ctx, id)
}

func (m *memResidents) Search(_ context.Context, f resident.Filter) ([]*resident.Resident, int, error) {
	var out []*resident.Resident
	for _, r := range m.items {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *memResidents) SetStatus(_ context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		if r, ok := m.items[id]; ok {
			r.Status = status
			r.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

type memBills struct {
	items map[uuid.UUID]*billing.Bill
}

func (m *memBills) Search(_ context.Context, f billing.BillFilter) ([]*billing.Bill, int, error) {
	var out []*billing.Bill
	for _, b := range m.items {
		if f.Match(b) {
			out = append(out, b)
		}
	}
	return out, len(out), nil
}

func (m *memBills) SetStatus(_ context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		if b, ok := m.items[id]; ok {
			b.Status = status
			b.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

var errStoreDown = errors.New("connection refused")

// logCtx returns a context carrying a JSON logger that writes into buf.
func logCtx() (context.Context, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := zerolog.New(buf)
	return l.WithContext(context.Background()), buf
}

func countLines(buf *bytes.Buffer, substr string) int {
	n := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

func ptrTime(t time.Time) *time.Time { return &t }
