package billing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eldercare/eldercare/internal/domain/careplan"
	"github.com/eldercare/eldercare/internal/domain/facility"
	"github.com/eldercare/eldercare/internal/domain/identity"
	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/internal/platform/notification"
	"github.com/eldercare/eldercare/pkg/apperr"
)

type mockBillRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*Bill
	failFor map[uuid.UUID]bool
}

func newMockBillRepo() *mockBillRepo {
	return &mockBillRepo{items: map[uuid.UUID]*Bill{}, failFor: map[uuid.UUID]bool{}}
}

func (m *mockBillRepo) Create(_ context.Context, b *Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[b.ResidentID] {
		return errors.New("insert failed")
	}
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	cp := *b
	m.items[b.ID] = &cp
	return nil
}

func (m *mockBillRepo) GetByID(_ context.Context, id uuid.UUID) (*Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("bill")
	}
	cp := *b
	return &cp, nil
}

func (m *mockBillRepo) Update(_ context.Context, b *Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[b.ID]; !ok {
		return apperr.NotFound("bill")
	}
	cp := *b
	m.items[b.ID] = &cp
	return nil
}

func (m *mockBillRepo) Search(_ context.Context, f BillFilter) ([]*Bill, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Bill
	for _, b := range m.items {
		if f.Match(b) {
			cp := *b
			out = append(out, &cp)
		}
	}
	total := len(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *mockBillRepo) SetStatus(_ context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *mockBillRepo) forResident(id uuid.UUID) []*Bill {
	list, _, _ := m.Search(context.Background(), BillFilter{ResidentID: &id})
	return list
}

type mockFinanceRepo struct {
	items map[uuid.UUID]*FinanceTransaction
}

func (m *mockFinanceRepo) Create(_ context.Context, t *FinanceTransaction) error {
	t.ID = uuid.New()
	cp := *t
	m.items[t.ID] = &cp
	return nil
}

func (m *mockFinanceRepo) GetByID(_ context.Context, id uuid.UUID) (*FinanceTransaction, error) {
	t, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("finance transaction")
	}
	return t, nil
}

func (m *mockFinanceRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("finance transaction")
	}
	delete(m.items, id)
	return nil
}

func (m *mockFinanceRepo) Search(_ context.Context, f FinanceFilter) ([]*FinanceTransaction, int, error) {
	var out []*FinanceTransaction
	for _, t := range m.items {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionDate.After(out[j].TransactionDate) })
	return out, len(out), nil
}

func (m *mockFinanceRepo) Summary(ctx context.Context, from, to *time.Time) (*FinanceSummary, error) {
	list, _, _ := m.Search(ctx, FinanceFilter{From: from, To: to})
	s := &FinanceSummary{From: from, To: to, TotalIncome: decimal.Zero, TotalExpense: decimal.Zero}
	for _, t := range list {
		switch t.Type {
		case TxIncome:
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
		case TxExpense:
			s.TotalExpense = s.TotalExpense.Add(t.Amount)
		}
		s.Count++
	}
	s.Balance = s.TotalIncome.Sub(s.TotalExpense)
	return s, nil
}

// mockResidents serves both ResidentLookup and ResidentSource.
type mockResidents map[uuid.UUID]*resident.Resident

func (m mockResidents) Get(_ context.Context, id uuid.UUID) (*resident.Resident, error) {
	r, ok := m[id]
	if !ok || r.IsDeleted {
		return nil, apperr.NotFound("resident")
	}
	return r, nil
}

func (m mockResidents) Search(_ context.Context, f resident.Filter) ([]*resident.Resident, int, error) {
	var out []*resident.Resident
	for _, r := range m {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, len(out), nil
}

type mockUsers map[uuid.UUID]*identity.User

func (m mockUsers) GetUser(_ context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

// mockCarePlans serves AssignmentSource from fixed data.
type mockCarePlans struct {
	active map[uuid.UUID]*careplan.Assignment
	plans  map[uuid.UUID]*careplan.CarePlan
}

func (m *mockCarePlans) ActiveAssignment(_ context.Context, residentID uuid.UUID) (*careplan.Assignment, error) {
	return m.active[residentID], nil
}

func (m *mockCarePlans) GetPlans(_ context.Context, ids []uuid.UUID) ([]*careplan.CarePlan, error) {
	var out []*careplan.CarePlan
	for _, id := range ids {
		p, ok := m.plans[id]
		if !ok {
			return nil, apperr.NotFound("care plan")
		}
		out = append(out, p)
	}
	return out, nil
}

type mockPlacements map[uuid.UUID]*facility.Placement

func (m mockPlacements) ActivePlacement(_ context.Context, residentID uuid.UUID) (*facility.Placement, error) {
	return m[residentID], nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

type notifyCall struct {
	Template  string
	Recipient string
	Data      map[string]string
}

func (n *recordingNotifier) Notify(_ context.Context, templateID, recipient string, data map[string]string) (*notification.Message, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	n.calls = append(n.calls, notifyCall{Template: templateID, Recipient: recipient, Data: data})
	return &notification.Message{ID: uuid.NewString(), TemplateID: templateID, Recipient: recipient}, nil
}

func (n *recordingNotifier) Calls() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyCall(nil), n.calls...)
}

type fixture struct {
	bills      *mockBillRepo
	finance    *mockFinanceRepo
	residents  mockResidents
	users      mockUsers
	carePlans  *mockCarePlans
	placements mockPlacements
	notifier   *recordingNotifier
	calc       *CostCalculator
	svc        *Service
}

func newFixture() *fixture {
	f := &fixture{
		bills:      newMockBillRepo(),
		finance:    &mockFinanceRepo{items: map[uuid.UUID]*FinanceTransaction{}},
		residents:  mockResidents{},
		users:      mockUsers{},
		carePlans:  &mockCarePlans{active: map[uuid.UUID]*careplan.Assignment{}, plans: map[uuid.UUID]*careplan.CarePlan{}},
		placements: mockPlacements{},
		notifier:   &recordingNotifier{},
	}
	f.calc = NewCostCalculator(f.carePlans, f.placements)
	f.svc = NewService(f.bills, f.finance, f.residents, f.users, f.calc, f.notifier, nil)
	return f
}

func (f *fixture) generator(workers int) *Generator {
	return NewGenerator(f.residents, f.carePlans, f.placements, f.calc, f.bills, f.users, f.notifier,
		GeneratorConfig{DueDay: 5, Workers: workers})
}

// addResident registers an admitted resident with a family member who has
// the given email.
func (f *fixture) addResident(name, email string) *resident.Resident {
	fam := &identity.User{ID: uuid.New(), Email: email, FullName: "Family of " + name, Role: "family"}
	f.users[fam.ID] = fam
	r := &resident.Resident{ID: uuid.New(), FullName: name, Status: resident.StatusAdmitted, FamilyMemberID: &fam.ID}
	f.residents[r.ID] = r
	return r
}

func (f *fixture) addPlan(name string, price int64) *careplan.CarePlan {
	desc := name + " description"
	category := "general"
	ratio := "1:4"
	p := &careplan.CarePlan{
		ID: uuid.New(), PlanName: name, Description: &desc, MonthlyPrice: decimal.NewFromInt(price),
		PlanType: careplan.PlanMain, Category: &category, StaffRatio: &ratio, IsActive: true,
	}
	f.carePlans.plans[p.ID] = p
	return p
}

// activate gives r an active assignment on plans over [start, end].
func (f *fixture) activate(r *resident.Resident, total *int64, start time.Time, end *time.Time, plans ...*careplan.CarePlan) *careplan.Assignment {
	a := &careplan.Assignment{
		ID: uuid.New(), ResidentID: r.ID, StartDate: start, EndDate: end, Status: careplan.StatusActive,
	}
	for _, p := range plans {
		a.CarePlanIDs = append(a.CarePlanIDs, p.ID)
	}
	if total != nil {
		a.TotalMonthlyCost = decimal.NewNullDecimal(decimal.NewFromInt(*total))
	}
	f.carePlans.active[r.ID] = a
	return a
}

func (f *fixture) place(r *resident.Resident, roomNumber string, price int64) *facility.Placement {
	room := &facility.Room{ID: uuid.New(), RoomNumber: roomNumber, RoomType: "double", Floor: 3, MonthlyPrice: decimal.NewFromInt(price)}
	bed := &facility.Bed{ID: uuid.New(), RoomID: room.ID, BedNumber: "B"}
	p := &facility.Placement{
		Assignment: &facility.BedAssignment{ID: uuid.New(), ResidentID: r.ID, BedID: bed.ID, Status: facility.AssignmentActive},
		Bed:        bed,
		Room:       room,
	}
	f.placements[r.ID] = p
	return p
}

func ptr[T any](v T) *T { return &v }
