package billing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldercare/eldercare/internal/domain/careplan"
	"github.com/eldercare/eldercare/internal/domain/facility"
	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/internal/platform/notification"
)

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	return loc
}

// logCtx returns a context whose zerolog logger writes JSON lines to buf.
func logCtx(buf *bytes.Buffer) context.Context {
	return zerolog.New(buf).WithContext(context.Background())
}

func countLevel(buf *bytes.Buffer, level string) int {
	return strings.Count(buf.String(), `"level":"`+level+`"`)
}

func TestGenerator_ScenarioA(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, loc)
	f := newFixture()
	r := f.addResident("Nguyen Thi A", "family.a@example.com")
	plan := f.addPlan("Standard care", 3000000)
	end := time.Date(2024, 4, 30, 0, 0, 0, 0, loc)
	a := f.activate(r, ptr(int64(5000000)), time.Date(2024, 3, 1, 0, 0, 0, 0, loc), &end, plan)
	f.place(r, "305", 2500000)

	sum, err := f.generator(1).Generate(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1, Success: 1}, sum)

	bills := f.bills.forResident(r.ID)
	require.Len(t, bills, 1)
	b := bills[0]
	assert.True(t, b.Amount.Equal(decimal.NewFromInt(5000000)), "amount %s", b.Amount)
	assert.Equal(t, BillPending, b.Status)
	assert.True(t, b.DueDate.Equal(time.Date(2024, 3, 5, 23, 59, 59, 0, loc)), "due %s", b.DueDate)
	assert.Contains(t, b.Title, "03/2024")
	assert.Equal(t, a.ID, *b.CarePlanAssignmentID)
	assert.Equal(t, *r.FamilyMemberID, *b.FamilyMemberID)

	require.Len(t, b.CarePlanSnapshot, 1)
	snap := b.CarePlanSnapshot[0]
	assert.Equal(t, "Standard care", snap.PlanName)
	assert.Equal(t, "Standard care description", *snap.Description)
	assert.Equal(t, "general", *snap.Category)
	assert.Equal(t, "1:4", *snap.StaffRatio)
	assert.True(t, snap.MonthlyPrice.Equal(decimal.NewFromInt(3000000)))

	require.NotNil(t, b.RoomSnapshot)
	assert.Equal(t, "305", b.RoomSnapshot.RoomNumber)
	assert.Equal(t, 3, b.RoomSnapshot.Floor)

	calls := f.notifier.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, notification.TemplateMonthlyBill, calls[0].Template)
	assert.Equal(t, "family.a@example.com", calls[0].Recipient)
	assert.Equal(t, "03/2024", calls[0].Data["month"])
	assert.Equal(t, "5,000,000", calls[0].Data["amount"])
	assert.Equal(t, "05/03/2024", calls[0].Data["due_date"])
	assert.Equal(t, "Nguyen Thi A", calls[0].Data["resident_name"])
	assert.Equal(t, b.ID.String(), calls[0].Data["bill_id"])
}

func TestGenerator_Idempotent(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture()
	r := f.addResident("Le Van C", "c@example.com")
	f.activate(r, ptr(int64(4000000)), now.AddDate(0, -1, 0), nil, f.addPlan("Basic", 4000000))
	g := f.generator(1)

	_, err := g.Generate(context.Background(), now)
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), now.Add(2*time.Hour))
	require.NoError(t, err)

	assert.Len(t, f.bills.forResident(r.ID), 1)
	assert.Equal(t, int64(0), second.Success)
	assert.Equal(t, int64(1), second.Skipped)
	assert.Len(t, f.notifier.Calls(), 1)

	// The next month gets its own bill.
	_, err = g.Generate(context.Background(), now.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Len(t, f.bills.forResident(r.ID), 2)
}

func TestGenerator_AmountSelection(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		total *int64
		want  int64
	}{
		{"positive total wins over calculation", ptr(int64(5000000)), 5000000},
		{"null total falls back to calculation", nil, 3500000},
		{"zero total falls back to calculation", ptr(int64(0)), 3500000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			r := f.addResident("Pham D", "d@example.com")
			f.activate(r, tt.total, now.AddDate(0, -2, 0), nil, f.addPlan("Care", 1500000))
			f.place(r, "101", 2000000)

			_, err := f.generator(1).Generate(context.Background(), now)
			require.NoError(t, err)
			bills := f.bills.forResident(r.ID)
			require.Len(t, bills, 1)
			assert.True(t, bills[0].Amount.Equal(decimal.NewFromInt(tt.want)), "amount %s", bills[0].Amount)
		})
	}
}

func TestGenerator_ScenarioB_NoActiveAssignment(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture()
	r := f.addResident("Hoang E", "e@example.com")

	sum, err := f.generator(1).Generate(logCtx(&buf), time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Empty(t, f.bills.forResident(r.ID))
	assert.Equal(t, 1, countLevel(&buf, "warn"), buf.String())
	assert.Equal(t, int64(1), sum.Skipped)
	assert.Equal(t, int64(0), sum.Errors)
	assert.Empty(t, f.notifier.Calls())
}

func TestGenerator_BusinessSkips(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture()

	notStarted := f.addResident("A Not started", "a@example.com")
	f.activate(notStarted, ptr(int64(100)), now.AddDate(0, 0, 3), nil, f.addPlan("P1", 100))

	ended := f.addResident("B Ended", "b@example.com")
	endedAt := now.AddDate(0, 0, -1)
	f.activate(ended, ptr(int64(100)), now.AddDate(0, -3, 0), &endedAt, f.addPlan("P2", 100))

	free := f.addResident("C Free", "c@example.com")
	f.activate(free, nil, now.AddDate(0, -1, 0), nil, f.addPlan("P3", 0))

	var buf bytes.Buffer
	sum, err := f.generator(1).Generate(logCtx(&buf), now)
	require.NoError(t, err)

	assert.Equal(t, Summary{Processed: 3, Skipped: 3}, sum)
	assert.Equal(t, 3, countLevel(&buf, "warn"), buf.String())
	assert.Empty(t, f.bills.items)
}

func TestGenerator_OnlyAdmittedResidents(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture()
	plan := f.addPlan("Care", 1000000)

	admitted := f.addResident("Admitted", "x@example.com")
	f.activate(admitted, nil, now.AddDate(0, -1, 0), nil, plan)

	trial := f.addResident("Trial", "y@example.com")
	trial.Status = resident.StatusActive
	f.activate(trial, nil, now.AddDate(0, -1, 0), nil, plan)

	deleted := f.addResident("Deleted", "z@example.com")
	deleted.IsDeleted = true
	f.activate(deleted, nil, now.AddDate(0, -1, 0), nil, plan)

	sum, err := f.generator(1).Generate(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Processed)
	assert.Len(t, f.bills.forResident(admitted.ID), 1)
	assert.Empty(t, f.bills.forResident(trial.ID))
	assert.Empty(t, f.bills.forResident(deleted.ID))
}

func TestGenerator_EmailFailuresNeverFailTheBill(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture()
	plan := f.addPlan("Care", 1000000)

	noEmail := f.addResident("No email", "")
	f.activate(noEmail, nil, now.AddDate(0, -1, 0), nil, plan)

	noFamily := f.addResident("No family", "")
	noFamily.FamilyMemberID = nil
	f.activate(noFamily, nil, now.AddDate(0, -1, 0), nil, plan)

	sum, err := f.generator(1).Generate(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Success)
	assert.Empty(t, f.notifier.Calls())

	f2 := newFixture()
	r := f2.addResident("Queue down", "q@example.com")
	f2.activate(r, nil, now.AddDate(0, -1, 0), nil, f2.addPlan("Care", 1000000))
	f2.notifier.err = notification.ErrQueueClosed

	sum, err = f2.generator(1).Generate(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Success)
	assert.Len(t, f2.bills.forResident(r.ID), 1)
}

func TestGenerator_PerResidentErrorsAreCounted(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture()
	plan := f.addPlan("Care", 1000000)
	good := f.addResident("Good", "g@example.com")
	bad := f.addResident("Bad", "b@example.com")
	f.activate(good, nil, now.AddDate(0, -1, 0), nil, plan)
	f.activate(bad, nil, now.AddDate(0, -1, 0), nil, plan)
	f.bills.failFor[bad.ID] = true

	var buf bytes.Buffer
	sum, err := f.generator(1).Generate(logCtx(&buf), now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 2, Success: 1, Errors: 1}, sum)
	assert.Equal(t, 1, countLevel(&buf, "error"))
	assert.Contains(t, buf.String(), `"success_count":1`)
	assert.Contains(t, buf.String(), `"error_count":1`)
}

func TestGenerator_WorkerPool(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture()
	plan := f.addPlan("Care", 1000000)
	for i := 0; i < 20; i++ {
		r := f.addResident(fmt.Sprintf("Resident %02d", i), fmt.Sprintf("r%d@example.com", i))
		f.activate(r, nil, now.AddDate(0, -1, 0), nil, plan)
	}

	sum, err := f.generator(4).Generate(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 20, Success: 20}, sum)
	assert.Len(t, f.bills.items, 20)
	assert.Len(t, f.notifier.Calls(), 20)
}

func TestGenerator_ListFailureAborts(t *testing.T) {
	f := newFixture()
	g := NewGenerator(failingResidents{}, f.carePlans, f.placements, f.calc, f.bills, f.users, f.notifier, GeneratorConfig{})
	err := g.Run(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list admitted residents")
}

type failingResidents struct{}

func (failingResidents) Search(context.Context, resident.Filter) ([]*resident.Resident, int, error) {
	return nil, 0, errors.New("connection refused")
}

type failingPlacements struct{}

func (failingPlacements) ActivePlacement(context.Context, uuid.UUID) (*facility.Placement, error) {
	return nil, errors.New("bed lookup timed out")
}

func TestGenerator_PlacementFailureBillsWithoutRoom(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, loc)
	f := newFixture()
	r := f.addResident("Pham K", "family.k@example.com")
	plan := f.addPlan("Standard care", 3000000)
	f.activate(r, ptr(int64(5000000)), time.Date(2024, 2, 1, 0, 0, 0, 0, loc), nil, plan)

	g := NewGenerator(f.residents, f.carePlans, failingPlacements{}, NewCostCalculator(f.carePlans, failingPlacements{}),
		f.bills, f.users, f.notifier, GeneratorConfig{DueDay: 5, Workers: 1})
	var buf bytes.Buffer
	sum, err := g.Generate(logCtx(&buf), now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1, Success: 1}, sum)

	bills := f.bills.forResident(r.ID)
	require.Len(t, bills, 1)
	assert.True(t, bills[0].Amount.Equal(decimal.NewFromInt(5000000)), "amount %s", bills[0].Amount)
	assert.Nil(t, bills[0].RoomSnapshot)
	assert.Len(t, bills[0].CarePlanSnapshot, 1)
	assert.Contains(t, buf.String(), "billing without room details")
	assert.Equal(t, 0, countLevel(&buf, "error"))
}

func TestCostCalculator_CalculateForWithoutPlacement(t *testing.T) {
	f := newFixture()
	r := f.addResident("Vo L", "family.l@example.com")
	plan := f.addPlan("Memory care", 4000000)
	a := f.activate(r, nil, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil, plan)
	a.RoomMonthlyCost = decimal.NewFromInt(1500000)

	calc := f.calc.CalculateFor(r.ID, a, []*careplan.CarePlan{plan}, nil)
	assert.Nil(t, calc.RoomDetails)
	assert.True(t, calc.TotalRoomCost.Equal(decimal.NewFromInt(1500000)))
	assert.True(t, calc.TotalAmount.Equal(decimal.NewFromInt(5500000)), "total %s", calc.TotalAmount)
}

func TestPeriodTokenAndDueDate(t *testing.T) {
	loc := mustLoc(t)
	assert.Equal(t, "03/2024", PeriodToken(time.Date(2024, 3, 1, 0, 0, 0, 0, loc)))
	assert.Equal(t, "11/2025", PeriodToken(time.Date(2025, 11, 30, 23, 0, 0, 0, loc)))

	due := DueDate(time.Date(2024, 2, 1, 9, 0, 0, 0, loc), 5)
	assert.Equal(t, time.Date(2024, 2, 5, 23, 59, 59, 0, loc), due)
	assert.Equal(t, loc, due.Location())
}

func TestFormatMoney(t *testing.T) {
	tests := map[string]string{
		"0":          "0",
		"999":        "999",
		"1000":       "1,000",
		"12500000":   "12,500,000",
		"1234.5":     "1,234.50",
		"-2500000":   "-2,500,000",
		"100000.499": "100,000.50",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatMoney(decimal.RequireFromString(in)), in)
	}
}
