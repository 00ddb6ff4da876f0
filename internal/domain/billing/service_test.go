package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eldercare/eldercare/internal/platform/auth"
	"github.com/eldercare/eldercare/internal/platform/notification"
	"github.com/eldercare/eldercare/pkg/apperr"
)

func staffCtx() context.Context {
	return auth.WithUser(context.Background(), uuid.NewString(), "", []string{auth.RoleStaff})
}

func TestService_CreateBill(t *testing.T) {
	f := newFixture()
	r := f.addResident("Do Van F", "f@example.com")
	ctx := staffCtx()

	b, err := f.svc.CreateBill(ctx, CreateBillInput{
		ResidentID: r.ID, Title: "Physiotherapy extra sessions", Amount: decimal.NewFromInt(750000),
		DueDate: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != BillPending {
		t.Errorf("expected pending, got %s", b.Status)
	}
	if b.StaffID == nil || b.StaffID.String() != auth.UserIDFromContext(ctx) {
		t.Error("expected staff id from caller")
	}
	if b.FamilyMemberID == nil || *b.FamilyMemberID != *r.FamilyMemberID {
		t.Error("expected family member copied from resident")
	}

	if _, err := f.svc.CreateBill(ctx, CreateBillInput{ResidentID: r.ID, Title: "x", Amount: decimal.Zero}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("expected invalid for zero amount, got %v", err)
	}
	if _, err := f.svc.CreateBill(ctx, CreateBillInput{ResidentID: uuid.New(), Title: "x", Amount: decimal.NewFromInt(1)}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for unknown resident, got %v", err)
	}
}

func TestService_PayBill(t *testing.T) {
	f := newFixture()
	r := f.addResident("Vo Thi G", "g@example.com")
	paidAt := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return paidAt }
	ctx := staffCtx()

	b, _ := f.svc.CreateBill(ctx, CreateBillInput{ResidentID: r.ID, Title: "Monthly care bill 03/2024", Amount: decimal.NewFromInt(5000000), DueDate: paidAt})
	paid, err := f.svc.PayBill(ctx, b.ID)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if paid.Status != BillPaid || paid.PaidDate == nil || !paid.PaidDate.Equal(paidAt) {
		t.Errorf("unexpected paid bill %+v", paid)
	}

	txs, _, _ := f.finance.Search(ctx, FinanceFilter{})
	if len(txs) != 1 {
		t.Fatalf("expected one income transaction, got %d", len(txs))
	}
	if txs[0].Type != TxIncome || txs[0].BillID == nil || *txs[0].BillID != b.ID || !txs[0].Amount.Equal(b.Amount) {
		t.Errorf("unexpected transaction %+v", txs[0])
	}

	calls := f.notifier.Calls()
	if len(calls) != 1 || calls[0].Template != notification.TemplateBillPaid || calls[0].Recipient != "g@example.com" {
		t.Errorf("expected one receipt email, got %+v", calls)
	}

	if _, err := f.svc.PayBill(ctx, b.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict paying twice, got %v", err)
	}
	if _, err := f.svc.CancelBill(ctx, b.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict cancelling a paid bill, got %v", err)
	}
	title := "renamed"
	if _, err := f.svc.UpdateBill(ctx, b.ID, UpdateBillInput{Title: &title}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict editing a paid bill, got %v", err)
	}
}

func TestService_CancelOverdueBill(t *testing.T) {
	f := newFixture()
	r := f.addResident("Bui H", "h@example.com")
	b, _ := f.svc.CreateBill(staffCtx(), CreateBillInput{ResidentID: r.ID, Title: "t", Amount: decimal.NewFromInt(1), DueDate: time.Now()})
	if _, err := f.bills.SetStatus(context.Background(), []uuid.UUID{b.ID}, BillOverdue, time.Now()); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.CancelBill(context.Background(), b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != BillCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
}

func TestService_FamilySeesOnlyOwnBills(t *testing.T) {
	f := newFixture()
	mine := f.addResident("Mine", "mine@example.com")
	theirs := f.addResident("Theirs", "theirs@example.com")
	own, _ := f.svc.CreateBill(staffCtx(), CreateBillInput{ResidentID: mine.ID, Title: "a", Amount: decimal.NewFromInt(1), DueDate: time.Now()})
	other, _ := f.svc.CreateBill(staffCtx(), CreateBillInput{ResidentID: theirs.ID, Title: "b", Amount: decimal.NewFromInt(1), DueDate: time.Now()})

	ctx := auth.WithUser(context.Background(), mine.FamilyMemberID.String(), "", []string{auth.RoleFamily})
	if _, err := f.svc.GetBill(ctx, own.ID); err != nil {
		t.Errorf("own bill: %v", err)
	}
	if _, err := f.svc.GetBill(ctx, other.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for another family's bill, got %v", err)
	}
	list, total, err := f.svc.ListBills(ctx, BillFilter{})
	if err != nil || total != 1 || list[0].ID != own.ID {
		t.Errorf("expected only own bill, got %d (%v)", total, err)
	}
}

func TestService_FinanceSummary(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	day := func(d int) *time.Time { t := time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC); return &t }

	inputs := []TransactionInput{
		{Type: TxIncome, Category: "bill_payment", Amount: decimal.NewFromInt(5000000), TransactionDate: day(2)},
		{Type: TxIncome, Category: "donation", Amount: decimal.NewFromInt(1000000), TransactionDate: day(10)},
		{Type: TxExpense, Category: "supplies", Amount: decimal.NewFromInt(1500000), TransactionDate: day(11)},
		{Type: TxExpense, Category: "salary", Amount: decimal.NewFromInt(3000000), TransactionDate: day(28)},
	}
	for _, in := range inputs {
		if _, err := f.svc.CreateTransaction(ctx, in); err != nil {
			t.Fatalf("create transaction: %v", err)
		}
	}

	s, err := f.svc.Summary(ctx, day(1), day(15))
	if err != nil {
		t.Fatal(err)
	}
	if !s.TotalIncome.Equal(decimal.NewFromInt(6000000)) || !s.TotalExpense.Equal(decimal.NewFromInt(1500000)) {
		t.Errorf("unexpected totals %+v", s)
	}
	if !s.Balance.Equal(decimal.NewFromInt(4500000)) || s.Count != 3 {
		t.Errorf("unexpected balance %s / count %d", s.Balance, s.Count)
	}

	if _, err := f.svc.Summary(ctx, day(15), day(1)); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("expected invalid range, got %v", err)
	}

	_, err = f.svc.CreateTransaction(ctx, TransactionInput{Type: "gift", Amount: decimal.NewFromInt(-1)})
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) != 3 {
		t.Errorf("expected three field errors, got %v", err)
	}
}

func TestCostCalculator(t *testing.T) {
	f := newFixture()
	r := f.addResident("Calc", "calc@example.com")
	ctx := context.Background()

	empty, err := f.svc.CostCalculation(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !empty.TotalAmount.IsZero() || len(empty.ServiceDetails) != 0 || empty.RoomDetails != nil {
		t.Errorf("expected empty calculation, got %+v", empty)
	}

	core := f.addPlan("Main", 3000000)
	extra := f.addPlan("Extra", 800000)
	a := f.activate(r, nil, time.Now().AddDate(0, -1, 0), nil, core, extra)
	a.RoomMonthlyCost = decimal.NewFromInt(1000000)

	calc, err := f.calc.Calculate(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !calc.TotalServiceCost.Equal(decimal.NewFromInt(3800000)) || len(calc.ServiceDetails) != 2 {
		t.Errorf("unexpected service cost %+v", calc)
	}
	if !calc.TotalRoomCost.Equal(decimal.NewFromInt(1000000)) || calc.RoomDetails != nil {
		t.Errorf("without a bed the assignment room cost applies, got %+v", calc)
	}

	f.place(r, "402", 2200000)
	calc, _ = f.calc.Calculate(ctx, r.ID)
	if !calc.TotalRoomCost.Equal(decimal.NewFromInt(2200000)) || calc.RoomDetails == nil || calc.RoomDetails.RoomNumber != "402" {
		t.Errorf("expected the active room price, got %+v", calc)
	}
	if !calc.TotalAmount.Equal(decimal.NewFromInt(6000000)) {
		t.Errorf("total = %s", calc.TotalAmount)
	}

	if _, err := f.svc.CostCalculation(ctx, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
