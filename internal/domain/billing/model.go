package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bill statuses. Generated bills always start pending.
const (
	BillPending   = "pending"
	BillPaid      = "paid"
	BillOverdue   = "overdue"
	BillCancelled = "cancelled"
)

// Finance transaction types.
const (
	TxIncome  = "income"
	TxExpense = "expense"
)

const categoryBillPayment = "bill_payment"

// CarePlanSnapshot freezes a care plan as it was billed.
type CarePlanSnapshot struct {
	CarePlanID   uuid.UUID       `json:"care_plan_id"`
	PlanName     string          `json:"plan_name"`
	Description  *string         `json:"description,omitempty"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	PlanType     string          `json:"plan_type"`
	Category     *string         `json:"category,omitempty"`
	StaffRatio   *string         `json:"staff_ratio,omitempty"`
}

// RoomSnapshot freezes the room a resident occupied when billed.
type RoomSnapshot struct {
	RoomID       uuid.UUID       `json:"room_id"`
	RoomNumber   string          `json:"room_number"`
	RoomType     string          `json:"room_type"`
	Floor        int             `json:"floor"`
	BedNumber    string          `json:"bed_number,omitempty"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
}

type Bill struct {
	ID                   uuid.UUID          `json:"id"`
	ResidentID           uuid.UUID          `json:"resident_id"`
	FamilyMemberID       *uuid.UUID         `json:"family_member_id,omitempty"`
	CarePlanAssignmentID *uuid.UUID         `json:"care_plan_assignment_id,omitempty"`
	StaffID              *uuid.UUID         `json:"staff_id,omitempty"`
	Title                string             `json:"title"`
	Amount               decimal.Decimal    `json:"amount"`
	DueDate              time.Time          `json:"due_date"`
	PaidDate             *time.Time         `json:"paid_date,omitempty"`
	Status               string             `json:"status"`
	Notes                *string            `json:"notes,omitempty"`
	CarePlanSnapshot     []CarePlanSnapshot `json:"care_plan_snapshot,omitempty"`
	RoomSnapshot         *RoomSnapshot      `json:"room_snapshot,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// Open reports whether the bill still awaits payment.
func (b *Bill) Open() bool {
	return b.Status == BillPending || b.Status == BillOverdue
}

type FinanceTransaction struct {
	ID              uuid.UUID       `json:"id"`
	Type            string          `json:"type"`
	Category        string          `json:"category"`
	Amount          decimal.Decimal `json:"amount"`
	Description     *string         `json:"description,omitempty"`
	BillID          *uuid.UUID      `json:"bill_id,omitempty"`
	TransactionDate time.Time       `json:"transaction_date"`
	CreatedBy       *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type FinanceSummary struct {
	From         *time.Time      `json:"from,omitempty"`
	To           *time.Time      `json:"to,omitempty"`
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	Balance      decimal.Decimal `json:"balance"`
	Count        int             `json:"count"`
}

// BillFilter selects bills. Zero values match everything.
type BillFilter struct {
	ResidentID     *uuid.UUID
	FamilyMemberID *uuid.UUID
	Statuses       []string
	// TitleContains matches a substring of the title, used for the MM/YYYY
	// period token.
	TitleContains string
	// DueBefore matches due_date < t.
	DueBefore *time.Time
	Limit     int
	Offset    int
}

func (f BillFilter) Match(b *Bill) bool {
	if f.ResidentID != nil && b.ResidentID != *f.ResidentID {
		return false
	}
	if f.FamilyMemberID != nil && (b.FamilyMemberID == nil || *b.FamilyMemberID != *f.FamilyMemberID) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, b.Status) {
		return false
	}
	if f.TitleContains != "" && !strings.Contains(b.Title, f.TitleContains) {
		return false
	}
	if f.DueBefore != nil && !b.DueDate.Before(*f.DueBefore) {
		return false
	}
	return true
}

// FinanceFilter selects finance transactions; From/To bound transaction_date
// inclusively.
type FinanceFilter struct {
	Type     string
	Category string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

func (f FinanceFilter) Match(t *FinanceTransaction) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.From != nil && t.TransactionDate.Before(*f.From) {
		return false
	}
	if f.To != nil && t.TransactionDate.After(*f.To) {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
