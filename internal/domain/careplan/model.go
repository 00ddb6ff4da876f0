package careplan

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Care plan types. An assignment carries at most one main plan.
const (
	PlanMain          = "main"
	PlanSupplementary = "supplementary"
)

// Care plan assignment statuses.
const (
	StatusConsulting       = "consulting"
	StatusPackagesSelected = "packages_selected"
	StatusRoomAssigned     = "room_assigned"
	StatusPaymentCompleted = "payment_completed"
	StatusActive           = "active"
	StatusCompleted        = "completed"
	StatusCancelled        = "cancelled"
	StatusPaused           = "paused"
	StatusDone             = "done"
)

var validStatuses = map[string]bool{
	StatusConsulting:       true,
	StatusPackagesSelected: true,
	StatusRoomAssigned:     true,
	StatusPaymentCompleted: true,
	StatusActive:           true,
	StatusCompleted:        true,
	StatusCancelled:        true,
	StatusPaused:           true,
	StatusDone:             true,
}

// terminal statuses release the care plans an assignment references.
var terminalStatuses = []string{StatusCompleted, StatusCancelled, StatusDone}

type CarePlan struct {
	ID           uuid.UUID       `json:"id"`
	PlanName     string          `json:"plan_name"`
	Description  *string         `json:"description,omitempty"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	PlanType     string          `json:"plan_type"`
	Category     *string         `json:"category,omitempty"`
	StaffRatio   *string         `json:"staff_ratio,omitempty"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type RegistrationPackage struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Description     *string         `json:"description,omitempty"`
	DurationMonths  int             `json:"duration_months"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// FinalPrice is the package price after its discount, rounded to cents.
func (p *RegistrationPackage) FinalPrice() decimal.Decimal {
	off := p.Price.Mul(p.DiscountPercent).Div(decimal.NewFromInt(100))
	return p.Price.Sub(off).Round(2)
}

// Assignment binds a resident to one or more care plans for a period.
type Assignment struct {
	ID                    uuid.UUID           `json:"id"`
	ResidentID            uuid.UUID           `json:"resident_id"`
	FamilyMemberID        *uuid.UUID          `json:"family_member_id,omitempty"`
	CarePlanIDs           []uuid.UUID         `json:"care_plan_ids"`
	RoomID                *uuid.UUID          `json:"room_id,omitempty"`
	BedID                 *uuid.UUID          `json:"bed_id,omitempty"`
	RegistrationPackageID *uuid.UUID          `json:"registration_package_id,omitempty"`
	TotalMonthlyCost      decimal.NullDecimal `json:"total_monthly_cost"`
	RoomMonthlyCost       decimal.Decimal     `json:"room_monthly_cost"`
	CarePlansMonthlyCost  decimal.Decimal     `json:"care_plans_monthly_cost"`
	StartDate             time.Time           `json:"start_date"`
	EndDate               *time.Time          `json:"end_date,omitempty"`
	Status                string              `json:"status"`
	Notes                 *string             `json:"notes,omitempty"`
	PausedAt              *time.Time          `json:"paused_at,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// Covers reports whether t lies in [start_date, end_date]. A null end date
// is open-ended.
func (a *Assignment) Covers(t time.Time) bool {
	if t.Before(a.StartDate) {
		return false
	}
	return a.EndDate == nil || !t.After(*a.EndDate)
}

// PlanFilter selects care plans. Zero values match everything.
type PlanFilter struct {
	PlanType string
	Category string
	Active   *bool
	Limit    int
	Offset   int
}

func (f PlanFilter) Match(p *CarePlan) bool {
	if f.PlanType != "" && p.PlanType != f.PlanType {
		return false
	}
	if f.Category != "" && (p.Category == nil || *p.Category != f.Category) {
		return false
	}
	if f.Active != nil && p.IsActive != *f.Active {
		return false
	}
	return true
}

type PackageFilter struct {
	Active *bool
	Limit  int
	Offset int
}

func (f PackageFilter) Match(p *RegistrationPackage) bool {
	return f.Active == nil || p.IsActive == *f.Active
}

// AssignmentFilter selects care plan assignments. The date bounds only ever
// match a non-null end_date.
type AssignmentFilter struct {
	ResidentID     *uuid.UUID
	FamilyMemberID *uuid.UUID
	CarePlanID     *uuid.UUID
	Statuses       []string
	ExcludeStatus  []string
	// EndBefore matches end_date < t.
	EndBefore *time.Time
	// EndFrom and EndTo match end_date in [from, to].
	EndFrom *time.Time
	EndTo   *time.Time
	// UpdatedBefore matches updated_at < t.
	UpdatedBefore *time.Time
	// PausedBefore matches a non-null paused_at < t.
	PausedBefore *time.Time
	Limit        int
	Offset       int
}

func (f AssignmentFilter) Match(a *Assignment) bool {
	if f.ResidentID != nil && a.ResidentID != *f.ResidentID {
		return false
	}
	if f.FamilyMemberID != nil && (a.FamilyMemberID == nil || *a.FamilyMemberID != *f.FamilyMemberID) {
		return false
	}
	if f.CarePlanID != nil && !containsID(a.CarePlanIDs, *f.CarePlanID) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, a.Status) {
		return false
	}
	if len(f.ExcludeStatus) > 0 && contains(f.ExcludeStatus, a.Status) {
		return false
	}
	if f.EndBefore != nil && (a.EndDate == nil || !a.EndDate.Before(*f.EndBefore)) {
		return false
	}
	if f.EndFrom != nil && (a.EndDate == nil || a.EndDate.Before(*f.EndFrom)) {
		return false
	}
	if f.EndTo != nil && (a.EndDate == nil || a.EndDate.After(*f.EndTo)) {
		return false
	}
	if f.UpdatedBefore != nil && !a.UpdatedAt.Before(*f.UpdatedBefore) {
		return false
	}
	if f.PausedBefore != nil && (a.PausedAt == nil || !a.PausedAt.Before(*f.PausedBefore)) {
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

func containsID(list []uuid.UUID, id uuid.UUID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
