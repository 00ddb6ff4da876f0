package careplan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eldercare/eldercare/internal/domain/facility"
	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/internal/platform/auth"
	"github.com/eldercare/eldercare/pkg/apperr"
)

type ResidentLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*resident.Resident, error)
}

// RoomLookup prices the room chosen for an assignment.
type RoomLookup interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*facility.Room, error)
}

type Service struct {
	plans       PlanRepository
	packages    PackageRepository
	assignments AssignmentRepository
	residents   ResidentLookup
	rooms       RoomLookup
	now         func() time.Time
}

func NewService(plans PlanRepository, packages PackageRepository, assignments AssignmentRepository,
	residents ResidentLookup, rooms RoomLookup) *Service {
	return &Service{
		plans:       plans,
		packages:    packages,
		assignments: assignments,
		residents:   residents,
		rooms:       rooms,
		now:         time.Now,
	}
}

// -- Care Plans --

type PlanInput struct {
	PlanName     string          `json:"plan_name" validate:"required"`
	Description  *string         `json:"description,omitempty"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	PlanType     string          `json:"plan_type" validate:"required,oneof=main supplementary"`
	Category     *string         `json:"category,omitempty"`
	StaffRatio   *string         `json:"staff_ratio,omitempty"`
	IsActive     *bool           `json:"is_active,omitempty"`
}

func (in PlanInput) validate() error {
	verr := apperr.NewValidationError()
	if in.PlanName == "" {
		verr.Add("plan_name", "is required")
	}
	if in.PlanType != PlanMain && in.PlanType != PlanSupplementary {
		verr.Add("plan_type", "must be main or supplementary")
	}
	if in.MonthlyPrice.IsNegative() {
		verr.Add("monthly_price", "cannot be negative")
	}
	return verr.OrNil()
}

func (s *Service) CreatePlan(ctx context.Context, in PlanInput) (*CarePlan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := &CarePlan{IsActive: true}
	applyPlan(p, in)
	if err := s.plans.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPlan(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	return s.plans.GetByID(ctx, id)
}

func (s *Service) ListPlans(ctx context.Context, f PlanFilter) ([]*CarePlan, int, error) {
	return s.plans.Search(ctx, f)
}

func (s *Service) UpdatePlan(ctx context.Context, id uuid.UUID, in PlanInput) (*CarePlan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := s.plans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyPlan(p, in)
	if err := s.plans.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePlan removes a care plan no running assignment refers to.
func (s *Service) DeletePlan(ctx context.Context, id uuid.UUID) error {
	_, n, err := s.assignments.Search(ctx, AssignmentFilter{CarePlanID: &id, ExcludeStatus: terminalStatuses, Limit: 1})
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflict("care plan is used by %d assignment(s); deactivate it instead", n)
	}
	return s.plans.Delete(ctx, id)
}

// GetPlans loads the given care plans, failing if any is missing.
func (s *Service) GetPlans(ctx context.Context, ids []uuid.UUID) ([]*CarePlan, error) {
	plans, err := s.plans.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(plans) != len(uniqueIDs(ids)) {
		return nil, apperr.NotFound("care plan")
	}
	return plans, nil
}

func applyPlan(p *CarePlan, in PlanInput) {
	p.PlanName = in.PlanName
	p.Description = in.Description
	p.MonthlyPrice = in.MonthlyPrice
	p.PlanType = in.PlanType
	p.Category = in.Category
	p.StaffRatio = in.StaffRatio
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

// -- Registration Packages --

type PackageInput struct {
	Name            string          `json:"name" validate:"required"`
	Description     *string         `json:"description,omitempty"`
	DurationMonths  int             `json:"duration_months" validate:"required,gt=0"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	IsActive        *bool           `json:"is_active,omitempty"`
}

func (in PackageInput) validate() error {
	verr := apperr.NewValidationError()
	if in.Name == "" {
		verr.Add("name", "is required")
	}
	if in.DurationMonths <= 0 {
		verr.Add("duration_months", "must be greater than 0")
	}
	if in.Price.IsNegative() {
		verr.Add("price", "cannot be negative")
	}
	if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		verr.Add("discount_percent", "must be between 0 and 100")
	}
	return verr.OrNil()
}

func (s *Service) CreatePackage(ctx context.Context, in PackageInput) (*RegistrationPackage, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := &RegistrationPackage{IsActive: true}
	applyPackage(p, in)
	if err := s.packages.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPackage(ctx context.Context, id uuid.UUID) (*RegistrationPackage, error) {
	return s.packages.GetByID(ctx, id)
}

func (s *Service) ListPackages(ctx context.Context, f PackageFilter) ([]*RegistrationPackage, int, error) {
	return s.packages.Search(ctx, f)
}

func (s *Service) UpdatePackage(ctx context.Context, id uuid.UUID, in PackageInput) (*RegistrationPackage, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyPackage(p, in)
	if err := s.packages.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeletePackage(ctx context.Context, id uuid.UUID) error {
	return s.packages.Delete(ctx, id)
}

func applyPackage(p *RegistrationPackage, in PackageInput) {
	p.Name = in.Name
	p.Description = in.Description
	p.DurationMonths = in.DurationMonths
	p.Price = in.Price
	p.DiscountPercent = in.DiscountPercent
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

// -- Care Plan Assignments --

type CreateAssignmentInput struct {
	ResidentID            uuid.UUID        `json:"resident_id" validate:"required"`
	CarePlanIDs           []uuid.UUID      `json:"care_plan_ids" validate:"required,min=1"`
	RoomID                *uuid.UUID       `json:"room_id,omitempty"`
	BedID                 *uuid.UUID       `json:"bed_id,omitempty"`
	RegistrationPackageID *uuid.UUID       `json:"registration_package_id,omitempty"`
	TotalMonthlyCost      *decimal.Decimal `json:"total_monthly_cost,omitempty"`
	StartDate             *time.Time       `json:"start_date,omitempty"`
	EndDate               *time.Time       `json:"end_date,omitempty"`
	Status                string           `json:"status,omitempty"`
	Notes                 *string          `json:"notes,omitempty"`
}

type UpdateAssignmentInput struct {
	Status           *string          `json:"status,omitempty"`
	EndDate          *time.Time       `json:"end_date,omitempty"`
	TotalMonthlyCost *decimal.Decimal `json:"total_monthly_cost,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
}

// CreateAssignment prices the selected care plans and room and records the
// assignment. Without an explicit total the total is care plans plus room.
func (s *Service) CreateAssignment(ctx context.Context, in CreateAssignmentInput) (*Assignment, error) {
	if len(in.CarePlanIDs) == 0 {
		return nil, apperr.Invalid("at least one care plan is required")
	}
	status := in.Status
	if status == "" {
		status = StatusConsulting
	}
	if !validStatuses[status] {
		return nil, apperr.Invalid("unknown care plan assignment status %q", status)
	}

	r, err := s.residents.Get(ctx, in.ResidentID)
	if err != nil {
		return nil, err
	}

	plans, err := s.GetPlans(ctx, in.CarePlanIDs)
	if err != nil {
		return nil, err
	}
	careCost, err := priceCarePlans(plans)
	if err != nil {
		return nil, err
	}

	a := &Assignment{
		ResidentID:            r.ID,
		FamilyMemberID:        r.FamilyMemberID,
		CarePlanIDs:           uniqueIDs(in.CarePlanIDs),
		RoomID:                in.RoomID,
		BedID:                 in.BedID,
		RegistrationPackageID: in.RegistrationPackageID,
		CarePlansMonthlyCost:  careCost,
		StartDate:             s.now(),
		EndDate:               in.EndDate,
		Status:                status,
		Notes:                 in.Notes,
	}
	if in.StartDate != nil {
		a.StartDate = *in.StartDate
	}

	if in.RoomID != nil {
		room, err := s.rooms.GetRoom(ctx, *in.RoomID)
		if err != nil {
			return nil, err
		}
		a.RoomMonthlyCost = room.MonthlyPrice
	}

	if in.RegistrationPackageID != nil {
		pkg, err := s.packages.GetByID(ctx, *in.RegistrationPackageID)
		if err != nil {
			return nil, err
		}
		if !pkg.IsActive {
			return nil, apperr.Invalid("registration package %s is not active", pkg.Name)
		}
		if a.EndDate == nil {
			end := a.StartDate.AddDate(0, pkg.DurationMonths, 0)
			a.EndDate = &end
		}
	}
	if a.EndDate != nil && a.EndDate.Before(a.StartDate) {
		return nil, apperr.Invalid("end_date cannot be before start_date")
	}

	if in.TotalMonthlyCost != nil {
		if in.TotalMonthlyCost.IsNegative() {
			return nil, apperr.Invalid("total_monthly_cost cannot be negative")
		}
		a.TotalMonthlyCost = decimal.NewNullDecimal(*in.TotalMonthlyCost)
	} else {
		a.TotalMonthlyCost = decimal.NewNullDecimal(careCost.Add(a.RoomMonthlyCost))
	}

	if status == StatusActive {
		if err := s.ensureSingleActive(ctx, r.ID, uuid.Nil); err != nil {
			return nil, err
		}
	}
	if status == StatusPaused {
		now := s.now()
		a.PausedAt = &now
	}

	if err := s.assignments.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetAssignment hides other families' assignments from family callers.
func (s *Service) GetAssignment(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	a, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if auth.IsFamilyOnly(ctx) && (a.FamilyMemberID == nil || a.FamilyMemberID.String() != auth.UserIDFromContext(ctx)) {
		return nil, apperr.NotFound("care plan assignment")
	}
	return a, nil
}

func (s *Service) ListAssignments(ctx context.Context, f AssignmentFilter) ([]*Assignment, int, error) {
	if auth.IsFamilyOnly(ctx) {
		uid, err := uuid.Parse(auth.UserIDFromContext(ctx))
		if err != nil {
			return nil, 0, nil
		}
		f.FamilyMemberID = &uid
	}
	return s.assignments.Search(ctx, f)
}

func (s *Service) UpdateAssignment(ctx context.Context, id uuid.UUID, in UpdateAssignmentInput) (*Assignment, error) {
	a, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.EndDate != nil {
		if in.EndDate.Before(a.StartDate) {
			return nil, apperr.Invalid("end_date cannot be before start_date")
		}
		a.EndDate = in.EndDate
	}
	if in.TotalMonthlyCost != nil {
		if in.TotalMonthlyCost.IsNegative() {
			return nil, apperr.Invalid("total_monthly_cost cannot be negative")
		}
		a.TotalMonthlyCost = decimal.NewNullDecimal(*in.TotalMonthlyCost)
	}
	if in.Notes != nil {
		a.Notes = in.Notes
	}
	if in.Status != nil && *in.Status != a.Status {
		if !validStatuses[*in.Status] {
			return nil, apperr.Invalid("unknown care plan assignment status %q", *in.Status)
		}
		if *in.Status == StatusActive {
			if err := s.ensureSingleActive(ctx, a.ResidentID, a.ID); err != nil {
				return nil, err
			}
		}
		if *in.Status == StatusPaused {
			now := s.now()
			a.PausedAt = &now
		}
		a.Status = *in.Status
	}
	if err := s.assignments.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ActiveAssignment returns the resident's active assignment, or nil when
// there is none.
func (s *Service) ActiveAssignment(ctx context.Context, residentID uuid.UUID) (*Assignment, error) {
	list, _, err := s.assignments.Search(ctx, AssignmentFilter{
		ResidentID: &residentID,
		Statuses:   []string{StatusActive},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Service) ensureSingleActive(ctx context.Context, residentID, self uuid.UUID) error {
	list, _, err := s.assignments.Search(ctx, AssignmentFilter{ResidentID: &residentID, Statuses: []string{StatusActive}})
	if err != nil {
		return err
	}
	for _, other := range list {
		if other.ID != self {
			return apperr.Conflict("resident already has active care plan assignment %s", other.ID)
		}
	}
	return nil
}

// priceCarePlans sums the monthly prices of active plans and rejects more
// than one main plan.
func priceCarePlans(plans []*CarePlan) (decimal.Decimal, error) {
	total := decimal.Zero
	mains := 0
	for _, p := range plans {
		if !p.IsActive {
			return decimal.Zero, apperr.Invalid("care plan %s is not active", p.PlanName)
		}
		if p.PlanType == PlanMain {
			mains++
		}
		total = total.Add(p.MonthlyPrice)
	}
	if mains > 1 {
		return decimal.Zero, apperr.Invalid("an assignment can include only one main care plan")
	}
	return total, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
