package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eldercare/eldercare/internal/domain/careplan"
	"github.com/eldercare/eldercare/internal/domain/facility"
)

// AssignmentSource finds a resident's active care plan assignment.
type AssignmentSource interface {
	ActiveAssignment(ctx context.Context, residentID uuid.UUID) (*careplan.Assignment, error)
	GetPlans(ctx context.Context, ids []uuid.UUID) ([]*careplan.CarePlan, error)
}

// PlacementSource finds a resident's active bed with its room.
type PlacementSource interface {
	ActivePlacement(ctx context.Context, residentID uuid.UUID) (*facility.Placement, error)
}

type ServiceDetail struct {
	CarePlanID   uuid.UUID       `json:"care_plan_id"`
	PlanName     string          `json:"plan_name"`
	PlanType     string          `json:"plan_type"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
}

type RoomDetail struct {
	RoomID       uuid.UUID       `json:"room_id"`
	RoomNumber   string          `json:"room_number"`
	RoomType     string          `json:"room_type"`
	Floor        int             `json:"floor"`
	BedID        uuid.UUID       `json:"bed_id"`
	BedNumber    string          `json:"bed_number"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
}

// Calculation is the monthly cost breakdown for one resident.
type Calculation struct {
	ResidentID       uuid.UUID       `json:"resident_id"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	TotalServiceCost decimal.Decimal `json:"total_service_cost"`
	TotalRoomCost    decimal.Decimal `json:"total_room_cost"`
	ServiceDetails   []ServiceDetail `json:"service_details"`
	RoomDetails      *RoomDetail     `json:"room_details,omitempty"`
}

type CostCalculator struct {
	assignments AssignmentSource
	placements  PlacementSource
}

func NewCostCalculator(assignments AssignmentSource, placements PlacementSource) *CostCalculator {
	return &CostCalculator{assignments: assignments, placements: placements}
}

// Calculate prices the care plans of the resident's active assignment and
// the room of their active bed.
func (c *CostCalculator) Calculate(ctx context.Context, residentID uuid.UUID) (*Calculation, error) {
	a, err := c.assignments.ActiveAssignment(ctx, residentID)
	if err != nil {
		return nil, err
	}
	var plans []*careplan.CarePlan
	if a != nil {
		if plans, err = c.assignments.GetPlans(ctx, a.CarePlanIDs); err != nil {
			return nil, err
		}
	}
	placement, err := c.placements.ActivePlacement(ctx, residentID)
	if err != nil {
		return nil, err
	}
	return c.CalculateFor(residentID, a, plans, placement), nil
}

// CalculateFor prices already loaded records. Current plan prices are used;
// the room falls back to the price recorded on the assignment when there is
// no placement. a and placement may be nil.
func (c *CostCalculator) CalculateFor(residentID uuid.UUID, a *careplan.Assignment, plans []*careplan.CarePlan, placement *facility.Placement) *Calculation {
	calc := &Calculation{
		ResidentID:       residentID,
		TotalServiceCost: decimal.Zero,
		TotalRoomCost:    decimal.Zero,
		ServiceDetails:   []ServiceDetail{},
	}
	for _, p := range plans {
		calc.ServiceDetails = append(calc.ServiceDetails, ServiceDetail{
			CarePlanID:   p.ID,
			PlanName:     p.PlanName,
			PlanType:     p.PlanType,
			MonthlyPrice: p.MonthlyPrice,
		})
		calc.TotalServiceCost = calc.TotalServiceCost.Add(p.MonthlyPrice)
	}

	switch {
	case placement != nil:
		calc.RoomDetails = &RoomDetail{
			RoomID:       placement.Room.ID,
			RoomNumber:   placement.Room.RoomNumber,
			RoomType:     placement.Room.RoomType,
			Floor:        placement.Room.Floor,
			BedID:        placement.Bed.ID,
			BedNumber:    placement.Bed.BedNumber,
			MonthlyPrice: placement.Room.MonthlyPrice,
		}
		calc.TotalRoomCost = placement.Room.MonthlyPrice
	case a != nil:
		calc.TotalRoomCost = a.RoomMonthlyCost
	}

	calc.TotalAmount = calc.TotalServiceCost.Add(calc.TotalRoomCost)
	return calc
}
