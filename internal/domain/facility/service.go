package facility

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/internal/platform/db"
	"github.com/eldercare/eldercare/pkg/apperr"
)

// ResidentLookup verifies the resident behind a bed assignment.
type ResidentLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*resident.Resident, error)
}

type Service struct {
	rooms       RoomRepository
	beds        BedRepository
	assignments BedAssignmentRepository
	residents   ResidentLookup
	tx          db.TxRunner
	now         func() time.Time
}

func NewService(rooms RoomRepository, beds BedRepository, assignments BedAssignmentRepository, residents ResidentLookup, tx db.TxRunner) *Service {
	if tx == nil {
		tx = db.NoTx
	}
	return &Service{rooms: rooms, beds: beds, assignments: assignments, residents: residents, tx: tx, now: time.Now}
}

// -- Rooms --

type RoomInput struct {
	RoomNumber   string          `json:"room_number" validate:"required"`
	RoomType     string          `json:"room_type" validate:"required"`
	Floor        int             `json:"floor" validate:"gte=0"`
	BedCount     int             `json:"bed_count" validate:"required,gt=0"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	Status       string          `json:"status,omitempty"`
}

func (in RoomInput) validate() error {
	verr := apperr.NewValidationError()
	if in.RoomNumber == "" {
		verr.Add("room_number", "is required")
	}
	if !validRoomTypes[in.RoomType] {
		verr.Add("room_type", "must be one of single, double, shared, dormitory, vip")
	}
	if in.BedCount <= 0 {
		verr.Add("bed_count", "must be greater than 0")
	}
	if in.MonthlyPrice.IsNegative() {
		verr.Add("monthly_price", "cannot be negative")
	}
	if in.Status != "" && !validRoomStatuses[in.Status] {
		verr.Add("status", "must be one of available, occupied, maintenance")
	}
	return verr.OrNil()
}

func (s *Service) CreateRoom(ctx context.Context, in RoomInput) (*Room, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	room := &Room{
		RoomNumber:   in.RoomNumber,
		RoomType:     in.RoomType,
		Floor:        in.Floor,
		BedCount:     in.BedCount,
		MonthlyPrice: in.MonthlyPrice,
		Status:       StatusAvailable,
	}
	if in.Status != "" {
		room.Status = in.Status
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *Service) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	return s.rooms.GetByID(ctx, id)
}

func (s *Service) ListRooms(ctx context.Context, f RoomFilter) ([]*Room, int, error) {
	return s.rooms.Search(ctx, f)
}

func (s *Service) UpdateRoom(ctx context.Context, id uuid.UUID, in RoomInput) (*Room, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	room, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	beds, n, err := s.beds.Search(ctx, BedFilter{RoomID: &id})
	if err != nil {
		return nil, err
	}
	if in.BedCount < n {
		return nil, apperr.Conflict("room %s already has %d beds", room.RoomNumber, n)
	}
	room.RoomNumber = in.RoomNumber
	room.RoomType = in.RoomType
	room.Floor = in.Floor
	room.BedCount = in.BedCount
	room.MonthlyPrice = in.MonthlyPrice
	if in.Status != "" {
		room.Status = in.Status
	}
	if room.Status != StatusMaintenance {
		room.Status = roomStatus(beds)
	}
	if err := s.rooms.Update(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *Service) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	return s.tx(ctx, func(ctx context.Context) error {
		beds, n, err := s.beds.Search(ctx, BedFilter{RoomID: &id})
		if err != nil {
			return err
		}
		if n > 0 {
			for _, b := range beds {
				if b.Status == StatusOccupied {
					return apperr.Conflict("room has occupied beds")
				}
			}
			return apperr.Conflict("remove the room's %d beds first", n)
		}
		return s.rooms.Delete(ctx, id)
	})
}

// -- Beds --

type BedInput struct {
	RoomID    uuid.UUID `json:"room_id" validate:"required"`
	BedNumber string    `json:"bed_number" validate:"required"`
	Status    string    `json:"status,omitempty" validate:"omitempty,oneof=available maintenance"`
}

func (s *Service) CreateBed(ctx context.Context, in BedInput) (*Bed, error) {
	if in.BedNumber == "" {
		return nil, apperr.Invalid("bed_number is required")
	}
	if in.Status == StatusOccupied {
		return nil, apperr.Invalid("beds become occupied through a bed assignment")
	}
	var bed *Bed
	err := s.tx(ctx, func(ctx context.Context) error {
		room, err := s.rooms.GetByID(ctx, in.RoomID)
		if err != nil {
			return err
		}
		_, n, err := s.beds.Search(ctx, BedFilter{RoomID: &room.ID})
		if err != nil {
			return err
		}
		if n >= room.BedCount {
			return apperr.Conflict("room %s already has its %d beds", room.RoomNumber, room.BedCount)
		}
		bed = &Bed{RoomID: room.ID, BedNumber: in.BedNumber, Status: StatusAvailable}
		if in.Status != "" {
			bed.Status = in.Status
		}
		if err := s.beds.Create(ctx, bed); err != nil {
			return err
		}
		return s.recomputeRoom(ctx, room.ID)
	})
	if err != nil {
		return nil, err
	}
	return bed, nil
}

func (s *Service) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return s.beds.GetByID(ctx, id)
}

func (s *Service) ListBeds(ctx context.Context, f BedFilter) ([]*Bed, int, error) {
	return s.beds.Search(ctx, f)
}

// UpdateBed renames a bed or toggles maintenance. Occupancy is driven only
// by bed assignments.
func (s *Service) UpdateBed(ctx context.Context, id uuid.UUID, in BedInput) (*Bed, error) {
	var bed *Bed
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		if bed, err = s.beds.GetByID(ctx, id); err != nil {
			return err
		}
		if in.BedNumber != "" {
			bed.BedNumber = in.BedNumber
		}
		if in.Status != "" && in.Status != bed.Status {
			if in.Status == StatusOccupied {
				return apperr.Invalid("beds become occupied through a bed assignment")
			}
			if bed.Status == StatusOccupied {
				return apperr.Conflict("bed %s is occupied", bed.BedNumber)
			}
			bed.Status = in.Status
		}
		if err := s.beds.Update(ctx, bed); err != nil {
			return err
		}
		return s.recomputeRoom(ctx, bed.RoomID)
	})
	if err != nil {
		return nil, err
	}
	return bed, nil
}

func (s *Service) DeleteBed(ctx context.Context, id uuid.UUID) error {
	return s.tx(ctx, func(ctx context.Context) error {
		bed, err := s.beds.GetByID(ctx, id)
		if err != nil {
			return err
		}
		open := true
		if _, n, err := s.assignments.Search(ctx, BedAssignmentFilter{BedID: &id, Open: &open, Limit: 1}); err != nil {
			return err
		} else if n > 0 || bed.Status == StatusOccupied {
			return apperr.Conflict("bed %s is occupied", bed.BedNumber)
		}
		if err := s.beds.Delete(ctx, id); err != nil {
			return err
		}
		return s.recomputeRoom(ctx, bed.RoomID)
	})
}

// -- Bed Assignments --

type AssignInput struct {
	ResidentID   uuid.UUID  `json:"resident_id" validate:"required"`
	BedID        uuid.UUID  `json:"bed_id" validate:"required"`
	AssignedDate *time.Time `json:"assigned_date,omitempty"`
	Status       string     `json:"status,omitempty" validate:"omitempty,oneof=pending accepted active"`
}

// Assign places a resident in a bed. The bed must be free and the resident
// must not already hold another bed.
func (s *Service) Assign(ctx context.Context, in AssignInput) (*BedAssignment, error) {
	status := in.Status
	if status == "" {
		status = AssignmentPending
	}
	switch status {
	case AssignmentPending, AssignmentAccepted, AssignmentActive:
	default:
		return nil, apperr.Invalid("new bed assignments must be pending, accepted or active")
	}

	r, err := s.residents.Get(ctx, in.ResidentID)
	if err != nil {
		return nil, err
	}

	var a *BedAssignment
	err = s.tx(ctx, func(ctx context.Context) error {
		bed, err := s.beds.GetByID(ctx, in.BedID)
		if err != nil {
			return err
		}
		if bed.Status == StatusMaintenance {
			return apperr.Conflict("bed %s is under maintenance", bed.BedNumber)
		}
		open := true
		if _, n, err := s.assignments.Search(ctx, BedAssignmentFilter{BedID: &bed.ID, Open: &open, Limit: 1}); err != nil {
			return err
		} else if n > 0 {
			return apperr.Conflict("bed %s is occupied", bed.BedNumber)
		}
		if _, n, err := s.assignments.Search(ctx, BedAssignmentFilter{ResidentID: &r.ID, Open: &open, Limit: 1}); err != nil {
			return err
		} else if n > 0 {
			return apperr.Conflict("resident %s already has a bed", r.FullName)
		}

		a = &BedAssignment{
			ResidentID:   r.ID,
			BedID:        bed.ID,
			AssignedDate: s.now(),
			Status:       status,
			ResidentName: r.FullName,
		}
		if in.AssignedDate != nil {
			a.AssignedDate = *in.AssignedDate
		}
		if err := s.assignments.Create(ctx, a); err != nil {
			return err
		}
		bed.Status = StatusOccupied
		if err := s.beds.Update(ctx, bed); err != nil {
			return err
		}
		return s.recomputeRoom(ctx, bed.RoomID)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Unassign records the resident leaving the bed and frees it. An active
// assignment keeps its status until the monthly activation job marks it
// done; pending and accepted ones are discharged at once.
func (s *Service) Unassign(ctx context.Context, id uuid.UUID, at *time.Time) (*BedAssignment, error) {
	return s.release(ctx, id, unassignedStatus, at, func(a *BedAssignment) error {
		if !a.Open() {
			return apperr.Conflict("bed assignment is already closed")
		}
		return nil
	})
}

func unassignedStatus(a *BedAssignment) string {
	if a.Status == AssignmentActive {
		return AssignmentActive
	}
	return AssignmentDischarged
}

// Accept moves a pending assignment to accepted. The monthly activation job
// later turns it active.
func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*BedAssignment, error) {
	a, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != AssignmentPending {
		return nil, apperr.Conflict("only pending bed assignments can be accepted, this one is %s", a.Status)
	}
	a.Status = AssignmentAccepted
	if err := s.assignments.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Reject refuses a pending assignment and frees its bed.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*BedAssignment, error) {
	return s.release(ctx, id, func(*BedAssignment) string { return AssignmentRejected }, nil, func(a *BedAssignment) error {
		if a.Status != AssignmentPending {
			return apperr.Conflict("only pending bed assignments can be rejected, this one is %s", a.Status)
		}
		return nil
	})
}

func (s *Service) release(ctx context.Context, id uuid.UUID, next func(*BedAssignment) string, at *time.Time, check func(*BedAssignment) error) (*BedAssignment, error) {
	var a *BedAssignment
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.assignments.GetByID(ctx, id); err != nil {
			return err
		}
		if err := check(a); err != nil {
			return err
		}
		when := s.now()
		if at != nil {
			when = *at
		}
		if when.Before(a.AssignedDate) {
			return apperr.Invalid("unassigned date cannot be before the assigned date")
		}
		wasOpen := a.Open()
		a.UnassignedDate = &when
		a.Status = next(a)
		if err := s.assignments.Update(ctx, a); err != nil {
			return err
		}
		if !wasOpen {
			return nil
		}
		bed, err := s.beds.GetByID(ctx, a.BedID)
		if err != nil {
			return err
		}
		if bed.Status == StatusOccupied {
			bed.Status = StatusAvailable
			if err := s.beds.Update(ctx, bed); err != nil {
				return err
			}
		}
		return s.recomputeRoom(ctx, bed.RoomID)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) GetAssignment(ctx context.Context, id uuid.UUID) (*BedAssignment, error) {
	return s.assignments.GetByID(ctx, id)
}

func (s *Service) ListAssignments(ctx context.Context, f BedAssignmentFilter) ([]*BedAssignment, int, error) {
	return s.assignments.Search(ctx, f)
}

// ActivePlacement returns the resident's active bed assignment with its bed
// and room, or nil when there is none.
func (s *Service) ActivePlacement(ctx context.Context, residentID uuid.UUID) (*Placement, error) {
	open := true
	list, _, err := s.assignments.Search(ctx, BedAssignmentFilter{
		ResidentID: &residentID,
		Statuses:   []string{AssignmentActive},
		Open:       &open,
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	bed, err := s.beds.GetByID(ctx, list[0].BedID)
	if err != nil {
		return nil, err
	}
	room, err := s.rooms.GetByID(ctx, bed.RoomID)
	if err != nil {
		return nil, err
	}
	return &Placement{Assignment: list[0], Bed: bed, Room: room}, nil
}

// recomputeRoom marks a room occupied when all of its beds are, and
// available again otherwise. Rooms under maintenance are left alone.
func (s *Service) recomputeRoom(ctx context.Context, roomID uuid.UUID) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status == StatusMaintenance {
		return nil
	}
	beds, _, err := s.beds.Search(ctx, BedFilter{RoomID: &roomID})
	if err != nil {
		return err
	}
	status := roomStatus(beds)
	if status == room.Status {
		return nil
	}
	room.Status = status
	return s.rooms.Update(ctx, room)
}

func roomStatus(beds []*Bed) string {
	occupied := 0
	for _, b := range beds {
		if b.Status == StatusOccupied {
			occupied++
		}
	}
	if len(beds) > 0 && occupied == len(beds) {
		return StatusOccupied
	}
	return StatusAvailable
}
