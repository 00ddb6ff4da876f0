package facility

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Room and bed statuses.
const (
	StatusAvailable   = "available"
	StatusOccupied    = "occupied"
	StatusMaintenance = "maintenance"
)

// Bed assignment statuses.
const (
	AssignmentPending    = "pending"
	AssignmentAccepted   = "accepted"
	AssignmentActive     = "active"
	AssignmentRejected   = "rejected"
	AssignmentDischarged = "discharged"
	AssignmentExchanged  = "exchanged"
	AssignmentDone       = "done"
)

var validRoomStatuses = map[string]bool{
	StatusAvailable:   true,
	StatusOccupied:    true,
	StatusMaintenance: true,
}

var validRoomTypes = map[string]bool{
	"single":    true,
	"double":    true,
	"shared":    true,
	"dormitory": true,
	"vip":       true,
}

type Room struct {
	ID           uuid.UUID       `json:"id"`
	RoomNumber   string          `json:"room_number"`
	RoomType     string          `json:"room_type"`
	Floor        int             `json:"floor"`
	BedCount     int             `json:"bed_count"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Bed struct {
	ID        uuid.UUID `json:"id"`
	RoomID    uuid.UUID `json:"room_id"`
	BedNumber string    `json:"bed_number"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BedAssignment places a resident in a bed. A null UnassignedDate means the
// resident currently occupies the bed.
type BedAssignment struct {
	ID             uuid.UUID  `json:"id"`
	ResidentID     uuid.UUID  `json:"resident_id"`
	BedID          uuid.UUID  `json:"bed_id"`
	AssignedDate   time.Time  `json:"assigned_date"`
	UnassignedDate *time.Time `json:"unassigned_date,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// ResidentName is filled from the residents table on reads.
	ResidentName string `json:"resident_name,omitempty"`
}

// Open reports whether the assignment still holds its bed.
func (a *BedAssignment) Open() bool { return a.UnassignedDate == nil }

// Placement is a resident's current bed together with its room.
type Placement struct {
	Assignment *BedAssignment `json:"assignment"`
	Bed        *Bed           `json:"bed"`
	Room       *Room          `json:"room"`
}

type RoomFilter struct {
	Status   string
	RoomType string
	Floor    *int
	Limit    int
	Offset   int
}

func (f RoomFilter) Match(r *Room) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.RoomType != "" && r.RoomType != f.RoomType {
		return false
	}
	if f.Floor != nil && r.Floor != *f.Floor {
		return false
	}
	return true
}

type BedFilter struct {
	RoomID *uuid.UUID
	Status string
	Limit  int
	Offset int
}

func (f BedFilter) Match(b *Bed) bool {
	if f.RoomID != nil && b.RoomID != *f.RoomID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}

// BedAssignmentFilter selects bed assignments. Zero values match everything.
type BedAssignmentFilter struct {
	ResidentID *uuid.UUID
	BedID      *uuid.UUID
	Statuses   []string
	// Open restricts to assignments with (true) or without (false) a null
	// unassigned_date.
	Open *bool
	// AssignedOnOrBefore matches assigned_date <= t.
	AssignedOnOrBefore *time.Time
	// UnassignedBefore matches a non-null unassigned_date < t.
	UnassignedBefore *time.Time
	Limit            int
	Offset           int
}

func (f BedAssignmentFilter) Match(a *BedAssignment) bool {
	if f.ResidentID != nil && a.ResidentID != *f.ResidentID {
		return false
	}
	if f.BedID != nil && a.BedID != *f.BedID {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, a.Status) {
		return false
	}
	if f.Open != nil && a.Open() != *f.Open {
		return false
	}
	if f.AssignedOnOrBefore != nil && a.AssignedDate.After(*f.AssignedOnOrBefore) {
		return false
	}
	if f.UnassignedBefore != nil && (a.UnassignedDate == nil || !a.UnassignedDate.Before(*f.UnassignedBefore)) {
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
