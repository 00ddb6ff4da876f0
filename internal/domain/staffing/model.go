package staffing

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Assignment puts a staff member in charge of a resident.
type Assignment struct {
	ID           uuid.UUID  `json:"id"`
	StaffID      uuid.UUID  `json:"staff_id"`
	ResidentID   uuid.UUID  `json:"resident_id"`
	AssignedDate time.Time  `json:"assigned_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Status       string     `json:"status"`
	Notes        *string    `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Filter struct {
	StaffID    *uuid.UUID
	ResidentID *uuid.UUID
	Status     string
	Limit      int
	Offset     int
}

func (f Filter) Match(a *Assignment) bool {
	if f.StaffID != nil && a.StaffID != *f.StaffID {
		return false
	}
	if f.ResidentID != nil && a.ResidentID != *f.ResidentID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}
