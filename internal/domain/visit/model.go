package visit

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// MaxDurationMinutes caps a single visit.
const MaxDurationMinutes = 240

const dateLayout = "2006-01-02"

// transitions lists the statuses each status may move to.
var transitions = map[string][]string{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusCompleted, StatusCancelled},
}

func canMove(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Visit is a family member's booked visit to a resident.
type Visit struct {
	ID              uuid.UUID `json:"id"`
	FamilyMemberID  uuid.UUID `json:"family_member_id"`
	ResidentID      uuid.UUID `json:"resident_id"`
	VisitDate       time.Time `json:"visit_date"`
	VisitTime       string    `json:"visit_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Purpose         *string   `json:"purpose,omitempty"`
	Status          string    `json:"status"`
	Notes           *string   `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Filter struct {
	FamilyMemberID  *uuid.UUID
	ResidentID      *uuid.UUID
	Statuses        []string
	ExcludeStatuses []string
	Date            *time.Time
	Limit           int
	Offset          int
}

func (f Filter) Match(v *Visit) bool {
	if f.FamilyMemberID != nil && v.FamilyMemberID != *f.FamilyMemberID {
		return false
	}
	if f.ResidentID != nil && v.ResidentID != *f.ResidentID {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, v.Status) {
		return false
	}
	if contains(f.ExcludeStatuses, v.Status) {
		return false
	}
	if f.Date != nil && v.VisitDate.Format(dateLayout) != f.Date.Format(dateLayout) {
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
