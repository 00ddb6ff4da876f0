package resident

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive     = "active"
	StatusAdmitted   = "admitted"
	StatusDischarged = "discharged"
	StatusCancelled  = "cancelled"
	StatusDeceased   = "deceased"
)

var validStatuses = map[string]bool{
	StatusActive:     true,
	StatusAdmitted:   true,
	StatusDischarged: true,
	StatusCancelled:  true,
	StatusDeceased:   true,
}

// Resident is a person living in, or applying to, the home. New residents
// start in the provisional "active" intake status and move to "admitted"
// once registration completes.
type Resident struct {
	ID             uuid.UUID  `json:"id"`
	FullName       string     `json:"full_name"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	Gender         *string    `json:"gender,omitempty"`
	AdmissionDate  time.Time  `json:"admission_date"`
	FamilyMemberID *uuid.UUID `json:"family_member_id,omitempty"`
	MedicalNotes   *string    `json:"medical_notes,omitempty"`
	Status         string     `json:"status"`
	IsDeleted      bool       `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Filter selects residents. Soft-deleted residents are excluded unless
// IncludeDeleted is set.
type Filter struct {
	Statuses       []string
	FamilyMemberID *uuid.UUID
	AdmittedBefore *time.Time // admission_date <= AdmittedBefore
	Name           string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

func (f Filter) Match(r *Resident) bool {
	if !f.IncludeDeleted && r.IsDeleted {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, r.Status) {
		return false
	}
	if f.FamilyMemberID != nil && (r.FamilyMemberID == nil || *r.FamilyMemberID != *f.FamilyMemberID) {
		return false
	}
	if f.AdmittedBefore != nil && r.AdmissionDate.After(*f.AdmittedBefore) {
		return false
	}
	if f.Name != "" && !containsFold(r.FullName, f.Name) {
		return false
	}
	return true
}
