package resident

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eldercare/eldercare/internal/domain/identity"
	"github.com/eldercare/eldercare/internal/platform/auth"
	"github.com/eldercare/eldercare/pkg/apperr"
)

// UserLookup resolves the family member linked to a resident.
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

type Service struct {
	repo  Repository
	users UserLookup
	now   func() time.Time
}

func NewService(repo Repository, users UserLookup) *Service {
	return &Service{repo: repo, users: users, now: time.Now}
}

type CreateInput struct {
	FullName       string     `json:"full_name" validate:"required"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	Gender         *string    `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	AdmissionDate  *time.Time `json:"admission_date,omitempty"`
	FamilyMemberID *uuid.UUID `json:"family_member_id,omitempty"`
	MedicalNotes   *string    `json:"medical_notes,omitempty"`
	Status         string     `json:"status,omitempty"`
}

type UpdateInput struct {
	FullName       *string    `json:"full_name,omitempty"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	Gender         *string    `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	AdmissionDate  *time.Time `json:"admission_date,omitempty"`
	FamilyMemberID *uuid.UUID `json:"family_member_id,omitempty"`
	MedicalNotes   *string    `json:"medical_notes,omitempty"`
	Status         *string    `json:"status,omitempty"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Resident, error) {
	if in.FullName == "" {
		return nil, apperr.Invalid("full_name is required")
	}
	status := in.Status
	if status == "" {
		status = StatusActive
	}
	if !validStatuses[status] {
		return nil, apperr.Invalid("unknown resident status %q", status)
	}
	if in.DateOfBirth != nil && in.DateOfBirth.After(s.now()) {
		return nil, apperr.Invalid("date_of_birth cannot be in the future")
	}
	if err := s.checkFamilyMember(ctx, in.FamilyMemberID); err != nil {
		return nil, err
	}

	r := &Resident{
		FullName:       in.FullName,
		DateOfBirth:    in.DateOfBirth,
		Gender:         in.Gender,
		AdmissionDate:  s.now(),
		FamilyMemberID: in.FamilyMemberID,
		MedicalNotes:   in.MedicalNotes,
		Status:         status,
	}
	if in.AdmissionDate != nil {
		r.AdmissionDate = *in.AdmissionDate
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the resident. Family callers only see residents they are
// linked to; anything else is reported as not found.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Resident, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if auth.IsFamilyOnly(ctx) && !linkedTo(r, auth.UserIDFromContext(ctx)) {
		return nil, apperr.NotFound("resident")
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Resident, int, error) {
	if auth.IsFamilyOnly(ctx) {
		uid, err := uuid.Parse(auth.UserIDFromContext(ctx))
		if err != nil {
			return nil, 0, nil
		}
		f.FamilyMemberID = &uid
	}
	f.IncludeDeleted = false
	return s.repo.Search(ctx, f)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Resident, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.FullName != nil {
		if *in.FullName == "" {
			return nil, apperr.Invalid("full_name cannot be empty")
		}
		r.FullName = *in.FullName
	}
	if in.DateOfBirth != nil {
		r.DateOfBirth = in.DateOfBirth
	}
	if in.Gender != nil {
		r.Gender = in.Gender
	}
	if in.AdmissionDate != nil {
		r.AdmissionDate = *in.AdmissionDate
	}
	if in.FamilyMemberID != nil {
		if err := s.checkFamilyMember(ctx, in.FamilyMemberID); err != nil {
			return nil, err
		}
		r.FamilyMemberID = in.FamilyMemberID
	}
	if in.MedicalNotes != nil {
		r.MedicalNotes = in.MedicalNotes
	}
	if in.Status != nil {
		if !validStatuses[*in.Status] {
			return nil, apperr.Invalid("unknown resident status %q", *in.Status)
		}
		r.Status = *in.Status
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.SoftDelete(ctx, id)
}

func (s *Service) checkFamilyMember(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	u, err := s.users.GetUser(ctx, *id)
	if err != nil {
		return apperr.Invalid("family member %s does not exist", id)
	}
	if u.Role != auth.RoleFamily {
		return apperr.Invalid("user %s is not a family member", id)
	}
	return nil
}

func linkedTo(r *Resident, userID string) bool {
	return r.FamilyMemberID != nil && r.FamilyMemberID.String() == userID
}
