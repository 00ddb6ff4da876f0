package staffing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eldercare/eldercare/internal/domain/identity"
	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/internal/platform/auth"
	"github.com/eldercare/eldercare/pkg/apperr"
)

type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

type ResidentLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*resident.Resident, error)
}

type Service struct {
	repo      Repository
	users     UserLookup
	residents ResidentLookup
	now       func() time.Time
}

func NewService(repo Repository, users UserLookup, residents ResidentLookup) *Service {
	return &Service{repo: repo, users: users, residents: residents, now: time.Now}
}

type CreateInput struct {
	StaffID      uuid.UUID  `json:"staff_id" validate:"required"`
	ResidentID   uuid.UUID  `json:"resident_id" validate:"required"`
	AssignedDate *time.Time `json:"assigned_date,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

// Create assigns an active staff user to a resident. A pair can only have
// one active assignment at a time.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Assignment, error) {
	u, err := s.users.GetUser(ctx, in.StaffID)
	if err != nil {
		return nil, err
	}
	if u.Role != auth.RoleStaff || !u.IsActive {
		return nil, apperr.Invalid("user %s is not an active staff member", in.StaffID)
	}
	if _, err := s.residents.Get(ctx, in.ResidentID); err != nil {
		return nil, err
	}

	_, total, err := s.repo.Search(ctx, Filter{StaffID: &in.StaffID, ResidentID: &in.ResidentID, Status: StatusActive, Limit: 1})
	if err != nil {
		return nil, err
	}
	if total > 0 {
		return nil, apperr.Conflict("staff member is already assigned to this resident")
	}

	a := &Assignment{
		StaffID:      in.StaffID,
		ResidentID:   in.ResidentID,
		AssignedDate: s.now(),
		Status:       StatusActive,
		Notes:        in.Notes,
	}
	if in.AssignedDate != nil {
		a.AssignedDate = *in.AssignedDate
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Assignment, int, error) {
	return s.repo.Search(ctx, f)
}

// End closes an active assignment at the current time.
func (s *Service) End(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusActive {
		return nil, apperr.Conflict("staff assignment already ended")
	}
	now := s.now()
	a.Status = StatusEnded
	a.EndDate = &now
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
