package nursing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/internal/platform/auth"
)

// ResidentLookup must apply the caller's visibility rules: a family caller
// gets not-found for residents they are not linked to.
type ResidentLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*resident.Resident, error)
}

type Service struct {
	repo      Repository
	residents ResidentLookup
	now       func() time.Time
}

func NewService(repo Repository, residents ResidentLookup) *Service {
	return &Service{repo: repo, residents: residents, now: time.Now}
}

type RecordInput struct {
	ResidentID      uuid.UUID  `json:"resident_id" validate:"required"`
	RecordedAt      *time.Time `json:"recorded_at,omitempty"`
	Temperature     *float64   `json:"temperature,omitempty"`
	BloodPressure   *string    `json:"blood_pressure,omitempty"`
	HeartRate       *int       `json:"heart_rate,omitempty"`
	RespiratoryRate *int       `json:"respiratory_rate,omitempty"`
	OxygenLevel     *int       `json:"oxygen_level,omitempty"`
	Weight          *float64   `json:"weight,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
}

func (s *Service) Record(ctx context.Context, in RecordInput) (*VitalSigns, error) {
	if _, err := s.residents.Get(ctx, in.ResidentID); err != nil {
		return nil, err
	}
	v := &VitalSigns{
		ResidentID:      in.ResidentID,
		RecordedAt:      s.now(),
		Temperature:     in.Temperature,
		BloodPressure:   in.BloodPressure,
		HeartRate:       in.HeartRate,
		RespiratoryRate: in.RespiratoryRate,
		OxygenLevel:     in.OxygenLevel,
		Weight:          in.Weight,
		Notes:           in.Notes,
	}
	if in.RecordedAt != nil {
		v.RecordedAt = *in.RecordedAt
	}
	if uid, err := uuid.Parse(auth.UserIDFromContext(ctx)); err == nil {
		v.RecordedBy = &uid
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*VitalSigns, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.residents.Get(ctx, v.ResidentID); err != nil {
		return nil, err
	}
	return v, nil
}

// ListByResident returns the resident's measurements, newest first.
func (s *Service) ListByResident(ctx context.Context, residentID uuid.UUID, f Filter) ([]*VitalSigns, int, error) {
	if _, err := s.residents.Get(ctx, residentID); err != nil {
		return nil, 0, err
	}
	f.ResidentID = &residentID
	return s.repo.Search(ctx, f)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
