package visit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldercare/eldercare/internal/domain/identity"
	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/internal/platform/auth"
	"github.com/eldercare/eldercare/internal/platform/notification"
	"github.com/eldercare/eldercare/internal/platform/websocket"
	"github.com/eldercare/eldercare/pkg/apperr"
)

// ResidentLookup must hide residents a family caller is not linked to.
type ResidentLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*resident.Resident, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, templateID, recipient string, data map[string]string) (*notification.Message, error)
}

// Publisher pushes live events. websocket.Hub satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event websocket.Event) error
}

type Service struct {
	repo      Repository
	residents ResidentLookup
	users     UserLookup
	notifier  Notifier
	publisher Publisher
	now       func() time.Time
}

func NewService(repo Repository, residents ResidentLookup, users UserLookup, notifier Notifier) *Service {
	return &Service{repo: repo, residents: residents, users: users, notifier: notifier, now: time.Now}
}

// SetPublisher enables live events: new bookings go to the staff topic and
// status changes to the booking family member.
func (s *Service) SetPublisher(p Publisher) { s.publisher = p }

func (s *Service) publish(ctx context.Context, typ, topic string, v *Visit) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, websocket.NewEvent(typ, topic, "visit", v.ID.String(), v)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("visit_id", v.ID.String()).Msg("publish visit event")
	}
}

type BookInput struct {
	ResidentID      uuid.UUID `json:"resident_id" validate:"required"`
	VisitDate       string    `json:"visit_date" validate:"required"`
	VisitTime       string    `json:"visit_time" validate:"required"`
	DurationMinutes int       `json:"duration_minutes,omitempty" validate:"omitempty,min=15,max=240"`
	Purpose         *string   `json:"purpose,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
}

// Book schedules a visit. Family callers book for themselves; staff book on
// behalf of the resident's linked family member.
func (s *Service) Book(ctx context.Context, in BookInput) (*Visit, error) {
	now := s.now()
	date, err := time.ParseInLocation(dateLayout, in.VisitDate, now.Location())
	if err != nil {
		return nil, apperr.Invalid("visit_date must be YYYY-MM-DD")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if date.Before(today) {
		return nil, apperr.Invalid("visit_date cannot be in the past")
	}
	if _, err := time.Parse("15:04", in.VisitTime); err != nil {
		return nil, apperr.Invalid("visit_time must be HH:MM")
	}
	duration := in.DurationMinutes
	if duration == 0 {
		duration = 60
	}
	if duration < 0 || duration > MaxDurationMinutes {
		return nil, apperr.Invalid("duration_minutes must not exceed %d", MaxDurationMinutes)
	}

	r, err := s.residents.Get(ctx, in.ResidentID)
	if err != nil {
		return nil, err
	}
	var familyID uuid.UUID
	if auth.IsFamilyOnly(ctx) {
		if familyID, err = uuid.Parse(auth.UserIDFromContext(ctx)); err != nil {
			return nil, apperr.Forbidden("unknown caller")
		}
	} else {
		if r.FamilyMemberID == nil {
			return nil, apperr.Invalid("resident has no linked family member")
		}
		familyID = *r.FamilyMemberID
	}

	_, total, err := s.repo.Search(ctx, Filter{
		FamilyMemberID:  &familyID,
		ResidentID:      &r.ID,
		Date:            &date,
		ExcludeStatuses: []string{StatusCancelled, StatusRejected},
		Limit:           1,
	})
	if err != nil {
		return nil, err
	}
	if total > 0 {
		return nil, apperr.Conflict("a visit is already booked for that day")
	}

	v := &Visit{
		FamilyMemberID:  familyID,
		ResidentID:      r.ID,
		VisitDate:       date,
		VisitTime:       in.VisitTime,
		DurationMinutes: duration,
		Purpose:         in.Purpose,
		Status:          StatusPending,
		Notes:           in.Notes,
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}
	s.publish(ctx, "visit.booked", websocket.StaffTopic, v)
	return v, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if auth.IsFamilyOnly(ctx) && v.FamilyMemberID.String() != auth.UserIDFromContext(ctx) {
		return nil, apperr.NotFound("visit")
	}
	return v, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Visit, int, error) {
	if auth.IsFamilyOnly(ctx) {
		uid, err := uuid.Parse(auth.UserIDFromContext(ctx))
		if err != nil {
			return nil, 0, nil
		}
		f.FamilyMemberID = &uid
	}
	return s.repo.Search(ctx, f)
}

func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.transition(ctx, id, StatusApproved, true)
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.transition(ctx, id, StatusRejected, true)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.transition(ctx, id, StatusCompleted, false)
}

// Cancel is open to the booking family member as well as staff.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.transition(ctx, id, StatusCancelled, false)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to string, notify bool) (*Visit, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canMove(v.Status, to) {
		return nil, apperr.Conflict("visit cannot move from %s to %s", v.Status, to)
	}
	v.Status = to
	if err := s.repo.Update(ctx, v); err != nil {
		return nil, err
	}
	if notify {
		s.notifyFamily(ctx, v)
	}
	s.publish(ctx, "visit.updated", websocket.UserTopic(v.FamilyMemberID.String()), v)
	return v, nil
}

func (s *Service) notifyFamily(ctx context.Context, v *Visit) {
	if s.notifier == nil {
		return
	}
	log := zerolog.Ctx(ctx).With().Str("visit_id", v.ID.String()).Logger()
	u, err := s.users.GetUser(ctx, v.FamilyMemberID)
	if err != nil || u.Email == "" {
		log.Warn().Msg("no family email for visit status change")
		return
	}
	residentName := ""
	if r, err := s.residents.Get(ctx, v.ResidentID); err == nil {
		residentName = r.FullName
	}
	_, err = s.notifier.Notify(ctx, notification.TemplateVisitStatus, u.Email, map[string]string{
		"family_name":   u.FullName,
		"resident_name": residentName,
		"visit_date":    v.VisitDate.Format("02/01/2006"),
		"visit_time":    v.VisitTime,
		"status":        v.Status,
	})
	if err != nil {
		log.Error().Err(err).Msg("queue visit status email")
	}
}
