package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldercare/eldercare/internal/domain/facility"
)

// BedActivation runs on the first of the month. Accepted assignments that
// started by the start of the month become active; active assignments
// released during an earlier month become done.
type BedActivation struct {
	beds      BedAssignmentStore
	residents ResidentStore
}

func NewBedActivation(beds BedAssignmentStore, residents ResidentStore) *BedActivation {
	return &BedActivation{beds: beds, residents: residents}
}

func (j *BedActivation) Run(ctx context.Context, now time.Time) error {
	monthStart := startOfMonth(now)

	activated, err := j.move(ctx, facility.BedAssignmentFilter{
		Statuses:           []string{facility.AssignmentAccepted},
		AssignedOnOrBefore: &monthStart,
	}, facility.AssignmentActive, now, "activating bed assignment")
	if err != nil {
		return fmt.Errorf("activate accepted bed assignments: %w", err)
	}

	closed, err := j.move(ctx, facility.BedAssignmentFilter{
		Statuses:         []string{facility.AssignmentActive},
		UnassignedBefore: &monthStart,
	}, facility.AssignmentDone, now, "closing released bed assignment")
	if err != nil {
		return fmt.Errorf("close released bed assignments: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Time("month_start", monthStart).
		Int64("activated", activated).
		Int64("closed", closed).
		Msg("bed assignment activation finished")
	return nil
}

// move logs each selected assignment with its resident, then updates them
// all in one statement.
func (j *BedActivation) move(ctx context.Context, f facility.BedAssignmentFilter, to string, now time.Time, msg string) (int64, error) {
	log := zerolog.Ctx(ctx)
	list, _, err := j.beds.Search(ctx, f)
	if err != nil {
		return 0, err
	}
	if len(list) == 0 {
		return 0, nil
	}
	ids := make([]uuid.UUID, len(list))
	for i, a := range list {
		ids[i] = a.ID
		name := "unknown"
		if r, err := j.residents.GetByID(ctx, a.ResidentID); err == nil {
			name = r.FullName
		}
		log.Info().
			Str("bed_assignment_id", a.ID.String()).
			Str("resident", name).
			Str("to", to).
			Msg(msg)
	}
	return j.beds.SetStatus(ctx, ids, to, now)
}
