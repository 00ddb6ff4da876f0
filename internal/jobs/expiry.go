package jobs

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldercare/eldercare/internal/domain/careplan"
)

const (
	// WarnWindow is how far ahead WarnExpiring looks.
	WarnWindow = 7 * day
	// FinalizeAfter is how long an assignment stays paused before it is done.
	FinalizeAfter = 5 * day
)

// PauseExpired moves active assignments whose end date has passed to paused.
type PauseExpired struct {
	store AssignmentStore
}

func NewPauseExpired(store AssignmentStore) *PauseExpired {
	return &PauseExpired{store: store}
}

func (j *PauseExpired) Run(ctx context.Context, now time.Time) error {
	log := zerolog.Ctx(ctx)
	list, _, err := j.store.Search(ctx, careplan.AssignmentFilter{
		Statuses:  []string{careplan.StatusActive},
		EndBefore: &now,
	})
	if err != nil {
		return fmt.Errorf("list expired assignments: %w", err)
	}
	if len(list) == 0 {
		log.Debug().Msg("no expired care plan assignments")
		return nil
	}
	n, err := j.store.SetStatus(ctx, assignmentIDs(list), careplan.StatusPaused, now)
	if err != nil {
		return fmt.Errorf("pause expired assignments: %w", err)
	}
	log.Info().Int("matched", len(list)).Int64("modified", n).Msg("paused expired care plan assignments")
	return nil
}

// WarnExpiring logs every active assignment ending within WarnWindow. It
// changes nothing.
type WarnExpiring struct {
	store AssignmentStore
}

func NewWarnExpiring(store AssignmentStore) *WarnExpiring {
	return &WarnExpiring{store: store}
}

func (j *WarnExpiring) Run(ctx context.Context, now time.Time) error {
	log := zerolog.Ctx(ctx)
	until := now.Add(WarnWindow)
	list, _, err := j.store.Search(ctx, careplan.AssignmentFilter{
		Statuses: []string{careplan.StatusActive},
		EndFrom:  &now,
		EndTo:    &until,
	})
	if err != nil {
		return fmt.Errorf("list expiring assignments: %w", err)
	}
	for _, a := range list {
		log.Warn().
			Str("assignment_id", a.ID.String()).
			Str("resident_id", a.ResidentID.String()).
			Time("end_date", *a.EndDate).
			Int("days_left", DaysUntil(now, *a.EndDate)).
			Msg("care plan assignment expires soon")
	}
	log.Info().Int("count", len(list)).Msg("checked expiring care plan assignments")
	return nil
}

// DaysUntil counts started days from now to end, rounding up.
func DaysUntil(now, end time.Time) int {
	return int(math.Ceil(end.Sub(now).Hours() / 24))
}

// FinalizePaused moves assignments paused for longer than FinalizeAfter to
// done. The pause clock is updated_at unless byPausedAt is set.
type FinalizePaused struct {
	store      AssignmentStore
	byPausedAt bool
}

func NewFinalizePaused(store AssignmentStore, byPausedAt bool) *FinalizePaused {
	return &FinalizePaused{store: store, byPausedAt: byPausedAt}
}

func (j *FinalizePaused) Run(ctx context.Context, now time.Time) error {
	log := zerolog.Ctx(ctx)
	cutoff := now.Add(-FinalizeAfter)
	f := careplan.AssignmentFilter{Statuses: []string{careplan.StatusPaused}}
	if j.byPausedAt {
		f.PausedBefore = &cutoff
	} else {
		f.UpdatedBefore = &cutoff
	}
	list, _, err := j.store.Search(ctx, f)
	if err != nil {
		return fmt.Errorf("list paused assignments: %w", err)
	}
	if len(list) == 0 {
		log.Debug().Msg("no paused care plan assignments to finalize")
		return nil
	}
	n, err := j.store.SetStatus(ctx, assignmentIDs(list), careplan.StatusDone, now)
	if err != nil {
		return fmt.Errorf("finalize paused assignments: %w", err)
	}
	log.Info().Int("matched", len(list)).Int64("modified", n).Msg("finalized paused care plan assignments")
	return nil
}

func assignmentIDs(list []*careplan.Assignment) []uuid.UUID {
	ids := make([]uuid.UUID, len(list))
	for i, a := range list {
		ids[i] = a.ID
	}
	return ids
}
