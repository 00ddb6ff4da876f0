package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldercare/eldercare/internal/domain/resident"
)

// AutoCancelAfter is how long a resident may stay in intake ("active")
// before the registration is cancelled.
const AutoCancelAfter = 15 * day

type ResidentAutoCancel struct {
	residents ResidentStore
}

func NewResidentAutoCancel(residents ResidentStore) *ResidentAutoCancel {
	return &ResidentAutoCancel{residents: residents}
}

func (j *ResidentAutoCancel) Run(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-AutoCancelAfter)
	list, _, err := j.residents.Search(ctx, resident.Filter{
		Statuses:       []string{resident.StatusActive},
		AdmittedBefore: &cutoff,
	})
	if err != nil {
		return fmt.Errorf("list stale intake residents: %w", err)
	}
	ids := make([]uuid.UUID, len(list))
	for i, r := range list {
		ids[i] = r.ID
	}
	n, err := j.residents.SetStatus(ctx, ids, resident.StatusCancelled, now)
	if err != nil {
		return fmt.Errorf("cancel stale intake residents: %w", err)
	}
	zerolog.Ctx(ctx).Info().Int64("modified", n).Msg("auto-cancelled residents")
	return nil
}
