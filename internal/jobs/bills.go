package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldercare/eldercare/internal/domain/billing"
)

// MarkOverdueBills moves pending bills past their due date to overdue.
type MarkOverdueBills struct {
	bills BillStore
}

func NewMarkOverdueBills(bills BillStore) *MarkOverdueBills {
	return &MarkOverdueBills{bills: bills}
}

func (j *MarkOverdueBills) Run(ctx context.Context, now time.Time) error {
	list, _, err := j.bills.Search(ctx, billing.BillFilter{
		Statuses:  []string{billing.BillPending},
		DueBefore: &now,
	})
	if err != nil {
		return fmt.Errorf("list overdue bills: %w", err)
	}
	if len(list) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(list))
	for i, b := range list {
		ids[i] = b.ID
	}
	n, err := j.bills.SetStatus(ctx, ids, billing.BillOverdue, now)
	if err != nil {
		return fmt.Errorf("mark bills overdue: %w", err)
	}
	zerolog.Ctx(ctx).Info().Int64("modified", n).Msg("marked bills overdue")
	return nil
}
