// Package jobs holds the periodic status-transition batches. Each job is a
// pure function of (ctx, now) over injected stores: it selects the matching
// rows, then moves them in one bulk update.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eldercare/eldercare/internal/domain/billing"
	"github.com/eldercare/eldercare/internal/domain/careplan"
	"github.com/eldercare/eldercare/internal/domain/facility"
	"github.com/eldercare/eldercare/internal/domain/resident"
)

// AssignmentStore is the slice of the care plan assignment repository the
// expiry jobs use.
type AssignmentStore interface {
	Search(ctx context.Context, f careplan.AssignmentFilter) ([]*careplan.Assignment, int, error)
	SetStatus(ctx context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error)
}

type BedAssignmentStore interface {
	Search(ctx context.Context, f facility.BedAssignmentFilter) ([]*facility.BedAssignment, int, error)
	SetStatus(ctx context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error)
}

type ResidentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*resident.Resident, error)
	Search(ctx context.Context, f resident.Filter) ([]*resident.Resident, int, error)
	SetStatus(ctx context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error)
}

type BillStore interface {
	Search(ctx context.Context, f billing.BillFilter) ([]*billing.Bill, int, error)
	SetStatus(ctx context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error)
}

const day = 24 * time.Hour

// startOfMonth is midnight on the first day of now's month, in now's zone.
func startOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}
