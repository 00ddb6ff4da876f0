package resident

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Resident) error
	GetByID(ctx context.Context, id uuid.UUID) (*Resident, error)
	Update(ctx context.Context, r *Resident) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f Filter) ([]*Resident, int, error)
	// SetStatus moves every listed resident to status in one statement and
	// returns the number of rows changed.
	SetStatus(ctx context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error)
}
