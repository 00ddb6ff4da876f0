package facility

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RoomRepository interface {
	Create(ctx context.Context, r *Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*Room, error)
	Update(ctx context.Context, r *Room) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f RoomFilter) ([]*Room, int, error)
}

type BedRepository interface {
	Create(ctx context.Context, b *Bed) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bed, error)
	Update(ctx context.Context, b *Bed) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f BedFilter) ([]*Bed, int, error)
}

type BedAssignmentRepository interface {
	Create(ctx context.Context, a *BedAssignment) error
	GetByID(ctx context.Context, id uuid.UUID) (*BedAssignment, error)
	Update(ctx context.Context, a *BedAssignment) error
	Search(ctx context.Context, f BedAssignmentFilter) ([]*BedAssignment, int, error)
	SetStatus(ctx context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error)
}
