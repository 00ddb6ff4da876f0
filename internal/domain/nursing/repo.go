package nursing

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, v *VitalSigns) error
	GetByID(ctx context.Context, id uuid.UUID) (*VitalSigns, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f Filter) ([]*VitalSigns, int, error)
}
