package careplan

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PlanRepository interface {
	Create(ctx context.Context, p *CarePlan) error
	GetByID(ctx context.Context, id uuid.UUID) (*CarePlan, error)
	GetMany(ctx context.Context, ids []uuid.UUID) ([]*CarePlan, error)
	Update(ctx context.Context, p *CarePlan) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f PlanFilter) ([]*CarePlan, int, error)
}

type PackageRepository interface {
	Create(ctx context.Context, p *RegistrationPackage) error
	GetByID(ctx context.Context, id uuid.UUID) (*RegistrationPackage, error)
	Update(ctx context.Context, p *RegistrationPackage) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f PackageFilter) ([]*RegistrationPackage, int, error)
}

type AssignmentRepository interface {
	Create(ctx context.Context, a *Assignment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error)
	Update(ctx context.Context, a *Assignment) error
	Search(ctx context.Context, f AssignmentFilter) ([]*Assignment, int, error)
	// SetStatus bulk-updates status and updated_at. Moving to paused also
	// stamps paused_at.
	SetStatus(ctx context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error)
}
