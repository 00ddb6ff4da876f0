package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type BillRepository interface {
	Create(ctx context.Context, b *Bill) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	Update(ctx context.Context, b *Bill) error
	Search(ctx context.Context, f BillFilter) ([]*Bill, int, error)
	SetStatus(ctx context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error)
}

type FinanceRepository interface {
	Create(ctx context.Context, t *FinanceTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*FinanceTransaction, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f FinanceFilter) ([]*FinanceTransaction, int, error)
	Summary(ctx context.Context, from, to *time.Time) (*FinanceSummary, error)
}
