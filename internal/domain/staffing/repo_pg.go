package staffing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldercare/eldercare/internal/platform/db"
	"github.com/eldercare/eldercare/pkg/apperr"
)

type assignmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &assignmentRepoPG{pool: pool}
}

const assignmentCols = `id, staff_id, resident_id, assigned_date, end_date, status, notes, created_at, updated_at`

func (r *assignmentRepoPG) Create(ctx context.Context, a *Assignment) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO staff_assignments (`+assignmentCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.StaffID, a.ResidentID, a.AssignedDate, a.EndDate, a.Status, a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("staff member is already assigned to this resident")
	}
	return err
}

func (r *assignmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	return scanAssignment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+assignmentCols+` FROM staff_assignments WHERE id = $1`, id))
}

func (r *assignmentRepoPG) Update(ctx context.Context, a *Assignment) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE staff_assignments SET end_date=$2, status=$3, notes=$4, updated_at=$5 WHERE id = $1`,
		a.ID, a.EndDate, a.Status, a.Notes, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("staff assignment")
	}
	return nil
}

func (r *assignmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM staff_assignments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("staff assignment")
	}
	return nil
}

func (r *assignmentRepoPG) Search(ctx context.Context, f Filter) ([]*Assignment, int, error) {
	qb := db.NewSearchQuery("staff_assignments", assignmentCols)
	if f.StaffID != nil {
		qb.Eq("staff_id", *f.StaffID)
	}
	if f.ResidentID != nil {
		qb.Eq("resident_id", *f.ResidentID)
	}
	if f.Status != "" {
		qb.Eq("status", f.Status)
	}
	qb.OrderBy("assigned_date DESC, id")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count staff assignments: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(f.Limit, f.Offset), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list staff assignments: %w", err)
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.StaffID, &a.ResidentID, &a.AssignedDate, &a.EndDate, &a.Status, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("staff assignment")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
