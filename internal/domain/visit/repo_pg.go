package visit

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

type visitRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &visitRepoPG{pool: pool}
}

const visitCols = `id, family_member_id, resident_id, visit_date, visit_time, duration_minutes, purpose,
	status, notes, created_at, updated_at`

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO visits (`+visitCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		v.ID, v.FamilyMemberID, v.ResidentID, v.VisitDate, v.VisitTime, v.DurationMinutes, v.Purpose,
		v.Status, v.Notes, v.CreatedAt, v.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("a visit is already booked for that day")
	}
	return err
}

func (r *visitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+visitCols+` FROM visits WHERE id = $1`, id))
}

func (r *visitRepoPG) Update(ctx context.Context, v *Visit) error {
	v.UpdatedAt = time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE visits SET visit_date=$2, visit_time=$3, duration_minutes=$4, purpose=$5, status=$6,
			notes=$7, updated_at=$8
		WHERE id = $1`,
		v.ID, v.VisitDate, v.VisitTime, v.DurationMinutes, v.Purpose, v.Status, v.Notes, v.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("visit")
	}
	return nil
}

func (r *visitRepoPG) Search(ctx context.Context, f Filter) ([]*Visit, int, error) {
	qb := db.NewSearchQuery("visits", visitCols)
	if f.FamilyMemberID != nil {
		qb.Eq("family_member_id", *f.FamilyMemberID)
	}
	if f.ResidentID != nil {
		qb.Eq("resident_id", *f.ResidentID)
	}
	qb.In("status", f.Statuses)
	if len(f.ExcludeStatuses) > 0 {
		qb.Add("status <> ALL($?)", f.ExcludeStatuses)
	}
	if f.Date != nil {
		qb.Add("visit_date = $?::date", f.Date.Format(dateLayout))
	}
	qb.OrderBy("visit_date DESC, visit_time DESC, id")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count visits: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(f.Limit, f.Offset), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	var out []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.FamilyMemberID, &v.ResidentID, &v.VisitDate, &v.VisitTime, &v.DurationMinutes,
		&v.Purpose, &v.Status, &v.Notes, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("visit")
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
