package resident

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

type residentRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &residentRepoPG{pool: pool}
}

const residentCols = `id, full_name, date_of_birth, gender, admission_date, family_member_id,
	medical_notes, status, is_deleted, created_at, updated_at`

func (r *residentRepoPG) Create(ctx context.Context, res *Resident) error {
	res.ID = uuid.New()
	now := time.Now().UTC()
	res.CreatedAt, res.UpdatedAt = now, now
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO residents (id, full_name, date_of_birth, gender, admission_date, family_member_id,
			medical_notes, status, is_deleted, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		res.ID, res.FullName, res.DateOfBirth, res.Gender, res.AdmissionDate, res.FamilyMemberID,
		res.MedicalNotes, res.Status, res.IsDeleted, res.CreatedAt, res.UpdatedAt,
	)
	return err
}

func (r *residentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Resident, error) {
	return scanResident(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+residentCols+` FROM residents WHERE id = $1 AND NOT is_deleted`, id))
}

func (r *residentRepoPG) Update(ctx context.Context, res *Resident) error {
	res.UpdatedAt = time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE residents SET full_name=$2, date_of_birth=$3, gender=$4, admission_date=$5,
			family_member_id=$6, medical_notes=$7, status=$8, updated_at=$9
		WHERE id = $1 AND NOT is_deleted`,
		res.ID, res.FullName, res.DateOfBirth, res.Gender, res.AdmissionDate,
		res.FamilyMemberID, res.MedicalNotes, res.Status, res.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("resident")
	}
	return nil
}

func (r *residentRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE residents SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("resident")
	}
	return nil
}

func (r *residentRepoPG) Search(ctx context.Context, f Filter) ([]*Resident, int, error) {
	qb := db.NewSearchQuery("residents", residentCols)
	if !f.IncludeDeleted {
		qb.Eq("is_deleted", false)
	}
	qb.In("status", f.Statuses)
	if f.FamilyMemberID != nil {
		qb.Eq("family_member_id", *f.FamilyMemberID)
	}
	if f.AdmittedBefore != nil {
		qb.Add("admission_date <= $?", *f.AdmittedBefore)
	}
	if f.Name != "" {
		qb.Add("full_name ILIKE $?", "%"+f.Name+"%")
	}
	qb.OrderBy("full_name, id")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count residents: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(f.Limit, f.Offset), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list residents: %w", err)
	}
	defer rows.Close()

	var out []*Resident
	for rows.Next() {
		res, err := scanResident(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, res)
	}
	return out, total, rows.Err()
}

func (r *residentRepoPG) SetStatus(ctx context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE residents SET status = $2, updated_at = $3 WHERE id = ANY($1)`, ids, status, at)
	if err != nil {
		return 0, fmt.Errorf("set resident status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanResident(row pgx.Row) (*Resident, error) {
	var r Resident
	err := row.Scan(&r.ID, &r.FullName, &r.DateOfBirth, &r.Gender, &r.AdmissionDate, &r.FamilyMemberID,
		&r.MedicalNotes, &r.Status, &r.IsDeleted, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("resident")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
