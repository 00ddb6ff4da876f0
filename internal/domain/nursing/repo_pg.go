package nursing

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

type vitalsRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &vitalsRepoPG{pool: pool}
}

const vitalsCols = `id, resident_id, recorded_by, recorded_at, temperature, blood_pressure, heart_rate,
	respiratory_rate, oxygen_level, weight, notes, created_at`

func (r *vitalsRepoPG) Create(ctx context.Context, v *VitalSigns) error {
	v.ID = uuid.New()
	v.CreatedAt = time.Now().UTC()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO vital_signs (`+vitalsCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		v.ID, v.ResidentID, v.RecordedBy, v.RecordedAt, v.Temperature, v.BloodPressure, v.HeartRate,
		v.RespiratoryRate, v.OxygenLevel, v.Weight, v.Notes, v.CreatedAt,
	)
	return err
}

func (r *vitalsRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*VitalSigns, error) {
	return scanVitals(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+vitalsCols+` FROM vital_signs WHERE id = $1`, id))
}

func (r *vitalsRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM vital_signs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("vital signs")
	}
	return nil
}

func (r *vitalsRepoPG) Search(ctx context.Context, f Filter) ([]*VitalSigns, int, error) {
	qb := db.NewSearchQuery("vital_signs", vitalsCols)
	if f.ResidentID != nil {
		qb.Eq("resident_id", *f.ResidentID)
	}
	if f.From != nil {
		qb.Add("recorded_at >= $?", *f.From)
	}
	if f.To != nil {
		qb.Add("recorded_at <= $?", *f.To)
	}
	qb.OrderBy("recorded_at DESC, id")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count vital signs: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(f.Limit, f.Offset), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list vital signs: %w", err)
	}
	defer rows.Close()

	var out []*VitalSigns
	for rows.Next() {
		v, err := scanVitals(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func scanVitals(row pgx.Row) (*VitalSigns, error) {
	var v VitalSigns
	err := row.Scan(&v.ID, &v.ResidentID, &v.RecordedBy, &v.RecordedAt, &v.Temperature, &v.BloodPressure,
		&v.HeartRate, &v.RespiratoryRate, &v.OxygenLevel, &v.Weight, &v.Notes, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("vital signs")
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
