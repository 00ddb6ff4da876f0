package careplan

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

// -- Care Plan Repository --

type planRepoPG struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) PlanRepository {
	return &planRepoPG{pool: pool}
}

const planCols = `id, plan_name, description, monthly_price, plan_type, category, staff_ratio, is_active, created_at, updated_at`

func (r *planRepoPG) Create(ctx context.Context, p *CarePlan) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO care_plans (id, plan_name, description, monthly_price, plan_type, category, staff_ratio, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.PlanName, p.Description, p.MonthlyPrice, p.PlanType, p.Category, p.StaffRatio, p.IsActive,
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *planRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	return scanPlan(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+planCols+` FROM care_plans WHERE id = $1`, id))
}

func (r *planRepoPG) GetMany(ctx context.Context, ids []uuid.UUID) ([]*CarePlan, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+planCols+` FROM care_plans WHERE id = ANY($1) ORDER BY plan_type, plan_name`, ids)
	if err != nil {
		return nil, fmt.Errorf("get care plans: %w", err)
	}
	defer rows.Close()
	var out []*CarePlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *planRepoPG) Update(ctx context.Context, p *CarePlan) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE care_plans SET plan_name=$2, description=$3, monthly_price=$4, plan_type=$5, category=$6,
			staff_ratio=$7, is_active=$8, updated_at=$9
		WHERE id = $1`,
		p.ID, p.PlanName, p.Description, p.MonthlyPrice, p.PlanType, p.Category, p.StaffRatio, p.IsActive, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("care plan")
	}
	return nil
}

func (r *planRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM care_plans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("care plan")
	}
	return nil
}

func (r *planRepoPG) Search(ctx context.Context, f PlanFilter) ([]*CarePlan, int, error) {
	qb := db.NewSearchQuery("care_plans", planCols)
	if f.PlanType != "" {
		qb.Eq("plan_type", f.PlanType)
	}
	if f.Category != "" {
		qb.Eq("category", f.Category)
	}
	if f.Active != nil {
		qb.Eq("is_active", *f.Active)
	}
	qb.OrderBy("plan_type, plan_name")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count care plans: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(f.Limit, f.Offset), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list care plans: %w", err)
	}
	defer rows.Close()
	var out []*CarePlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func scanPlan(row pgx.Row) (*CarePlan, error) {
	var p CarePlan
	err := row.Scan(&p.ID, &p.PlanName, &p.Description, &p.MonthlyPrice, &p.PlanType, &p.Category, &p.StaffRatio,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("care plan")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// -- Registration Package Repository --

type packageRepoPG struct {
	pool *pgxpool.Pool
}

func NewPackageRepo(pool *pgxpool.Pool) PackageRepository {
	return &packageRepoPG{pool: pool}
}

const packageCols = `id, name, description, duration_months, price, discount_percent, is_active, created_at, updated_at`

func (r *packageRepoPG) Create(ctx context.Context, p *RegistrationPackage) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO registration_packages (id, name, description, duration_months, price, discount_percent, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Name, p.Description, p.DurationMonths, p.Price, p.DiscountPercent, p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *packageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*RegistrationPackage, error) {
	return scanPackage(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+packageCols+` FROM registration_packages WHERE id = $1`, id))
}

func (r *packageRepoPG) Update(ctx context.Context, p *RegistrationPackage) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE registration_packages SET name=$2, description=$3, duration_months=$4, price=$5,
			discount_percent=$6, is_active=$7, updated_at=$8
		WHERE id = $1`,
		p.ID, p.Name, p.Description, p.DurationMonths, p.Price, p.DiscountPercent, p.IsActive, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("registration package")
	}
	return nil
}

func (r *packageRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM registration_packages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("registration package")
	}
	return nil
}

func (r *packageRepoPG) Search(ctx context.Context, f PackageFilter) ([]*RegistrationPackage, int, error) {
	qb := db.NewSearchQuery("registration_packages", packageCols)
	if f.Active != nil {
		qb.Eq("is_active", *f.Active)
	}
	qb.OrderBy("duration_months, name")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count registration packages: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(f.Limit, f.Offset), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list registration packages: %w", err)
	}
	defer rows.Close()
	var out []*RegistrationPackage
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func scanPackage(row pgx.Row) (*RegistrationPackage, error) {
	var p RegistrationPackage
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.DurationMonths, &p.Price, &p.DiscountPercent, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("registration package")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// -- Care Plan Assignment Repository --

type assignmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAssignmentRepo(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepoPG{pool: pool}
}

const assignmentCols = `id, resident_id, family_member_id, care_plan_ids, room_id, bed_id, registration_package_id,
	total_monthly_cost, room_monthly_cost, care_plans_monthly_cost, start_date, end_date, status, notes, paused_at,
	created_at, updated_at`

func (r *assignmentRepoPG) Create(ctx context.Context, a *Assignment) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO care_plan_assignments (id, resident_id, family_member_id, care_plan_ids, room_id, bed_id,
			registration_package_id, total_monthly_cost, room_monthly_cost, care_plans_monthly_cost, start_date,
			end_date, status, notes, paused_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		a.ID, a.ResidentID, a.FamilyMemberID, a.CarePlanIDs, a.RoomID, a.BedID, a.RegistrationPackageID,
		a.TotalMonthlyCost, a.RoomMonthlyCost, a.CarePlansMonthlyCost, a.StartDate, a.EndDate, a.Status, a.Notes,
		a.PausedAt, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (r *assignmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	return scanAssignment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+assignmentCols+` FROM care_plan_assignments WHERE id = $1`, id))
}

func (r *assignmentRepoPG) Update(ctx context.Context, a *Assignment) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE care_plan_assignments SET care_plan_ids=$2, room_id=$3, bed_id=$4, registration_package_id=$5,
			total_monthly_cost=$6, room_monthly_cost=$7, care_plans_monthly_cost=$8, start_date=$9, end_date=$10,
			status=$11, notes=$12, paused_at=$13, updated_at=$14
		WHERE id = $1`,
		a.ID, a.CarePlanIDs, a.RoomID, a.BedID, a.RegistrationPackageID, a.TotalMonthlyCost, a.RoomMonthlyCost,
		a.CarePlansMonthlyCost, a.StartDate, a.EndDate, a.Status, a.Notes, a.PausedAt, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("care plan assignment")
	}
	return nil
}

func (r *assignmentRepoPG) Search(ctx context.Context, f AssignmentFilter) ([]*Assignment, int, error) {
	qb := db.NewSearchQuery("care_plan_assignments", assignmentCols)
	if f.ResidentID != nil {
		qb.Eq("resident_id", *f.ResidentID)
	}
	if f.FamilyMemberID != nil {
		qb.Eq("family_member_id", *f.FamilyMemberID)
	}
	if f.CarePlanID != nil {
		qb.Add("$? = ANY(care_plan_ids)", *f.CarePlanID)
	}
	qb.In("status", f.Statuses)
	if len(f.ExcludeStatus) > 0 {
		qb.Add("status <> ALL($?)", f.ExcludeStatus)
	}
	if f.EndBefore != nil {
		qb.Add("end_date IS NOT NULL AND end_date < $?", *f.EndBefore)
	}
	if f.EndFrom != nil {
		qb.Add("end_date >= $?", *f.EndFrom)
	}
	if f.EndTo != nil {
		qb.Add("end_date <= $?", *f.EndTo)
	}
	if f.UpdatedBefore != nil {
		qb.Add("updated_at < $?", *f.UpdatedBefore)
	}
	if f.PausedBefore != nil {
		qb.Add("paused_at < $?", *f.PausedBefore)
	}
	qb.OrderBy("start_date DESC, id")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count care plan assignments: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(f.Limit, f.Offset), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list care plan assignments: %w", err)
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

func (r *assignmentRepoPG) SetStatus(ctx context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE care_plan_assignments
		SET status = $2, updated_at = $3,
			paused_at = CASE WHEN $2 = 'paused' THEN $3 ELSE paused_at END
		WHERE id = ANY($1)`, ids, status, at)
	if err != nil {
		return 0, fmt.Errorf("set care plan assignment status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.ResidentID, &a.FamilyMemberID, &a.CarePlanIDs, &a.RoomID, &a.BedID,
		&a.RegistrationPackageID, &a.TotalMonthlyCost, &a.RoomMonthlyCost, &a.CarePlansMonthlyCost, &a.StartDate,
		&a.EndDate, &a.Status, &a.Notes, &a.PausedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("care plan assignment")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
