package billing

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

// -- Bill Repository --

type billRepoPG struct {
	pool *pgxpool.Pool
}

func NewBillRepo(pool *pgxpool.Pool) BillRepository {
	return &billRepoPG{pool: pool}
}

const billCols = `id, resident_id, family_member_id, care_plan_assignment_id, staff_id, title, amount, due_date,
	paid_date, status, notes, care_plan_snapshot, room_snapshot, created_at, updated_at`

func (r *billRepoPG) Create(ctx context.Context, b *Bill) error {
	b.ID = uuid.New()
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO bills (id, resident_id, family_member_id, care_plan_assignment_id, staff_id, title, amount,
			due_date, paid_date, status, notes, care_plan_snapshot, room_snapshot, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		b.ID, b.ResidentID, b.FamilyMemberID, b.CarePlanAssignmentID, b.StaffID, b.Title, b.Amount,
		b.DueDate, b.PaidDate, b.Status, b.Notes, b.CarePlanSnapshot, b.RoomSnapshot, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bill: %w", err)
	}
	return nil
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return scanBill(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+billCols+` FROM bills WHERE id = $1`, id))
}

func (r *billRepoPG) Update(ctx context.Context, b *Bill) error {
	b.UpdatedAt = time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE bills SET title=$2, amount=$3, due_date=$4, paid_date=$5, status=$6, notes=$7, staff_id=$8, updated_at=$9
		WHERE id = $1`,
		b.ID, b.Title, b.Amount, b.DueDate, b.PaidDate, b.Status, b.Notes, b.StaffID, b.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("bill")
	}
	return nil
}

func (r *billRepoPG) Search(ctx context.Context, f BillFilter) ([]*Bill, int, error) {
	qb := db.NewSearchQuery("bills", billCols)
	if f.ResidentID != nil {
		qb.Eq("resident_id", *f.ResidentID)
	}
	if f.FamilyMemberID != nil {
		qb.Eq("family_member_id", *f.FamilyMemberID)
	}
	qb.In("status", f.Statuses)
	if f.TitleContains != "" {
		qb.Add("strpos(title, $?) > 0", f.TitleContains)
	}
	if f.DueBefore != nil {
		qb.Add("due_date < $?", *f.DueBefore)
	}
	qb.OrderBy("created_at DESC, id")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bills: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(f.Limit, f.Offset), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()
	var out []*Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func (r *billRepoPG) SetStatus(ctx context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE bills SET status = $2, updated_at = $3 WHERE id = ANY($1)`, ids, status, at)
	if err != nil {
		return 0, fmt.Errorf("set bill status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.ResidentID, &b.FamilyMemberID, &b.CarePlanAssignmentID, &b.StaffID, &b.Title,
		&b.Amount, &b.DueDate, &b.PaidDate, &b.Status, &b.Notes, &b.CarePlanSnapshot, &b.RoomSnapshot,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("bill")
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// -- Finance Repository --

type financeRepoPG struct {
	pool *pgxpool.Pool
}

func NewFinanceRepo(pool *pgxpool.Pool) FinanceRepository {
	return &financeRepoPG{pool: pool}
}

const financeCols = `id, type, category, amount, description, bill_id, transaction_date, created_by, created_at`

func (r *financeRepoPG) Create(ctx context.Context, t *FinanceTransaction) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now().UTC()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO finance_transactions (id, type, category, amount, description, bill_id, transaction_date, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.Type, t.Category, t.Amount, t.Description, t.BillID, t.TransactionDate, t.CreatedBy, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert finance transaction: %w", err)
	}
	return nil
}

func (r *financeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*FinanceTransaction, error) {
	return scanFinance(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+financeCols+` FROM finance_transactions WHERE id = $1`, id))
}

func (r *financeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM finance_transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("finance transaction")
	}
	return nil
}

func financeQuery(f FinanceFilter, cols string) *db.SearchQuery {
	qb := db.NewSearchQuery("finance_transactions", cols)
	if f.Type != "" {
		qb.Eq("type", f.Type)
	}
	if f.Category != "" {
		qb.Eq("category", f.Category)
	}
	if f.From != nil {
		qb.Add("transaction_date >= $?", *f.From)
	}
	if f.To != nil {
		qb.Add("transaction_date <= $?", *f.To)
	}
	return qb
}

func (r *financeRepoPG) Search(ctx context.Context, f FinanceFilter) ([]*FinanceTransaction, int, error) {
	qb := financeQuery(f, financeCols)
	qb.OrderBy("transaction_date DESC, id")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count finance transactions: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(f.Limit, f.Offset), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list finance transactions: %w", err)
	}
	defer rows.Close()
	var out []*FinanceTransaction
	for rows.Next() {
		t, err := scanFinance(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (r *financeRepoPG) Summary(ctx context.Context, from, to *time.Time) (*FinanceSummary, error) {
	qb := financeQuery(FinanceFilter{From: from, To: to}, `
		COALESCE(SUM(amount) FILTER (WHERE type = 'income'), 0),
		COALESCE(SUM(amount) FILTER (WHERE type = 'expense'), 0),
		COUNT(*)`)
	s := &FinanceSummary{From: from, To: to}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.DataSQL(0, 0), qb.DataArgs(0, 0)...).
		Scan(&s.TotalIncome, &s.TotalExpense, &s.Count)
	if err != nil {
		return nil, fmt.Errorf("finance summary: %w", err)
	}
	s.Balance = s.TotalIncome.Sub(s.TotalExpense)
	return s, nil
}

func scanFinance(row pgx.Row) (*FinanceTransaction, error) {
	var t FinanceTransaction
	err := row.Scan(&t.ID, &t.Type, &t.Category, &t.Amount, &t.Description, &t.BillID, &t.TransactionDate,
		&t.CreatedBy, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("finance transaction")
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
