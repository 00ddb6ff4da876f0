package facility

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

// -- Room Repository --

type roomRepoPG struct {
	pool *pgxpool.Pool
}

func NewRoomRepo(pool *pgxpool.Pool) RoomRepository {
	return &roomRepoPG{pool: pool}
}

const roomCols = `id, room_number, room_type, floor, bed_count, monthly_price, status, created_at, updated_at`

func (r *roomRepoPG) Create(ctx context.Context, room *Room) error {
	room.ID = uuid.New()
	now := time.Now().UTC()
	room.CreatedAt, room.UpdatedAt = now, now
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO rooms (id, room_number, room_type, floor, bed_count, monthly_price, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		room.ID, room.RoomNumber, room.RoomType, room.Floor, room.BedCount, room.MonthlyPrice, room.Status,
		room.CreatedAt, room.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("room number %s already exists", room.RoomNumber)
	}
	return err
}

func (r *roomRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	return scanRoom(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+roomCols+` FROM rooms WHERE id = $1`, id))
}

func (r *roomRepoPG) Update(ctx context.Context, room *Room) error {
	room.UpdatedAt = time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE rooms SET room_number=$2, room_type=$3, floor=$4, bed_count=$5, monthly_price=$6, status=$7, updated_at=$8
		WHERE id = $1`,
		room.ID, room.RoomNumber, room.RoomType, room.Floor, room.BedCount, room.MonthlyPrice, room.Status, room.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("room number %s already exists", room.RoomNumber)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("room")
	}
	return nil
}

func (r *roomRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("room")
	}
	return nil
}

func (r *roomRepoPG) Search(ctx context.Context, f RoomFilter) ([]*Room, int, error) {
	qb := db.NewSearchQuery("rooms", roomCols)
	if f.Status != "" {
		qb.Eq("status", f.Status)
	}
	if f.RoomType != "" {
		qb.Eq("room_type", f.RoomType)
	}
	if f.Floor != nil {
		qb.Eq("floor", *f.Floor)
	}
	qb.OrderBy("floor, room_number")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rooms: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(f.Limit, f.Offset), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []*Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, room)
	}
	return out, total, rows.Err()
}

func scanRoom(row pgx.Row) (*Room, error) {
	var r Room
	err := row.Scan(&r.ID, &r.RoomNumber, &r.RoomType, &r.Floor, &r.BedCount, &r.MonthlyPrice, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("room")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// -- Bed Repository --

type bedRepoPG struct {
	pool *pgxpool.Pool
}

func NewBedRepo(pool *pgxpool.Pool) BedRepository {
	return &bedRepoPG{pool: pool}
}

const bedCols = `id, room_id, bed_number, status, created_at, updated_at`

func (r *bedRepoPG) Create(ctx context.Context, b *Bed) error {
	b.ID = uuid.New()
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO beds (id, room_id, bed_number, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.RoomID, b.BedNumber, b.Status, b.CreatedAt, b.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("bed %s already exists in this room", b.BedNumber)
	}
	return err
}

func (r *bedRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return scanBed(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+bedCols+` FROM beds WHERE id = $1`, id))
}

func (r *bedRepoPG) Update(ctx context.Context, b *Bed) error {
	b.UpdatedAt = time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE beds SET bed_number=$2, status=$3, updated_at=$4 WHERE id = $1`,
		b.ID, b.BedNumber, b.Status, b.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("bed %s already exists in this room", b.BedNumber)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("bed")
	}
	return nil
}

func (r *bedRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM beds WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("bed")
	}
	return nil
}

func (r *bedRepoPG) Search(ctx context.Context, f BedFilter) ([]*Bed, int, error) {
	qb := db.NewSearchQuery("beds", bedCols)
	if f.RoomID != nil {
		qb.Eq("room_id", *f.RoomID)
	}
	if f.Status != "" {
		qb.Eq("status", f.Status)
	}
	qb.OrderBy("room_id, bed_number")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count beds: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(f.Limit, f.Offset), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list beds: %w", err)
	}
	defer rows.Close()

	var out []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.RoomID, &b.BedNumber, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("bed")
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// -- Bed Assignment Repository --

type bedAssignmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewBedAssignmentRepo(pool *pgxpool.Pool) BedAssignmentRepository {
	return &bedAssignmentRepoPG{pool: pool}
}

const bedAssignmentCols = `ba.id, ba.resident_id, ba.bed_id, ba.assigned_date, ba.unassigned_date, ba.status,
	ba.created_at, ba.updated_at, COALESCE(r.full_name, '')`

const bedAssignmentFrom = `bed_assignments ba LEFT JOIN residents r ON r.id = ba.resident_id`

func (r *bedAssignmentRepoPG) Create(ctx context.Context, a *BedAssignment) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO bed_assignments (id, resident_id, bed_id, assigned_date, unassigned_date, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.ResidentID, a.BedID, a.AssignedDate, a.UnassignedDate, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (r *bedAssignmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*BedAssignment, error) {
	return scanBedAssignment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+bedAssignmentCols+` FROM `+bedAssignmentFrom+` WHERE ba.id = $1`, id))
}

func (r *bedAssignmentRepoPG) Update(ctx context.Context, a *BedAssignment) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE bed_assignments SET assigned_date=$2, unassigned_date=$3, status=$4, updated_at=$5
		WHERE id = $1`,
		a.ID, a.AssignedDate, a.UnassignedDate, a.Status, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("bed assignment")
	}
	return nil
}

func (r *bedAssignmentRepoPG) Search(ctx context.Context, f BedAssignmentFilter) ([]*BedAssignment, int, error) {
	qb := db.NewSearchQuery(bedAssignmentFrom, bedAssignmentCols)
	if f.ResidentID != nil {
		qb.Eq("ba.resident_id", *f.ResidentID)
	}
	if f.BedID != nil {
		qb.Eq("ba.bed_id", *f.BedID)
	}
	qb.In("ba.status", f.Statuses)
	if f.Open != nil {
		if *f.Open {
			qb.Add("ba.unassigned_date IS NULL")
		} else {
			qb.Add("ba.unassigned_date IS NOT NULL")
		}
	}
	if f.AssignedOnOrBefore != nil {
		qb.Add("ba.assigned_date <= $?", *f.AssignedOnOrBefore)
	}
	if f.UnassignedBefore != nil {
		qb.Add("ba.unassigned_date IS NOT NULL AND ba.unassigned_date < $?", *f.UnassignedBefore)
	}
	qb.OrderBy("ba.assigned_date DESC, ba.id")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bed assignments: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(f.Limit, f.Offset), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bed assignments: %w", err)
	}
	defer rows.Close()

	var out []*BedAssignment
	for rows.Next() {
		a, err := scanBedAssignment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *bedAssignmentRepoPG) SetStatus(ctx context.Context, ids []uuid.UUID, status string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE bed_assignments SET status = $2, updated_at = $3 WHERE id = ANY($1)`, ids, status, at)
	if err != nil {
		return 0, fmt.Errorf("set bed assignment status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanBedAssignment(row pgx.Row) (*BedAssignment, error) {
	var a BedAssignment
	err := row.Scan(&a.ID, &a.ResidentID, &a.BedID, &a.AssignedDate, &a.UnassignedDate, &a.Status,
		&a.CreatedAt, &a.UpdatedAt, &a.ResidentName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("bed assignment")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
