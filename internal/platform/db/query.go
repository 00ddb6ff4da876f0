package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SearchQuery accumulates WHERE fragments and their positional arguments for
// a list query with a matching COUNT(*).
type SearchQuery struct {
	from    string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewSearchQuery starts a query over from (a table or a join) selecting cols.
func NewSearchQuery(from, cols string) *SearchQuery {
	return &SearchQuery{from: from, cols: cols, idx: 1}
}

// Idx returns the next available parameter index.
func (q *SearchQuery) Idx() int { return q.idx }

// Add appends a WHERE fragment (without leading "AND"). Each "$?" in clause
// is replaced by the next positional parameter, in order.
func (q *SearchQuery) Add(clause string, args ...interface{}) {
	for range args {
		clause = strings.Replace(clause, "$?", fmt.Sprintf("$%d", q.idx), 1)
		q.idx++
	}
	q.where += " AND " + clause
	q.args = append(q.args, args...)
}

// Eq adds column = value.
func (q *SearchQuery) Eq(column string, value interface{}) {
	q.Add(column+" = $?", value)
}

// In adds column = ANY(values). An empty slice adds nothing.
func (q *SearchQuery) In(column string, values []string) {
	if len(values) == 0 {
		return
	}
	q.Add(column+" = ANY($?)", values)
}

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *SearchQuery) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

// CountSQL returns the count query SQL.
func (q *SearchQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.from, q.where)
}

// CountArgs returns the arguments for the count query.
func (q *SearchQuery) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the data query with ORDER BY and LIMIT/OFFSET. A limit of
// zero selects every matching row.
func (q *SearchQuery) DataSQL(limit, offset int) string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.from, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	}
	return sql
}

// DataArgs returns the arguments for DataSQL.
func (q *SearchQuery) DataArgs(limit, offset int) []interface{} {
	if limit <= 0 {
		return q.args
	}
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}

// TxRunner runs fn inside a transaction. Services take one so tests can run
// without a database.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PoolTx returns a TxRunner backed by RunInTx on pool.
func PoolTx(pool *pgxpool.Pool) TxRunner {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return RunInTx(ctx, pool, fn)
	}
}

// NoTx runs fn directly.
func NoTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
