package record

import (
	"context"
	"fmt"
	"strings"

	"github.com/CaliLuke/go-activerecord/ast"
)

// Query provides a chainable API for selecting, counting and deleting
// entities of type T.
//
//	adults, err := record.NewQuery[Person](db).
//		Filter(ast.Gte("age", 18)).
//		OrderAsc("name").
//		Limit(10).
//		All(ctx)
type Query[T any, PT EntityPtr[T]] struct {
	db       *Database
	clauses  []ast.Predicate
	distinct bool
	orderBy  []string
	limit    int64
}

// NewQuery starts a query over the rows of T in db.
func NewQuery[T any, PT EntityPtr[T]](db *Database) *Query[T, PT] {
	return &Query[T, PT]{db: db}
}

// Where adds a raw predicate. Multiple predicates are combined with AND.
func (q *Query[T, PT]) Where(clause string, args ...any) *Query[T, PT] {
	q.clauses = append(q.clauses, ast.Where(clause, args...))
	return q
}

// Filter adds one or more predicates, combined with AND.
func (q *Query[T, PT]) Filter(preds ...ast.Predicate) *Query[T, PT] {
	q.clauses = append(q.clauses, preds...)
	return q
}

// Distinct drops duplicate rows.
func (q *Query[T, PT]) Distinct() *Query[T, PT] {
	q.distinct = true
	return q
}

// OrderBy appends a raw ORDER BY term.
func (q *Query[T, PT]) OrderBy(expr string) *Query[T, PT] {
	q.orderBy = append(q.orderBy, expr)
	return q
}

// OrderAsc sorts by column ascending.
func (q *Query[T, PT]) OrderAsc(column string) *Query[T, PT] {
	return q.OrderBy(column + " ASC")
}

// OrderDesc sorts by column descending.
func (q *Query[T, PT]) OrderDesc(column string) *Query[T, PT] {
	return q.OrderBy(column + " DESC")
}

// Limit caps the number of rows. Zero removes the cap.
func (q *Query[T, PT]) Limit(n int64) *Query[T, PT] {
	q.limit = n
	return q
}

func (q *Query[T, PT]) options() FindOptions {
	where, args := ast.Render(q.clauses...)
	return FindOptions{
		Where:    where,
		Args:     args,
		Distinct: q.distinct,
		OrderBy:  strings.Join(q.orderBy, ", "),
		Limit:    q.limit,
	}
}

// All returns every matching entity.
func (q *Query[T, PT]) All(ctx context.Context) ([]PT, error) {
	return FindWith[T, PT](ctx, q.db, q.options())
}

// First returns the first matching entity, or a *NotFoundError.
func (q *Query[T, PT]) First(ctx context.Context) (PT, error) {
	opts := q.options()
	opts.Limit = 1
	found, err := FindWith[T, PT](ctx, q.db, opts)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		info, err := ModelOf[T]()
		if err != nil {
			return nil, err
		}
		return nil, &NotFoundError{Table: info.Table}
	}
	return found[0], nil
}

// IDs returns the ids of the matching rows without loading them.
func (q *Query[T, PT]) IDs(ctx context.Context) ([]int64, error) {
	return FindIDsWith[T, PT](ctx, q.db, q.options())
}

// Count returns the number of matching rows, bounded by Limit.
func (q *Query[T, PT]) Count(ctx context.Context) (int64, error) {
	return CountWith[T, PT](ctx, q.db, q.options())
}

// Exists reports whether at least one row matches.
func (q *Query[T, PT]) Exists(ctx context.Context) (bool, error) {
	opts := q.options()
	opts.Limit = 1
	n, err := CountWith[T, PT](ctx, q.db, opts)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes every matching row. Ordering and Limit are ignored.
func (q *Query[T, PT]) Delete(ctx context.Context) (int64, error) {
	opts := q.options()
	return DeleteWhere[T, PT](ctx, q.db, opts.Where, opts.Args...)
}

// UpdateWith loads the matching entities, applies fn to each and saves them
// in one transaction.
func (q *Query[T, PT]) UpdateWith(ctx context.Context, fn func(PT)) ([]PT, error) {
	found, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	err = q.db.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, e := range found {
			fn(e)
			if err := q.db.save(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update with: %w", err)
	}
	return found, nil
}

// AggregateQuery computes one aggregate over the rows of a Query.
type AggregateQuery[T any, PT EntityPtr[T]] struct {
	q      *Query[T, PT]
	fn     string
	column string
}

// Sum aggregates column with TOTAL, so an empty match sums to 0.
func (q *Query[T, PT]) Sum(column string) *AggregateQuery[T, PT] {
	return &AggregateQuery[T, PT]{q: q, fn: "TOTAL", column: column}
}

// Avg averages column.
func (q *Query[T, PT]) Avg(column string) *AggregateQuery[T, PT] {
	return &AggregateQuery[T, PT]{q: q, fn: "AVG", column: column}
}

// Min returns the smallest value of column.
func (q *Query[T, PT]) Min(column string) *AggregateQuery[T, PT] {
	return &AggregateQuery[T, PT]{q: q, fn: "MIN", column: column}
}

// Max returns the largest value of column.
func (q *Query[T, PT]) Max(column string) *AggregateQuery[T, PT] {
	return &AggregateQuery[T, PT]{q: q, fn: "MAX", column: column}
}

// Execute runs the aggregate. A NULL result, as when nothing matches,
// reads as 0.
func (aq *AggregateQuery[T, PT]) Execute(ctx context.Context) (float64, error) {
	db := aq.q.db
	if err := checkDB("Aggregate", db); err != nil {
		return 0, err
	}
	info, err := ModelOf[T]()
	if err != nil {
		return 0, err
	}
	opts := aq.q.options()
	sql, args, err := db.compiler.Compile(ast.Aggregate{
		Func:   aq.fn,
		Column: aq.column,
		Table:  info.Table,
		Where:  opts.Where,
		Args:   ast.FormatArgs(opts.Args...),
	})
	if err != nil {
		return 0, &InvalidArgumentError{Op: "Aggregate", Message: err.Error()}
	}
	rows, err := db.engine.RawQuery(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("aggregate %s(%s.%s): %w", aq.fn, info.Table, aq.column, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for _, v := range rows[0] {
		if v == nil {
			return 0, nil
		}
		return toFloat64(v)
	}
	return 0, nil
}
