package record

import (
	"context"
	"fmt"

	"github.com/CaliLuke/go-activerecord/ast"
)

// FindOptions is a WHERE clause with its arguments plus result shaping.
// Args are bound through ast.FormatArg. A zero Limit is unbounded.
type FindOptions struct {
	Where    string
	Args     []any
	Distinct bool
	OrderBy  string
	Limit    int64
}

// LoadOption tunes FindByID.
type LoadOption func(*loadOptions)

type loadOptions struct {
	full bool
}

// FullyMaterialized makes FindByID load deferred columns too, reloading a
// cached instance that was only partially loaded.
func FullyMaterialized() LoadOption {
	return func(o *loadOptions) { o.full = true }
}

func checkDB(op string, db *Database) error {
	if db == nil {
		return &InvalidArgumentError{Op: op, Message: "database is nil"}
	}
	return nil
}

func eqClause(column string, value any) (string, []any, error) {
	if !ast.ValidIdentifier(column) {
		return "", nil, &InvalidArgumentError{Op: "predicate", Message: fmt.Sprintf("invalid column %q", column)}
	}
	s, args := ast.Eq(column, value).SQL()
	return s, args, nil
}

func castAll[T any, PT EntityPtr[T]](entities []Entity) []PT {
	out := make([]PT, len(entities))
	for i, e := range entities {
		out[i] = e.(PT)
	}
	return out
}

// Find returns the entities matching where. Cached instances are returned
// as they are; the rest are loaded without their deferred columns.
func Find[T any, PT EntityPtr[T]](ctx context.Context, db *Database, where string, args ...any) ([]PT, error) {
	return FindWith[T, PT](ctx, db, FindOptions{Where: where, Args: args})
}

// FindWith is Find with distinct, ordering and limit.
func FindWith[T any, PT EntityPtr[T]](ctx context.Context, db *Database, opts FindOptions) ([]PT, error) {
	if err := checkDB("Find", db); err != nil {
		return nil, err
	}
	info, err := ModelOf[T]()
	if err != nil {
		return nil, err
	}
	found, err := db.find(ctx, info, opts)
	if err != nil {
		return nil, err
	}
	return castAll[T, PT](found), nil
}

// FindAll returns every entity of type T.
func FindAll[T any, PT EntityPtr[T]](ctx context.Context, db *Database) ([]PT, error) {
	return FindWith[T, PT](ctx, db, FindOptions{})
}

// FindByID returns the entity with the given id, from the identity cache
// when possible. It returns a *NotFoundError when no row matches.
func FindByID[T any, PT EntityPtr[T]](ctx context.Context, db *Database, id int64, opts ...LoadOption) (PT, error) {
	if err := checkDB("FindByID", db); err != nil {
		return nil, err
	}
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	info, err := ModelOf[T]()
	if err != nil {
		return nil, err
	}
	e, err := db.newMaterializer().findByID(ctx, info, id, o.full)
	if err != nil {
		return nil, err
	}
	return e.(PT), nil
}

// FindByColumn returns the entities whose column equals value.
func FindByColumn[T any, PT EntityPtr[T]](ctx context.Context, db *Database, column string, value any) ([]PT, error) {
	return FindByColumnOrdered[T, PT](ctx, db, column, value, "")
}

// FindByColumnOrdered is FindByColumn with an ORDER BY expression.
func FindByColumnOrdered[T any, PT EntityPtr[T]](ctx context.Context, db *Database, column string, value any, orderBy string) ([]PT, error) {
	where, args, err := eqClause(column, value)
	if err != nil {
		return nil, err
	}
	return FindWith[T, PT](ctx, db, FindOptions{Where: where, Args: args, OrderBy: orderBy})
}

// FindIDs returns the ids of the rows matching where without loading them.
func FindIDs[T any, PT EntityPtr[T]](ctx context.Context, db *Database, where string, args ...any) ([]int64, error) {
	return FindIDsWith[T, PT](ctx, db, FindOptions{Where: where, Args: args})
}

// FindIDsWith is FindIDs with distinct, ordering and limit.
func FindIDsWith[T any, PT EntityPtr[T]](ctx context.Context, db *Database, opts FindOptions) ([]int64, error) {
	if err := checkDB("FindIDs", db); err != nil {
		return nil, err
	}
	info, err := ModelOf[T]()
	if err != nil {
		return nil, err
	}
	return db.findIDs(ctx, info, opts)
}

// FindIDsByColumn returns the ids of rows whose column equals value.
func FindIDsByColumn[T any, PT EntityPtr[T]](ctx context.Context, db *Database, column string, value any) ([]int64, error) {
	return FindIDsByColumnOrdered[T, PT](ctx, db, column, value, "")
}

// FindIDsByColumnOrdered is FindIDsByColumn with an ORDER BY expression.
func FindIDsByColumnOrdered[T any, PT EntityPtr[T]](ctx context.Context, db *Database, column string, value any, orderBy string) ([]int64, error) {
	where, args, err := eqClause(column, value)
	if err != nil {
		return nil, err
	}
	return FindIDsWith[T, PT](ctx, db, FindOptions{Where: where, Args: args, OrderBy: orderBy})
}

// FindAllIDs returns every id of type T.
func FindAllIDs[T any, PT EntityPtr[T]](ctx context.Context, db *Database) ([]int64, error) {
	return FindIDsWith[T, PT](ctx, db, FindOptions{})
}

// Count returns the number of rows matching where. It does not consult the
// identity cache.
func Count[T any, PT EntityPtr[T]](ctx context.Context, db *Database, where string, args ...any) (int64, error) {
	return CountWith[T, PT](ctx, db, FindOptions{Where: where, Args: args})
}

// CountWith counts like FindIDsWith would return; a non-zero Limit caps
// the count. OrderBy is ignored.
func CountWith[T any, PT EntityPtr[T]](ctx context.Context, db *Database, opts FindOptions) (int64, error) {
	if err := checkDB("Count", db); err != nil {
		return 0, err
	}
	info, err := ModelOf[T]()
	if err != nil {
		return 0, err
	}
	return db.count(ctx, info, opts)
}

// CountByColumn counts rows whose column equals value.
func CountByColumn[T any, PT EntityPtr[T]](ctx context.Context, db *Database, column string, value any) (int64, error) {
	where, args, err := eqClause(column, value)
	if err != nil {
		return 0, err
	}
	return CountWith[T, PT](ctx, db, FindOptions{Where: where, Args: args})
}

// CountAll counts every row of type T.
func CountAll[T any, PT EntityPtr[T]](ctx context.Context, db *Database) (int64, error) {
	return CountWith[T, PT](ctx, db, FindOptions{})
}

// DeleteWhere removes the rows matching where and returns how many were
// removed. Cached instances of those rows are marked for insertion, so
// saving a stale handle recreates its row instead of updating nothing.
func DeleteWhere[T any, PT EntityPtr[T]](ctx context.Context, db *Database, where string, args ...any) (int64, error) {
	if err := checkDB("Delete", db); err != nil {
		return 0, err
	}
	info, err := ModelOf[T]()
	if err != nil {
		return 0, err
	}
	return db.deleteWhere(ctx, info, where, args)
}

// DeleteByColumn removes the rows whose column equals value.
func DeleteByColumn[T any, PT EntityPtr[T]](ctx context.Context, db *Database, column string, value any) (int64, error) {
	where, args, err := eqClause(column, value)
	if err != nil {
		return 0, err
	}
	return DeleteWhere[T, PT](ctx, db, where, args...)
}

func (db *Database) find(ctx context.Context, info *ModelInfo, opts FindOptions) ([]Entity, error) {
	rows, err := db.engine.Query(ctx, ast.Select{
		Distinct: opts.Distinct,
		Table:    info.Table,
		Columns:  info.ColumnNames(false),
		Where:    opts.Where,
		Args:     ast.FormatArgs(opts.Args...),
		OrderBy:  opts.OrderBy,
		Limit:    opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", info.Table, err)
	}

	m := db.newMaterializer()
	out := make([]Entity, 0, len(rows))
	for _, row := range rows {
		id, err := toInt64(row[IDColumn])
		if err != nil {
			return nil, &MaterializationError{Table: info.Table, Column: IDColumn, Cause: err}
		}
		if e := db.cache.get(cacheKey{t: info.GoType, id: id}); e != nil {
			out = append(out, e)
			continue
		}
		e, err := m.materialize(ctx, info, newEntity(info), row, true)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (db *Database) findIDs(ctx context.Context, info *ModelInfo, opts FindOptions) ([]int64, error) {
	rows, err := db.engine.Query(ctx, ast.Select{
		Distinct: opts.Distinct,
		Table:    info.Table,
		Columns:  []string{IDColumn},
		Where:    opts.Where,
		Args:     ast.FormatArgs(opts.Args...),
		OrderBy:  opts.OrderBy,
		Limit:    opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("find ids %s: %w", info.Table, err)
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		id, err := toInt64(row[IDColumn])
		if err != nil {
			return nil, &MaterializationError{Table: info.Table, Column: IDColumn, Cause: err}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (db *Database) count(ctx context.Context, info *ModelInfo, opts FindOptions) (int64, error) {
	sql, args, err := db.compiler.Compile(ast.Count{
		Distinct: opts.Distinct,
		Table:    info.Table,
		Where:    opts.Where,
		Args:     ast.FormatArgs(opts.Args...),
		Limit:    opts.Limit,
	})
	if err != nil {
		return 0, err
	}
	rows, err := db.engine.RawQuery(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", info.Table, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for _, v := range rows[0] {
		return toInt64(v)
	}
	return 0, nil
}

func (db *Database) deleteWhere(ctx context.Context, info *ModelInfo, where string, args []any) (int64, error) {
	ids, err := db.findIDs(ctx, info, FindOptions{Where: where, Args: args})
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		key := cacheKey{t: info.GoType, id: id}
		if e := db.cache.peek(key); e != nil {
			e.base().persisted = false
		}
		db.cache.evict(key)
	}
	n, err := db.engine.Delete(ctx, info.Table, where, ast.FormatArgs(args...)...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", info.Table, err)
	}
	db.logger.DebugContext(ctx, "bulk delete", "table", info.Table, "matched", len(ids), "removed", n)
	return n, nil
}
