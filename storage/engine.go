// Package storage provides the row store the record layer persists into.
//
// Engine is the capability set the record package needs from a database:
// statement execution, row-set insert/update/delete, parameterized queries,
// table and column metadata, a schema version, and scoped transactions.
// SQLite implements it on the embedded modernc.org/sqlite driver.
package storage

import (
	"context"

	"github.com/CaliLuke/go-activerecord/ast"
)

// Row is one result row keyed by column name. Values are the driver's
// native types: int64, float64, string, []byte or nil.
type Row map[string]any

// Engine is the storage capability interface consumed by the record layer.
//
// Query and RawQuery read their whole result set before returning, so no
// cursor is held open while callers issue further statements.
type Engine interface {
	// Execute runs a statement that returns no rows.
	Execute(ctx context.Context, sql string, args ...any) error
	// Insert writes one row and returns its row id.
	Insert(ctx context.Context, table string, values []ast.Assignment) (int64, error)
	// Update rewrites the matched rows and returns the affected count.
	Update(ctx context.Context, table string, values []ast.Assignment, where string, args ...any) (int64, error)
	// Delete removes the matched rows and returns the affected count.
	Delete(ctx context.Context, table string, where string, args ...any) (int64, error)
	// Query runs a compiled SELECT.
	Query(ctx context.Context, q ast.Select) ([]Row, error)
	// RawQuery runs arbitrary SQL that returns rows.
	RawQuery(ctx context.Context, sql string, args ...any) ([]Row, error)

	// Tables lists user tables in name order.
	Tables(ctx context.Context) ([]string, error)
	// Columns lists a table's columns in declaration order. A missing table
	// yields an empty list.
	Columns(ctx context.Context, table string) ([]string, error)
	SchemaVersion(ctx context.Context) (int, error)
	SetSchemaVersion(ctx context.Context, version int) error

	// BeginTransaction opens a transaction or a nested level of the current one.
	BeginTransaction(ctx context.Context) error
	// SetTransactionSuccessful marks the innermost level as successful.
	SetTransactionSuccessful() error
	// EndTransaction closes the innermost level. Closing the outermost level
	// commits only if every level was marked successful, and rolls back
	// otherwise.
	EndTransaction(ctx context.Context) error
	InTransaction() bool

	Close() error
}

// StatsProvider is implemented by engines that collect query statistics.
type StatsProvider interface {
	QueryStats() *QueryStats
}
