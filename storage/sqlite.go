package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/CaliLuke/go-activerecord/ast"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLite is an Engine backed by database/sql. The pool is pinned to a single
// connection so in-memory databases persist across calls and every
// statement issued while a transaction is open joins it.
type SQLite struct {
	db       *sql.DB
	compiler ast.Compiler
	logger   *slog.Logger

	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook

	mu     sync.Mutex
	closed bool
	tx     *sql.Tx
	levels []bool
	failed bool
}

var _ Engine = (*SQLite)(nil)

// Open opens (creating if needed) the SQLite database at path. The parent
// directory is created when missing. Use MemoryPath for a throwaway database.
func Open(ctx context.Context, path string, opts ...Option) (*SQLite, error) {
	if path != MemoryPath && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("storage: create directory %s: %w", dir, err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	e := New(db, opts...)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	e.logger.DebugContext(ctx, "sqlite opened", "path", path)
	return e, nil
}

// New wraps an already opened database handle. The handle is limited to
// one open connection.
func New(db *sql.DB, opts ...Option) *SQLite {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	e := &SQLite{
		db:            db,
		logger:        slog.New(slog.DiscardHandler),
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DB returns the underlying handle.
func (e *SQLite) DB() *sql.DB { return e.db }

// QueryStats returns the live statistics counters.
func (e *SQLite) QueryStats() *QueryStats { return e.stats }

func (e *SQLite) conn() (querier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.tx != nil {
		return e.tx, nil
	}
	return e.db, nil
}

func (e *SQLite) compile(node ast.Node) (string, []any, error) {
	s, args, err := e.compiler.Compile(node)
	if err != nil {
		var idErr *ast.IdentifierError
		if errors.As(err, &idErr) {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, idErr.Name)
		}
		return "", nil, err
	}
	return s, args, nil
}

func (e *SQLite) exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	q, err := e.conn()
	if err != nil {
		return nil, err
	}
	e.logger.DebugContext(ctx, "exec", "sql", query)
	start := time.Now()
	res, err := q.ExecContext(ctx, query, args...)
	e.record(ctx, query, args, start, err, false)
	return res, err
}

func (e *SQLite) query(ctx context.Context, query string, args []any) ([]Row, error) {
	q, err := e.conn()
	if err != nil {
		return nil, err
	}
	e.logger.DebugContext(ctx, "query", "sql", query)
	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		e.record(ctx, query, args, start, err, true)
		return nil, err
	}
	out, err := readRows(rows)
	e.record(ctx, query, args, start, err, true)
	return out, err
}

// readRows drains and closes rows.
func readRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Execute runs a statement that returns no rows.
func (e *SQLite) Execute(ctx context.Context, query string, args ...any) error {
	_, err := e.exec(ctx, query, args)
	return err
}

// Insert writes one row and returns its rowid.
func (e *SQLite) Insert(ctx context.Context, table string, values []ast.Assignment) (int64, error) {
	s, args, err := e.compile(ast.Insert{Table: table, Values: values})
	if err != nil {
		return 0, err
	}
	res, err := e.exec(ctx, s, args)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Update rewrites the matched rows.
func (e *SQLite) Update(ctx context.Context, table string, values []ast.Assignment, where string, args ...any) (int64, error) {
	s, all, err := e.compile(ast.Update{Table: table, Set: values, Where: where, Args: args})
	if err != nil {
		return 0, err
	}
	res, err := e.exec(ctx, s, all)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes the matched rows. An empty where deletes every row.
func (e *SQLite) Delete(ctx context.Context, table string, where string, args ...any) (int64, error) {
	s, all, err := e.compile(ast.Delete{Table: table, Where: where, Args: args})
	if err != nil {
		return 0, err
	}
	res, err := e.exec(ctx, s, all)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Query compiles and runs a SELECT.
func (e *SQLite) Query(ctx context.Context, sel ast.Select) ([]Row, error) {
	s, args, err := e.compile(sel)
	if err != nil {
		return nil, err
	}
	return e.query(ctx, s, args)
}

// RawQuery runs SQL that returns rows.
func (e *SQLite) RawQuery(ctx context.Context, query string, args ...any) ([]Row, error) {
	return e.query(ctx, query, args)
}

// Tables lists user tables, excluding SQLite's internal ones.
func (e *SQLite) Tables(ctx context.Context) ([]string, error) {
	rows, err := e.query(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\\_%' ESCAPE '\\' ORDER BY name", nil)
	if err != nil {
		return nil, fmt.Errorf("storage: list tables: %w", err)
	}
	return stringColumn(rows, "name"), nil
}

// Columns lists the columns of table in declaration order.
func (e *SQLite) Columns(ctx context.Context, table string) ([]string, error) {
	if !ast.ValidIdentifier(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, table)
	}
	rows, err := e.query(ctx, "PRAGMA table_info("+table+")", nil)
	if err != nil {
		return nil, fmt.Errorf("storage: list columns of %s: %w", table, err)
	}
	return stringColumn(rows, "name"), nil
}

// SchemaVersion reads PRAGMA user_version.
func (e *SQLite) SchemaVersion(ctx context.Context) (int, error) {
	rows, err := e.query(ctx, "PRAGMA user_version", nil)
	if err != nil {
		return 0, fmt.Errorf("storage: read schema version: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	switch v := rows[0]["user_version"].(type) {
	case int64:
		return int(v), nil
	case string:
		var n int
		if _, err := fmt.Sscan(v, &n); err != nil {
			return 0, fmt.Errorf("storage: read schema version: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("storage: read schema version: unexpected %T", v)
	}
}

// SetSchemaVersion writes PRAGMA user_version.
func (e *SQLite) SetSchemaVersion(ctx context.Context, version int) error {
	if err := e.Execute(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("storage: set schema version: %w", err)
	}
	return nil
}

// Close rolls back any open transaction and closes the database.
func (e *SQLite) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.tx != nil {
		_ = e.tx.Rollback()
		e.tx = nil
		e.levels = nil
	}
	return e.db.Close()
}

func stringColumn(rows []Row, col string) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		switch v := r[col].(type) {
		case string:
			out = append(out, v)
		case []byte:
			out = append(out, string(v))
		}
	}
	return out
}
