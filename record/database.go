package record

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/CaliLuke/go-activerecord/ast"
	"github.com/CaliLuke/go-activerecord/storage"
)

// Database binds a storage engine to its identity cache. Every entity
// loaded or saved through a Database is cached there, so two databases
// never share instances.
type Database struct {
	engine   storage.Engine
	cache    identityCache
	fetches  singleflight.Group
	logger   *slog.Logger
	compiler ast.Compiler
	ownsEng  bool
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger for persistence and cache tracing. The default
// discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(db *Database) {
		if l != nil {
			db.logger = l
		}
	}
}

// New wraps an engine. Closing the Database does not close the engine.
func New(engine storage.Engine, opts ...Option) *Database {
	db := &Database{
		engine: engine,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Open opens an SQLite database at path and wraps it. The returned Database
// owns the engine and closes it on Close.
func Open(ctx context.Context, path string, opts ...Option) (*Database, error) {
	db := New(nil, opts...)
	eng, err := storage.Open(ctx, path, storage.WithLogger(db.logger))
	if err != nil {
		return nil, err
	}
	db.engine = eng
	db.ownsEng = true
	return db, nil
}

// Engine returns the underlying storage engine.
func (db *Database) Engine() storage.Engine { return db.engine }

// Logger returns the database's logger.
func (db *Database) Logger() *slog.Logger { return db.logger }

// Close drops the identity cache and, when the engine was opened by Open,
// closes it.
func (db *Database) Close() error {
	db.cache.clear()
	if db.ownsEng {
		return db.engine.Close()
	}
	return nil
}

// CacheStats returns identity cache counters.
func (db *Database) CacheStats() CacheStats { return db.cache.stats() }

// Sweep drops identity cache entries whose entities have been garbage
// collected and returns how many were removed.
func (db *Database) Sweep() int {
	n := db.cache.sweep()
	if n > 0 {
		db.logger.Debug("identity cache swept", "removed", n)
	}
	return n
}

// Evict removes e from the identity cache. A later lookup of the same row
// materializes a new instance.
func (db *Database) Evict(e Entity) {
	db.cache.evict(keyOf(e))
}

// ClearCache empties the identity cache.
func (db *Database) ClearCache() { db.cache.clear() }

// BeginTransaction opens a transaction on the engine. See storage.Engine
// for nesting rules.
func (db *Database) BeginTransaction(ctx context.Context) error {
	return db.engine.BeginTransaction(ctx)
}

// SetTransactionSuccessful marks the innermost transaction level successful.
func (db *Database) SetTransactionSuccessful() error {
	return db.engine.SetTransactionSuccessful()
}

// EndTransaction closes the innermost transaction level.
func (db *Database) EndTransaction(ctx context.Context) error {
	return db.engine.EndTransaction(ctx)
}

// InTransaction reports whether a transaction is open.
func (db *Database) InTransaction() bool {
	return db.engine.InTransaction()
}

// RunInTransaction runs fn in a transaction level that is marked successful
// when fn returns nil.
func (db *Database) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return storage.RunInTransaction(ctx, db.engine, fn)
}
