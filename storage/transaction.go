package storage

import (
	"context"
	"fmt"
)

// BeginTransaction opens a transaction, or a nested level when one is
// already open. Nested levels share the outer transaction.
func (e *SQLite) BeginTransaction(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.tx == nil {
		// The transaction outlives ctx; it ends with EndTransaction.
		tx, err := e.db.BeginTx(context.WithoutCancel(ctx), nil)
		if err != nil {
			return fmt.Errorf("storage: begin transaction: %w", err)
		}
		e.tx = tx
		e.failed = false
	}
	e.levels = append(e.levels, false)
	e.logger.DebugContext(ctx, "transaction begin", "depth", len(e.levels))
	return nil
}

// SetTransactionSuccessful marks the innermost level as successful.
func (e *SQLite) SetTransactionSuccessful() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.levels) == 0 {
		return ErrNoTransaction
	}
	top := len(e.levels) - 1
	if e.levels[top] {
		return ErrAlreadyMarked
	}
	e.levels[top] = true
	return nil
}

// EndTransaction closes the innermost level. A level that was not marked
// successful dooms the whole transaction; the outermost level commits or
// rolls back accordingly.
func (e *SQLite) EndTransaction(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.levels) == 0 {
		return ErrNoTransaction
	}
	top := len(e.levels) - 1
	if !e.levels[top] {
		e.failed = true
	}
	e.levels = e.levels[:top]
	if len(e.levels) > 0 {
		return nil
	}

	tx := e.tx
	failed := e.failed
	e.tx = nil
	e.failed = false
	if failed {
		e.logger.DebugContext(ctx, "transaction rollback")
		if err := tx.Rollback(); err != nil {
			return fmt.Errorf("storage: rollback: %w", err)
		}
		return nil
	}
	e.logger.DebugContext(ctx, "transaction commit")
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

// InTransaction reports whether a transaction is open.
func (e *SQLite) InTransaction() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tx != nil
}

// RunInTransaction runs fn inside a transaction level, marking it
// successful when fn returns nil.
func RunInTransaction(ctx context.Context, eng Engine, fn func(ctx context.Context) error) error {
	if err := eng.BeginTransaction(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if endErr := eng.EndTransaction(ctx); endErr != nil {
			return fmt.Errorf("%w (end transaction: %v)", err, endErr)
		}
		return err
	}
	if err := eng.SetTransactionSuccessful(); err != nil {
		_ = eng.EndTransaction(ctx)
		return err
	}
	return eng.EndTransaction(ctx)
}
