package storage

import (
	"log/slog"
	"time"
)

// Option configures an SQLite engine.
type Option func(*SQLite)

// WithLogger sets the logger used for statement tracing and slow query
// warnings. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *SQLite) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSlowThreshold sets the duration above which a statement is counted
// and logged as slow. Zero disables slow query detection. Default is 100ms.
func WithSlowThreshold(d time.Duration) Option {
	return func(e *SQLite) {
		e.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback invoked for every slow statement.
func WithSlowQueryHook(hook SlowQueryHook) Option {
	return func(e *SQLite) {
		e.slowHook = hook
	}
}
