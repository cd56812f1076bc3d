package storage

import (
	"errors"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed engine.
	ErrClosed = errors.New("storage: engine closed")
	// ErrNoTransaction is returned by SetTransactionSuccessful and
	// EndTransaction when no transaction is open.
	ErrNoTransaction = errors.New("storage: no transaction in progress")
	// ErrInvalidIdentifier is returned when a table or column name cannot be
	// interpolated into SQL.
	ErrInvalidIdentifier = errors.New("storage: invalid identifier")
	// ErrAlreadyMarked is returned when the innermost transaction level is
	// marked successful twice.
	ErrAlreadyMarked = errors.New("storage: transaction already marked successful")
)
