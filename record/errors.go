package record

import "fmt"

// InvalidArgumentError is returned when a required argument, such as the
// database passed to a finder, is missing.
type InvalidArgumentError struct {
	Op      string
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("record: %s: invalid argument: %s", e.Op, e.Message)
}

// InvalidStateError is returned when an operation's precondition is unmet,
// for example saving an entity that is not bound to a database or adding a
// model to a generator that is not updating.
type InvalidStateError struct {
	Op      string
	Message string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("record: %s: invalid state: %s", e.Op, e.Message)
}

// SchemaError is returned when a type cannot be mapped onto a table.
type SchemaError struct {
	TypeName string
	Field    string
	Message  string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record: schema %s: %s", e.TypeName, e.Message)
	}
	return fmt.Sprintf("record: schema %s.%s: %s", e.TypeName, e.Field, e.Message)
}

// MaterializationError is returned when a stored value cannot be converted
// to its field's type.
type MaterializationError struct {
	Table  string
	Column string
	Cause  error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("record: materializing %s.%s: %v", e.Table, e.Column, e.Cause)
}

func (e *MaterializationError) Unwrap() error {
	return e.Cause
}

// NotRegisteredError is returned when a table name has no registered type.
type NotRegisteredError struct {
	TypeName string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("record: type %q is not registered", e.TypeName)
}

// NotFoundError is returned by FindByID and First when no row matches.
type NotFoundError struct {
	Table string
	ID    int64
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("record: %s: not found", e.Table)
	}
	return fmt.Sprintf("record: %s %d: not found", e.Table, e.ID)
}

// ReservedWordError is returned when an SQLite keyword is used as a table
// or column name.
type ReservedWordError struct {
	Word    string
	Context string // "table" or "column"
}

func (e *ReservedWordError) Error() string {
	return fmt.Sprintf("record: %q is an SQLite keyword and cannot be used as a %s name",
		e.Word, e.Context)
}

// MigrationError is returned when a schema change fails.
type MigrationError struct {
	Operation string
	Cause     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("record: migration %s: %v", e.Operation, e.Cause)
}

func (e *MigrationError) Unwrap() error {
	return e.Cause
}
