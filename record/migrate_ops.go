package record

import (
	"fmt"

	"github.com/CaliLuke/go-activerecord/ast"
)

// Operation is a single schema migration step.
type Operation interface {
	// SQL returns the statement that performs the operation.
	SQL() (string, error)
	// IsReversible reports whether the operation can be undone without data loss.
	IsReversible() bool
	// RollbackSQL returns the statement that undoes the operation.
	RollbackSQL() (string, error)
	// IsDestructive reports whether the operation deletes tables or data.
	IsDestructive() bool
}

var opCompiler ast.Compiler

// CreateTable creates a table with the given columns.
type CreateTable struct {
	Table   string
	Columns []ast.ColumnDef
}

func (op CreateTable) SQL() (string, error) {
	s, _, err := opCompiler.Compile(ast.CreateTable{Name: op.Table, Columns: op.Columns})
	return s, err
}
func (op CreateTable) IsReversible() bool  { return true }
func (op CreateTable) IsDestructive() bool { return false }
func (op CreateTable) RollbackSQL() (string, error) {
	return DropTable{Table: op.Table}.SQL()
}

// AddColumn appends a column to an existing table. Existing rows read the
// new column as NULL.
type AddColumn struct {
	Table  string
	Column ast.ColumnDef
}

func (op AddColumn) SQL() (string, error) {
	s, _, err := opCompiler.Compile(ast.AddColumn{Table: op.Table, Column: op.Column})
	return s, err
}
func (op AddColumn) IsReversible() bool  { return true }
func (op AddColumn) IsDestructive() bool { return false }
func (op AddColumn) RollbackSQL() (string, error) {
	if !ast.ValidIdentifier(op.Table) || !ast.ValidIdentifier(op.Column.Name) {
		return "", &InvalidArgumentError{Op: "AddColumn", Message: fmt.Sprintf("invalid identifier %s.%s", op.Table, op.Column.Name)}
	}
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", op.Table, op.Column.Name), nil
}

// DropTable removes a table and its rows.
type DropTable struct {
	Table string
}

func (op DropTable) SQL() (string, error) {
	s, _, err := opCompiler.Compile(ast.DropTable{Name: op.Table})
	return s, err
}
func (op DropTable) IsReversible() bool  { return false }
func (op DropTable) IsDestructive() bool { return true }
func (op DropTable) RollbackSQL() (string, error) {
	return "", fmt.Errorf("record: drop table %s cannot be rolled back", op.Table)
}
