package record

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/CaliLuke/go-activerecord/storage"
)

// SchemaDiff is the difference between registered entity types and the
// tables present in a database. Migration is additive: columns found only
// in the database are reported but never dropped.
type SchemaDiff struct {
	// CreateTables are tables missing from the database.
	CreateTables []CreateTable
	// AddColumns are columns missing from existing tables.
	AddColumns []AddColumn
	// ExtraColumns are database columns no entity field maps to.
	ExtraColumns []ColumnRef
}

// ColumnRef names a column of a table.
type ColumnRef struct {
	Table  string
	Column string
}

// Summary returns a human-readable description of the diff.
func (d *SchemaDiff) Summary() string {
	if d.IsEmpty() && len(d.ExtraColumns) == 0 {
		return "schema is up to date"
	}
	var parts []string
	if n := len(d.CreateTables); n > 0 {
		names := make([]string, n)
		for i, c := range d.CreateTables {
			names[i] = c.Table
		}
		parts = append(parts, fmt.Sprintf("create %d table(s): %s", n, strings.Join(names, ", ")))
	}
	if n := len(d.AddColumns); n > 0 {
		names := make([]string, n)
		for i, c := range d.AddColumns {
			names[i] = c.Table + "." + c.Column.Name
		}
		parts = append(parts, fmt.Sprintf("add %d column(s): %s", n, strings.Join(names, ", ")))
	}
	if n := len(d.ExtraColumns); n > 0 {
		names := make([]string, n)
		for i, c := range d.ExtraColumns {
			names[i] = c.Table + "." + c.Column
		}
		parts = append(parts, fmt.Sprintf("WARNING: %d column(s) in DB not in code: %s", n, strings.Join(names, ", ")))
	}
	return strings.Join(parts, "; ")
}

// IsEmpty reports whether the diff has nothing to apply.
func (d *SchemaDiff) IsEmpty() bool {
	return len(d.CreateTables) == 0 && len(d.AddColumns) == 0
}

// Operations returns the steps that reconcile the database, tables first.
func (d *SchemaDiff) Operations() []Operation {
	ops := make([]Operation, 0, len(d.CreateTables)+len(d.AddColumns))
	for _, op := range d.CreateTables {
		ops = append(ops, op)
	}
	for _, op := range d.AddColumns {
		ops = append(ops, op)
	}
	return ops
}

// GenerateMigration renders the statements of Operations.
func (d *SchemaDiff) GenerateMigration() ([]string, error) {
	var stmts []string
	for _, op := range d.Operations() {
		s, err := op.SQL()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

// Merge appends other's changes to d.
func (d *SchemaDiff) Merge(other *SchemaDiff) {
	d.CreateTables = append(d.CreateTables, other.CreateTables...)
	d.AddColumns = append(d.AddColumns, other.AddColumns...)
	d.ExtraColumns = append(d.ExtraColumns, other.ExtraColumns...)
}

// Apply executes the migration statements on eng and returns those that ran.
func (d *SchemaDiff) Apply(ctx context.Context, eng storage.Engine) ([]string, error) {
	stmts, err := d.GenerateMigration()
	if err != nil {
		return nil, &MigrationError{Operation: "generate", Cause: err}
	}
	for i, stmt := range stmts {
		if err := eng.Execute(ctx, stmt); err != nil {
			return stmts[:i], &MigrationError{Operation: stmt, Cause: err}
		}
	}
	return stmts, nil
}

// DiffModel compares one entity type with its table in db.
func DiffModel(ctx context.Context, db *Database, info *ModelInfo) (*SchemaDiff, error) {
	if err := checkDB("DiffModel", db); err != nil {
		return nil, err
	}
	tables, err := db.engine.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", info.Table, err)
	}
	return diffModel(ctx, db.engine, tables, info)
}

// DiffModels compares several entity types with db. With no infos it
// compares every registered type.
func DiffModels(ctx context.Context, db *Database, infos ...*ModelInfo) (*SchemaDiff, error) {
	if err := checkDB("DiffModels", db); err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		infos = RegisteredTypes()
	}
	tables, err := db.engine.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	diff := &SchemaDiff{}
	for _, info := range infos {
		d, err := diffModel(ctx, db.engine, tables, info)
		if err != nil {
			return nil, err
		}
		diff.Merge(d)
	}
	return diff, nil
}

func diffModel(ctx context.Context, eng storage.Engine, tables []string, info *ModelInfo) (*SchemaDiff, error) {
	diff := &SchemaDiff{}
	if !containsFold(tables, info.Table) {
		def := info.TableDef()
		diff.CreateTables = append(diff.CreateTables, CreateTable{Table: def.Name, Columns: def.Columns})
		return diff, nil
	}

	existing, err := eng.Columns(ctx, info.Table)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", info.Table, err)
	}
	for _, col := range info.Columns(true) {
		if !containsFold(existing, col.Name) {
			diff.AddColumns = append(diff.AddColumns, AddColumn{Table: info.Table, Column: col.Def()})
		}
	}
	for _, name := range existing {
		if !containsFold(info.ColumnNames(true), name) {
			diff.ExtraColumns = append(diff.ExtraColumns, ColumnRef{Table: info.Table, Column: name})
		}
	}
	return diff, nil
}

// SQLite identifiers are case-insensitive.
func containsFold(names []string, name string) bool {
	return slices.ContainsFunc(names, func(s string) bool { return strings.EqualFold(s, name) })
}

// dropAll returns a DropTable for every table in tables.
func dropAll(tables []string) []Operation {
	ops := make([]Operation, len(tables))
	for i, t := range tables {
		ops[i] = DropTable{Table: t}
	}
	return ops
}
