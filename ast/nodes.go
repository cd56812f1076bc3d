// Package ast defines the statement tree for the SQLite dialect used by the
// record layer.
//
// It decouples statement construction from string formatting: the record
// package builds nodes, and the Compiler turns them into SQL text plus the
// positional arguments to bind.
package ast

// Node is the marker interface for all statement nodes.
type Node interface {
	node()
}

// Assignment pairs a column with the value written to it by an Insert or Update.
type Assignment struct {
	// Column is the target column name.
	Column string
	// Value is bound as a parameter, never interpolated.
	Value any
}

// Set creates an Assignment.
func Set(column string, value any) Assignment {
	return Assignment{Column: column, Value: value}
}

// --- Queries ---

// Select reads columns from a single table.
type Select struct {
	// Distinct adds the DISTINCT keyword.
	Distinct bool
	// Table is the source table.
	Table string
	// Columns lists the projected columns. Empty selects every column.
	Columns []string
	// Where is a raw predicate without the WHERE keyword. Empty matches all rows.
	Where string
	// Args are bound to the placeholders in Where and Having.
	Args []any
	// GroupBy is a raw GROUP BY expression.
	GroupBy string
	// Having is a raw HAVING expression.
	Having string
	// OrderBy is a raw ORDER BY expression.
	OrderBy string
	// Limit caps the result size; zero means unbounded.
	Limit int64
}

func (Select) node() {}

// Count counts the rows matched by a predicate.
// With Distinct or a non-zero Limit the count runs over a subquery so the
// limit bounds the result.
type Count struct {
	Distinct bool
	Table    string
	Where    string
	Args     []any
	Limit    int64
}

func (Count) node() {}

// Aggregate applies one SQL aggregate function to a column over the rows
// matched by a predicate.
type Aggregate struct {
	// Func is one of SUM, TOTAL, AVG, MIN, MAX.
	Func   string
	Column string
	Table  string
	Where  string
	Args   []any
}

func (Aggregate) node() {}

// --- Mutations ---

// Insert writes one row.
type Insert struct {
	Table  string
	Values []Assignment
}

func (Insert) node() {}

// Update rewrites the given columns on every row matched by Where.
type Update struct {
	Table string
	Set   []Assignment
	Where string
	Args  []any
}

func (Update) node() {}

// Delete removes every row matched by Where.
type Delete struct {
	Table string
	Where string
	Args  []any
}

func (Delete) node() {}

// --- Schema ---

// ColumnDef describes one column in a CREATE TABLE or ADD COLUMN statement.
type ColumnDef struct {
	Name       string
	Type       string
	PrimaryKey bool
}

// CreateTable creates a table with the given columns.
type CreateTable struct {
	Name    string
	Columns []ColumnDef
}

func (CreateTable) node() {}

// AddColumn appends a column to an existing table.
type AddColumn struct {
	Table  string
	Column ColumnDef
}

func (AddColumn) node() {}

// DropTable removes a table and all of its rows.
type DropTable struct {
	Name string
}

func (DropTable) node() {}

// Raw is literal SQL passed through the compiler unchanged.
type Raw struct {
	SQL  string
	Args []any
}

func (Raw) node() {}
