// Package sqlgen parses SQLite table definitions and generates Go entity
// structs for the record package.
package sqlgen

import (
	"fmt"
	"slices"
	"strings"

	"github.com/CaliLuke/go-activerecord/record"
)

// ParsedSchema is the set of tables described by a DDL script.
type ParsedSchema struct {
	Tables []TableSpec
}

// TableSpec describes one table.
type TableSpec struct {
	Name         string
	Columns      []ColumnSpec
	WithoutRowID bool
	Strict       bool
}

// ColumnSpec describes one column.
type ColumnSpec struct {
	Name          string
	Type          string
	PrimaryKey    bool
	Autoincrement bool
	NotNull       bool
	Unique        bool
	Default       string
	// References is the table named by a REFERENCES clause, if any.
	References string
}

// Affinity is an SQLite column type affinity.
type Affinity string

const (
	AffinityInteger Affinity = "integer"
	AffinityText    Affinity = "text"
	AffinityBlob    Affinity = "blob"
	AffinityReal    Affinity = "real"
	AffinityNumeric Affinity = "numeric"
)

// Affinity applies SQLite's rules for deriving affinity from a declared
// type, in order: INT, then CHAR/CLOB/TEXT, then BLOB or no type, then
// REAL/FLOA/DOUB, otherwise NUMERIC.
func (c ColumnSpec) Affinity() Affinity {
	t := strings.ToUpper(c.Type)
	switch {
	case strings.Contains(t, "INT"):
		return AffinityInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return AffinityText
	case t == "", strings.Contains(t, "BLOB"):
		return AffinityBlob
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return AffinityReal
	default:
		return AffinityNumeric
	}
}

// IsBoolean reports whether the declared type names a boolean.
func (c ColumnSpec) IsBoolean() bool {
	return strings.Contains(strings.ToUpper(c.Type), "BOOL")
}

// Nullable reports whether the column accepts NULL.
func (c ColumnSpec) Nullable() bool {
	return !c.NotNull && !c.PrimaryKey
}

// Table returns the table with the given name, compared case-insensitively.
func (s *ParsedSchema) Table(name string) (*TableSpec, bool) {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// Column returns the column with the given name, compared case-insensitively.
func (t *TableSpec) Column(name string) (*ColumnSpec, bool) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Compatible reports why the table cannot back a record entity, or nil
// when it can. An entity table needs an integer primary key named _id and
// a rowid.
func (t *TableSpec) Compatible() error {
	if t.WithoutRowID {
		return fmt.Errorf("table %s is WITHOUT ROWID", t.Name)
	}
	id, ok := t.Column(record.IDColumn)
	if !ok {
		return fmt.Errorf("table %s has no %s column", t.Name, record.IDColumn)
	}
	if !id.PrimaryKey || id.Affinity() != AffinityInteger {
		return fmt.Errorf("table %s: %s is not an integer primary key", t.Name, record.IDColumn)
	}
	if record.IsReservedWord(t.Name) {
		return fmt.Errorf("table %s: name is a reserved word", t.Name)
	}
	return nil
}

// Without returns a copy of the schema leaving out the named tables.
func (s *ParsedSchema) Without(names ...string) *ParsedSchema {
	out := &ParsedSchema{}
	for _, t := range s.Tables {
		if !slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, t.Name) }) {
			out.Tables = append(out.Tables, t)
		}
	}
	return out
}

// addColumn applies ALTER TABLE ... ADD COLUMN.
func (s *ParsedSchema) addColumn(table string, col ColumnSpec) error {
	t, ok := s.Table(table)
	if !ok {
		return fmt.Errorf("alter table %s: table not defined", table)
	}
	if _, dup := t.Column(col.Name); dup {
		return fmt.Errorf("alter table %s: column %s already exists", table, col.Name)
	}
	t.Columns = append(t.Columns, col)
	return nil
}
