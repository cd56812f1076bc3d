package sqlgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/CaliLuke/go-activerecord/storage"
)

const tableSQLQuery = "SELECT sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND sql IS NOT NULL ORDER BY rowid"

// FromEngine parses the CREATE TABLE statements SQLite recorded for every
// user table. sqlite_master keeps ALTER TABLE changes folded into the
// stored statement, so the result reflects the live shape.
func FromEngine(ctx context.Context, eng storage.Engine) (*ParsedSchema, error) {
	rows, err := eng.RawQuery(ctx, tableSQLQuery)
	if err != nil {
		return nil, fmt.Errorf("read table definitions: %w", err)
	}
	var b strings.Builder
	for _, r := range rows {
		switch v := r["sql"].(type) {
		case string:
			b.WriteString(v)
		case []byte:
			b.Write(v)
		default:
			continue
		}
		b.WriteString(";\n")
	}
	return ParseSchema(b.String())
}

// Drift lists how an actual schema departs from an expected one. Column
// types are not compared since SQLite stores them as written.
type Drift struct {
	MissingTables  []string
	MissingColumns []string
	ExtraTables    []string
	ExtraColumns   []string
}

// IsEmpty reports whether the schemas match.
func (d *Drift) IsEmpty() bool {
	return len(d.MissingTables) == 0 && len(d.MissingColumns) == 0 &&
		len(d.ExtraTables) == 0 && len(d.ExtraColumns) == 0
}

// Summary returns a human-readable description of the drift.
func (d *Drift) Summary() string {
	if d.IsEmpty() {
		return "schema matches"
	}
	var parts []string
	add := func(label string, items []string) {
		if len(items) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", label, strings.Join(items, ", ")))
		}
	}
	add("missing tables", d.MissingTables)
	add("missing columns", d.MissingColumns)
	add("extra tables", d.ExtraTables)
	add("extra columns", d.ExtraColumns)
	return strings.Join(parts, "; ")
}

// Compare reports the tables and columns of expected absent from actual,
// and those of actual absent from expected. Names compare
// case-insensitively.
func Compare(expected, actual *ParsedSchema) *Drift {
	d := &Drift{}
	for i := range expected.Tables {
		want := &expected.Tables[i]
		got, ok := actual.Table(want.Name)
		if !ok {
			d.MissingTables = append(d.MissingTables, want.Name)
			continue
		}
		for _, col := range want.Columns {
			if _, ok := got.Column(col.Name); !ok {
				d.MissingColumns = append(d.MissingColumns, want.Name+"."+col.Name)
			}
		}
		for _, col := range got.Columns {
			if _, ok := want.Column(col.Name); !ok {
				d.ExtraColumns = append(d.ExtraColumns, got.Name+"."+col.Name)
			}
		}
	}
	for _, t := range actual.Tables {
		if _, ok := expected.Table(t.Name); !ok {
			d.ExtraTables = append(d.ExtraTables, t.Name)
		}
	}
	return d
}
