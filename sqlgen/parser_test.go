package sqlgen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testSchema = `-- people and their employers
CREATE TABLE person (
    _id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    age integer DEFAULT 0,
    "display name" VARCHAR(64),
    is_active BOOLEAN NOT NULL DEFAULT 1,
    score REAL,
    avatar BLOB,
    employer integer REFERENCES company(_id) ON DELETE SET NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    CHECK (age >= 0)
);

CREATE TABLE IF NOT EXISTS company (
    _id integer primary key,
    title text UNIQUE,
    balance numeric(10, 2)
);

/* join table */
CREATE TABLE membership (
    person_id integer NOT NULL,
    company_id integer NOT NULL,
    PRIMARY KEY (person_id, company_id),
    FOREIGN KEY (person_id) REFERENCES person(_id)
) WITHOUT ROWID;

CREATE UNIQUE INDEX idx_company_title ON company (title);
ALTER TABLE company ADD COLUMN founded integer;
`

func mustParse(t *testing.T, input string) *ParsedSchema {
	t.Helper()
	schema, err := ParseSchema(input)
	if err != nil {
		t.Fatalf("ParseSchema failed: %v", err)
	}
	return schema
}

func TestParseSchema_Tables(t *testing.T) {
	schema := mustParse(t, testSchema)

	if len(schema.Tables) != 3 {
		t.Fatalf("expected 3 tables, got %d", len(schema.Tables))
	}
	var names []string
	for _, tbl := range schema.Tables {
		names = append(names, tbl.Name)
	}
	if got := strings.Join(names, ","); got != "person,company,membership" {
		t.Errorf("tables = %s", got)
	}

	membership, _ := schema.Table("MEMBERSHIP")
	if membership == nil || !membership.WithoutRowID {
		t.Fatalf("membership should be found case-insensitively and be WITHOUT ROWID")
	}
}

func TestParseSchema_Columns(t *testing.T) {
	schema := mustParse(t, testSchema)
	person, ok := schema.Table("person")
	if !ok {
		t.Fatal("person not parsed")
	}
	if len(person.Columns) != 9 {
		t.Fatalf("expected 9 person columns, got %d", len(person.Columns))
	}

	id := person.Columns[0]
	if id.Name != "_id" || !id.PrimaryKey || !id.Autoincrement || id.Type != "INTEGER" {
		t.Errorf("unexpected _id column: %+v", id)
	}

	name, _ := person.Column("name")
	if !name.NotNull || name.Nullable() {
		t.Errorf("name should be NOT NULL: %+v", name)
	}

	display, ok := person.Column("display name")
	if !ok {
		t.Fatal("quoted column name not unquoted")
	}
	if display.Type != "VARCHAR" {
		t.Errorf("display name type = %q, want VARCHAR", display.Type)
	}

	age, _ := person.Column("age")
	if age.Default != "0" {
		t.Errorf("age default = %q", age.Default)
	}
	created, _ := person.Column("created_at")
	if created.Default != "CURRENT_TIMESTAMP" {
		t.Errorf("created_at default = %q", created.Default)
	}

	employer, _ := person.Column("employer")
	if employer.References != "company" {
		t.Errorf("employer references %q, want company", employer.References)
	}

	company, _ := schema.Table("company")
	title, _ := company.Column("title")
	if !title.Unique {
		t.Errorf("title should be unique")
	}
	if _, ok := company.Column("founded"); !ok {
		t.Errorf("ALTER TABLE did not add founded")
	}
	if company.Columns[len(company.Columns)-1].Name != "founded" {
		t.Errorf("added column should come last")
	}
}

func TestParseSchema_TableLevelConstraints(t *testing.T) {
	schema := mustParse(t, testSchema)
	membership, _ := schema.Table("membership")

	for _, col := range membership.Columns {
		if col.PrimaryKey {
			t.Errorf("composite key should not mark %s as primary key", col.Name)
		}
	}
	personID, _ := membership.Column("person_id")
	if personID.References != "person" {
		t.Errorf("foreign key not applied: %+v", personID)
	}

	single := mustParse(t, `CREATE TABLE t (_id integer, v text, PRIMARY KEY (_id));`)
	id, _ := single.Tables[0].Column("_id")
	if !id.PrimaryKey {
		t.Errorf("single-column table key should mark _id")
	}
}

func TestParseSchema_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"alter unknown table", "ALTER TABLE missing ADD COLUMN a text;", "not defined"},
		{"duplicate column", "CREATE TABLE t (_id integer primary key); ALTER TABLE t ADD a text; ALTER TABLE t ADD a text;", "already exists"},
		{"duplicate table", "CREATE TABLE t (a text); CREATE TABLE t (b text);", "defined twice"},
		{"syntax", "CREATE TABLE t (", "parse schema"},
		{"unsupported statement", "DROP TABLE t;", "parse schema"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchema(tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseSchema_IfNotExistsKeepsFirst(t *testing.T) {
	schema := mustParse(t, `
CREATE TABLE t (_id integer primary key, a text);
CREATE TABLE IF NOT EXISTS t (_id integer primary key, b text);
`)
	if len(schema.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(schema.Tables))
	}
	if _, ok := schema.Tables[0].Column("a"); !ok {
		t.Errorf("first definition should win")
	}
}

func TestParseSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.sql")
	if err := os.WriteFile(path, []byte(testSchema), 0o644); err != nil {
		t.Fatal(err)
	}
	schema, err := ParseSchemaFile(path)
	if err != nil {
		t.Fatalf("ParseSchemaFile failed: %v", err)
	}
	if len(schema.Tables) != 3 {
		t.Errorf("expected 3 tables, got %d", len(schema.Tables))
	}

	if _, err := ParseSchemaFile(filepath.Join(t.TempDir(), "missing.sql")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAffinity(t *testing.T) {
	tests := []struct {
		typ  string
		want Affinity
	}{
		{"INTEGER", AffinityInteger},
		{"BIGINT", AffinityInteger},
		{"FLOATING POINT", AffinityInteger},
		{"VARCHAR", AffinityText},
		{"clob", AffinityText},
		{"", AffinityBlob},
		{"BLOB", AffinityBlob},
		{"DOUBLE PRECISION", AffinityReal},
		{"real", AffinityReal},
		{"NUMERIC", AffinityNumeric},
		{"BOOLEAN", AffinityNumeric},
		{"DATETIME", AffinityNumeric},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			if got := (ColumnSpec{Type: tt.typ}).Affinity(); got != tt.want {
				t.Errorf("Affinity(%q) = %s, want %s", tt.typ, got, tt.want)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	schema := mustParse(t, `
CREATE TABLE good (_id integer primary key, a text);
CREATE TABLE noid (a text);
CREATE TABLE textid (_id text primary key);
CREATE TABLE notkey (_id integer);
`)
	for _, tbl := range schema.Tables {
		err := tbl.Compatible()
		if (err == nil) != (tbl.Name == "good") {
			t.Errorf("Compatible(%s) = %v", tbl.Name, err)
		}
	}
}

func TestUnquote(t *testing.T) {
	tests := map[string]string{
		`"a b"`:   "a b",
		"`x`":     "x",
		"[y z]":   "y z",
		`"q""q"`:  `q"q`,
		"plain":   "plain",
		`"`:       `"`,
	}
	for in, want := range tests {
		if got := unquote(in); got != want {
			t.Errorf("unquote(%s) = %q, want %q", in, got, want)
		}
	}
}
