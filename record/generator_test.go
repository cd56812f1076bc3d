package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CaliLuke/go-activerecord/ast"
	"github.com/CaliLuke/go-activerecord/storage"
)

type migratedV2 struct {
	BaseEntity
	A string
	B int
}

func (migratedV2) TableName() string { return "migrated" }

func openEmptyDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(t.Context(), storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestGenerator_AdditiveMigration(t *testing.T) {
	db := openEmptyDB(t)
	ctx := t.Context()
	eng := db.Engine()

	require.NoError(t, eng.Execute(ctx, "CREATE TABLE migrated (_id integer primary key, a text, legacy text)"))
	require.NoError(t, eng.Execute(ctx, "INSERT INTO migrated (a, legacy) VALUES ('one', 'x'), ('two', 'y')"))
	require.NoError(t, eng.SetSchemaVersion(ctx, 1))

	g := NewGenerator(db, 2)
	needs, err := g.NeedsUpdate(ctx)
	require.NoError(t, err)
	assert.True(t, needs)

	require.NoError(t, g.BeginUpdate(ctx, false))
	assert.Equal(t, StateMigrating, g.State())
	require.NoError(t, AddClass[migratedV2](ctx, g))
	require.NoError(t, g.EndUpdate(ctx))
	assert.Equal(t, StateIdle, g.State())

	cols, err := eng.Columns(ctx, "migrated")
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "a", "legacy", "b"}, cols)

	rows, err := eng.RawQuery(ctx, "SELECT a, legacy, b FROM migrated ORDER BY _id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "one", rows[0]["a"])
	assert.Equal(t, "y", rows[1]["legacy"])
	assert.Nil(t, rows[0]["b"])

	found, err := FindAll[migratedV2](ctx, db)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "two", found[1].A)
	assert.Zero(t, found[1].B)

	v, err := eng.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	needs, err = g.NeedsUpdate(ctx)
	require.NoError(t, err)
	assert.False(t, needs)

	history, err := History(ctx, db)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.EqualValues(t, 2, history[0].Version)
	assert.Equal(t, HashStatements([]string{"ALTER TABLE migrated ADD COLUMN b integer"}), history[0].Hash)
	assert.Contains(t, history[0].Summary, "add 1 column(s): migrated.b")
	_, err = history[0].AppliedTime()
	assert.NoError(t, err)
}

func TestGenerator_IdempotentUpdateRecordsNoHistory(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	before, err := History(ctx, db)
	require.NoError(t, err)

	g := NewGenerator(db, 1)
	require.NoError(t, g.BeginUpdate(ctx, false))
	require.NoError(t, AddClass[testPerson](ctx, g))
	require.NoError(t, g.EndUpdate(ctx))

	after, err := History(ctx, db)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestGenerator_ClearDropsTables(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	p := &testPerson{Name: "Ada"}
	require.NoError(t, SaveTo(ctx, p, db))

	g := NewGenerator(db, 3)
	require.NoError(t, g.BeginUpdate(ctx, true))
	assert.Equal(t, StateClearing, g.State())

	tables, err := db.Engine().Tables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)

	require.NoError(t, AddClass[testPerson](ctx, g))
	require.NoError(t, g.EndUpdate(ctx))

	n, err := CountAll[testPerson](ctx, db)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = FindByID[testPerson](ctx, db, p.ID())
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf), "cache was cleared with the tables")

	history, err := History(ctx, db)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Summary, "drop")
	assert.Contains(t, history[0].Summary, "create 1 table(s): person")
}

func TestGenerator_EmptyDatabaseStartsClearing(t *testing.T) {
	db := openEmptyDB(t)
	g := NewGenerator(db, 1)
	require.NoError(t, g.BeginUpdate(t.Context(), false))
	assert.Equal(t, StateClearing, g.State())
}

func TestGenerator_StateErrors(t *testing.T) {
	db := openEmptyDB(t)
	ctx := t.Context()
	g := NewGenerator(db, 1)
	var stateErr *InvalidStateError

	assert.True(t, errors.As(AddClass[testPerson](ctx, g), &stateErr))
	assert.True(t, errors.As(g.EndUpdate(ctx), &stateErr))

	require.NoError(t, g.BeginUpdate(ctx, false))
	assert.True(t, errors.As(g.BeginUpdate(ctx, false), &stateErr))
}

func TestGenerator_Plan(t *testing.T) {
	db := openEmptyDB(t)
	ctx := t.Context()
	require.NoError(t, db.Engine().Execute(ctx, "CREATE TABLE migrated (_id integer primary key, a text, legacy text)"))

	personInfo, err := ModelOf[testPerson]()
	require.NoError(t, err)
	migInfo, err := ModelOf[migratedV2]()
	require.NoError(t, err)

	diff, err := NewGenerator(db, 1).Plan(ctx, personInfo, migInfo)
	require.NoError(t, err)
	assert.False(t, diff.IsEmpty())
	require.Len(t, diff.CreateTables, 1)
	assert.Equal(t, "person", diff.CreateTables[0].Table)
	require.Len(t, diff.AddColumns, 1)
	assert.Equal(t, "b", diff.AddColumns[0].Column.Name)
	assert.Equal(t, []ColumnRef{{Table: "migrated", Column: "legacy"}}, diff.ExtraColumns)
	assert.Contains(t, diff.Summary(), "WARNING: 1 column(s) in DB not in code: migrated.legacy")

	for _, op := range diff.Operations() {
		assert.False(t, op.IsDestructive())
	}

	tables, err := db.Engine().Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"migrated"}, tables, "plan applies nothing")
}

func TestSchemaDiff_Empty(t *testing.T) {
	d := &SchemaDiff{}
	assert.True(t, d.IsEmpty())
	assert.Equal(t, "schema is up to date", d.Summary())
	stmts, err := d.GenerateMigration()
	require.NoError(t, err)
	assert.Empty(t, stmts)
}

func TestOperations(t *testing.T) {
	cols := []ast.ColumnDef{{Name: "_id", Type: "integer", PrimaryKey: true}, {Name: "name", Type: "text"}}
	tests := []struct {
		name        string
		op          Operation
		sql         string
		rollback    string
		reversible  bool
		destructive bool
	}{
		{
			name:       "create table",
			op:         CreateTable{Table: "t", Columns: cols},
			sql:        "CREATE TABLE t (_id integer primary key, name text)",
			rollback:   "DROP TABLE t",
			reversible: true,
		},
		{
			name:       "add column",
			op:         AddColumn{Table: "t", Column: ast.ColumnDef{Name: "age", Type: "integer"}},
			sql:        "ALTER TABLE t ADD COLUMN age integer",
			rollback:   "ALTER TABLE t DROP COLUMN age",
			reversible: true,
		},
		{
			name:        "drop table",
			op:          DropTable{Table: "t"},
			sql:         "DROP TABLE t",
			destructive: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, err := tt.op.SQL()
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.reversible, tt.op.IsReversible())
			assert.Equal(t, tt.destructive, tt.op.IsDestructive())

			rb, err := tt.op.RollbackSQL()
			if tt.reversible {
				require.NoError(t, err)
				assert.Equal(t, tt.rollback, rb)
			} else {
				assert.Error(t, err)
			}
		})
	}

	_, err := AddColumn{Table: "t", Column: ast.ColumnDef{Name: "bad name"}}.RollbackSQL()
	assert.Error(t, err)
}

func TestHashStatements(t *testing.T) {
	a := HashStatements([]string{"CREATE TABLE a (_id integer primary key)"})
	b := HashStatements([]string{"CREATE TABLE a (_id integer primary key)"})
	c := HashStatements([]string{"CREATE TABLE b (_id integer primary key)"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)

	assert.NotEqual(t, HashStatements([]string{"ab"}), HashStatements([]string{"a", "b"}))
}

func TestHistory_NoTable(t *testing.T) {
	db := openEmptyDB(t)
	history, err := History(t.Context(), db)
	require.NoError(t, err)
	assert.Empty(t, history)
}
